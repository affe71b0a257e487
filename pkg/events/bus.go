package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/noah-isme/school-results-api/pkg/config"
)

const handlerAttempts = 3

// Handler consumes a JSON payload delivered on a topic.
type Handler func(ctx context.Context, payload []byte) error

// Bus is an in-process publish/subscribe bus backed by watermill's Go channel pub/sub.
// A disabled bus accepts publishes and subscriptions and drops them.
type Bus struct {
	pubsub       *gochannel.GoChannel
	logger       *zap.Logger
	enabled      bool
	ackTimeout   time.Duration
	closeTimeout time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewBus constructs the bus from configuration.
func NewBus(cfg config.EventsConfig, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		logger:       logger,
		enabled:      cfg.Enabled,
		ackTimeout:   cfg.AckTimeout,
		closeTimeout: cfg.CloseTimeout,
	}
	if b.ackTimeout <= 0 {
		b.ackTimeout = 30 * time.Second
	}
	if b.closeTimeout <= 0 {
		b.closeTimeout = 5 * time.Second
	}
	if !cfg.Enabled {
		return b
	}
	b.pubsub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(cfg.BufferSize),
		Persistent:          cfg.Persistent,
	}, NewZapLogger(logger.Named("watermill")))
	return b
}

// Enabled reports whether events are actually delivered.
func (b *Bus) Enabled() bool {
	return b != nil && b.enabled
}

// Publish marshals payload as JSON and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) error {
	if !b.Enabled() {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set("topic", topic)
	msg.Metadata.Set("published_at", time.Now().UTC().Format(time.RFC3339Nano))
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// Subscribe starts consuming topic until ctx is cancelled or the bus is closed.
// Handler failures are retried a few times, then acknowledged and logged so the topic keeps flowing.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if !b.Enabled() {
		return nil
	}
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range messages {
			b.dispatch(ctx, topic, msg, handler)
		}
	}()
	return nil
}

func (b *Bus) dispatch(ctx context.Context, topic string, msg *message.Message, handler Handler) {
	var err error
	for attempt := 1; attempt <= handlerAttempts; attempt++ {
		handlerCtx, cancel := context.WithTimeout(ctx, b.ackTimeout)
		err = handler(handlerCtx, msg.Payload)
		cancel()
		if err == nil {
			break
		}
	}
	if err != nil {
		b.logger.Error("event handler failed",
			zap.String("topic", topic),
			zap.String("message_id", msg.UUID),
			zap.Error(err),
		)
	}
	msg.Ack()
}

// Close stops the pub/sub and waits for subscribers to drain.
func (b *Bus) Close() error {
	if !b.Enabled() {
		return nil
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if err := b.pubsub.Close(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(b.closeTimeout):
		return fmt.Errorf("event subscribers did not drain within %s", b.closeTimeout)
	}
}
