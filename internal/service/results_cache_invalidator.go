package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/school-results-api/pkg/events"
)

type eventSubscriber interface {
	Subscribe(ctx context.Context, topic string, handler events.Handler) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// ResultsCacheInvalidator drops cached results views when the data behind them changes.
type ResultsCacheInvalidator struct {
	cache  cacheInvalidator
	logger *zap.Logger
}

// NewResultsCacheInvalidator constructs the invalidator.
func NewResultsCacheInvalidator(cache cacheInvalidator, logger *zap.Logger) *ResultsCacheInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultsCacheInvalidator{cache: cache, logger: logger}
}

// Register subscribes the invalidator to every topic that affects results.
func (i *ResultsCacheInvalidator) Register(ctx context.Context, bus eventSubscriber) error {
	handlers := map[string]events.Handler{
		events.TopicGradesRecorded:        i.onGradesRecorded,
		events.TopicAssessmentsChanged:    i.onAssessmentChanged,
		events.TopicGradingSystemsChanged: i.onGradingSystemChanged,
		events.TopicPeriodsTransitioned:   i.onPeriodTransitioned,
	}
	for topic, handler := range handlers {
		if err := bus.Subscribe(ctx, topic, handler); err != nil {
			return err
		}
	}
	return nil
}

func (i *ResultsCacheInvalidator) onGradesRecorded(ctx context.Context, payload []byte) error {
	var evt events.GradesRecorded
	if err := json.Unmarshal(payload, &evt); err != nil {
		i.logger.Warn("discarding malformed grades event", zap.Error(err))
		return nil
	}
	return i.cache.Invalidate(ctx, sectionPattern(evt.TermID, evt.SectionID))
}

func (i *ResultsCacheInvalidator) onAssessmentChanged(ctx context.Context, payload []byte) error {
	var evt events.AssessmentChanged
	if err := json.Unmarshal(payload, &evt); err != nil {
		i.logger.Warn("discarding malformed assessment event", zap.Error(err))
		return nil
	}
	if err := i.cache.Invalidate(ctx, sectionPattern(evt.TermID, evt.SectionID)); err != nil {
		return err
	}
	if evt.PreviousSectionID == "" {
		return nil
	}
	return i.cache.Invalidate(ctx, sectionPattern(evt.PreviousTermID, evt.PreviousSectionID))
}

// Bands feed every view, so a band change clears them all.
func (i *ResultsCacheInvalidator) onGradingSystemChanged(ctx context.Context, _ []byte) error {
	return i.cache.Invalidate(ctx, ResultsCachePrefix+":*")
}

func (i *ResultsCacheInvalidator) onPeriodTransitioned(ctx context.Context, payload []byte) error {
	var evt events.PeriodTransitioned
	if err := json.Unmarshal(payload, &evt); err != nil {
		i.logger.Warn("discarding malformed period event", zap.Error(err))
		return nil
	}
	if evt.Kind != periodKindTerm {
		return nil
	}
	return i.cache.Invalidate(ctx, fmt.Sprintf("%s:%s:*", ResultsCachePrefix, evt.PeriodID))
}

func sectionPattern(termID, sectionID string) string {
	return fmt.Sprintf("%s:%s:%s:*", ResultsCachePrefix, termID, sectionID)
}
