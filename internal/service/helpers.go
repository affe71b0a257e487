package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/school-results-api/internal/models"
	appErrors "github.com/noah-isme/school-results-api/pkg/errors"
)

// eventPublisher is satisfied by *events.Bus.
type eventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, interface{}) error { return nil }

func publishOrLog(ctx context.Context, publisher eventPublisher, logger *zap.Logger, topic string, payload interface{}) {
	if err := publisher.Publish(ctx, topic, payload); err != nil {
		logger.Warn("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}

func paginate(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

// guardError passes domain rejections raised inside a repository transaction through untouched.
func guardError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, message)
}
