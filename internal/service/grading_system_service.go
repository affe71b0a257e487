package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/school-results-api/internal/grading"
	"github.com/noah-isme/school-results-api/internal/models"
	appErrors "github.com/noah-isme/school-results-api/pkg/errors"
	"github.com/noah-isme/school-results-api/pkg/events"
)

type gradingSystemRepository interface {
	List(ctx context.Context) ([]models.GradingSystem, error)
	FindByID(ctx context.Context, id string) (*models.GradingSystem, error)
	SaveWithGuard(ctx context.Context, band *models.GradingSystem, create bool, guard func([]models.GradingSystem) error) error
	Delete(ctx context.Context, id string) (bool, error)
}

// GradingSystemRequest is the payload for creating or updating a grade band.
type GradingSystemRequest struct {
	MinScore decimal.Decimal `json:"min_score"`
	MaxScore decimal.Decimal `json:"max_score"`
	Grade    string          `json:"grade" validate:"required,max=10"`
	Remarks  string          `json:"remarks" validate:"required,max=100"`
}

// GradingSystemService manages the grade band set and resolves scores against it.
type GradingSystemService struct {
	repo      gradingSystemRepository
	publisher eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradingSystemService constructs the service.
func NewGradingSystemService(repo gradingSystemRepository, publisher eventPublisher, validate *validator.Validate, logger *zap.Logger) *GradingSystemService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &GradingSystemService{repo: repo, publisher: publisher, validator: validate, logger: logger}
}

// List returns the bands ordered by minimum score.
func (s *GradingSystemService) List(ctx context.Context) ([]models.GradingSystem, error) {
	bands, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list grading systems")
	}
	return bands, nil
}

// Get returns one band.
func (s *GradingSystemService) Get(ctx context.Context, id string) (*models.GradingSystem, error) {
	band, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grading system not found")
		}
		return nil, appErrors.Internal(err, "failed to load grading system")
	}
	return band, nil
}

// Create adds a band that must not intersect any existing band.
func (s *GradingSystemService) Create(ctx context.Context, req GradingSystemRequest) (*models.GradingSystem, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	band := &models.GradingSystem{}
	applyBandRequest(band, req)
	if err := s.repo.SaveWithGuard(ctx, band, true, overlapGuard(band)); err != nil {
		return nil, guardError(err, "failed to create grading system")
	}
	s.logger.Info("grading system created", zap.String("grading_system_id", band.ID), zap.String("grade", band.Grade))
	s.publishChange(ctx, band.ID, events.ActionCreated)
	return band, nil
}

// Update edits a band; the band itself is ignored when checking for overlaps.
func (s *GradingSystemService) Update(ctx context.Context, id string, req GradingSystemRequest) (*models.GradingSystem, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	band, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyBandRequest(band, req)
	if err := s.repo.SaveWithGuard(ctx, band, false, overlapGuard(band)); err != nil {
		return nil, guardError(err, "failed to update grading system")
	}
	s.publishChange(ctx, band.ID, events.ActionUpdated)
	return band, nil
}

// Delete removes a band.
func (s *GradingSystemService) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return appErrors.Internal(err, "failed to delete grading system")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "grading system not found")
	}
	s.publishChange(ctx, id, events.ActionDeleted)
	return nil
}

// Resolve maps a score to its grade and remark.
func (s *GradingSystemService) Resolve(ctx context.Context, score decimal.Decimal) (grading.Resolution, error) {
	bands, err := s.List(ctx)
	if err != nil {
		return grading.Resolution{}, err
	}
	return grading.NewBands(bands).Resolve(score), nil
}

func (s *GradingSystemService) validateRequest(req GradingSystemRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading system payload")
	}
	if req.MinScore.IsNegative() {
		return appErrors.Clone(appErrors.ErrValidation, "min_score cannot be negative")
	}
	if req.MinScore.GreaterThan(req.MaxScore) {
		return appErrors.Clone(appErrors.ErrValidation, "min_score must not exceed max_score")
	}
	return nil
}

func (s *GradingSystemService) publishChange(ctx context.Context, id, action string) {
	publishOrLog(ctx, s.publisher, s.logger, events.TopicGradingSystemsChanged, events.GradingSystemChanged{
		GradingSystemID: id,
		Action:          action,
		OccurredAt:      time.Now().UTC(),
	})
}

func overlapGuard(band *models.GradingSystem) func([]models.GradingSystem) error {
	return func(existing []models.GradingSystem) error {
		if clash := grading.FindOverlap(*band, existing); clash != nil {
			return appErrors.Clonef(appErrors.ErrBandOverlap, "band %s-%s overlaps %s (%s-%s)",
				band.MinScore.String(), band.MaxScore.String(), clash.Grade, clash.MinScore.String(), clash.MaxScore.String())
		}
		return nil
	}
}

func applyBandRequest(band *models.GradingSystem, req GradingSystemRequest) {
	band.MinScore = req.MinScore
	band.MaxScore = req.MaxScore
	band.Grade = req.Grade
	band.Remarks = req.Remarks
}
