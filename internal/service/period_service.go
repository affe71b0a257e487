package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-results-api/internal/grading"
	"github.com/noah-isme/school-results-api/internal/models"
	appErrors "github.com/noah-isme/school-results-api/pkg/errors"
	"github.com/noah-isme/school-results-api/pkg/events"
)

type academicYearRepository interface {
	List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error)
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
	ListByStatus(ctx context.Context, statuses ...models.PeriodStatus) ([]models.AcademicYear, error)
	FindActive(ctx context.Context) (*models.AcademicYear, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, year *models.AcademicYear) error
	Update(ctx context.Context, year *models.AcademicYear) error
	TransitionStatus(ctx context.Context, id string, from, to models.PeriodStatus) (bool, error)
	End(ctx context.Context, id string, endDate time.Time, status models.PeriodStatus) error
	Delete(ctx context.Context, id string) error
}

type academicTermRepository interface {
	List(ctx context.Context, filter models.AcademicTermFilter) ([]models.AcademicTerm, int, error)
	FindByID(ctx context.Context, id string) (*models.AcademicTerm, error)
	ListByYear(ctx context.Context, yearID string) ([]models.AcademicTerm, error)
	ListByStatus(ctx context.Context, statuses ...models.PeriodStatus) ([]models.AcademicTerm, error)
	FindActive(ctx context.Context) (*models.AcademicTerm, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, term *models.AcademicTerm) error
	Update(ctx context.Context, term *models.AcademicTerm) error
	TransitionStatus(ctx context.Context, id string, from, to models.PeriodStatus) (bool, error)
	End(ctx context.Context, id string, endDate time.Time) error
	Delete(ctx context.Context, id string) error
	CountAssessments(ctx context.Context, id string) (int, error)
}

const (
	periodKindYear = "academic_year"
	periodKindTerm = "academic_term"
)

// AcademicYearRequest is the payload for creating or updating an academic year.
type AcademicYearRequest struct {
	Name      string    `json:"name" validate:"required,max=100"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// AcademicTermRequest is the payload for creating or updating an academic term.
type AcademicTermRequest struct {
	Name           string    `json:"name" validate:"required,max=100"`
	AcademicYearID string    `json:"academic_year_id" validate:"required"`
	StartDate      time.Time `json:"start_date" validate:"required"`
	EndDate        time.Time `json:"end_date" validate:"required"`
}

// PeriodService owns academic year and term records and is the only writer of their status.
// Statuses follow the clock lazily: every read reconciles the record it returns.
type PeriodService struct {
	years     academicYearRepository
	terms     academicTermRepository
	publisher eventPublisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	location  *time.Location
	now       func() time.Time
}

// NewPeriodService creates a period service. loc is the school's time zone used for evaluation.
func NewPeriodService(years academicYearRepository, terms academicTermRepository, publisher eventPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, loc *time.Location) *PeriodService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &PeriodService{
		years:     years,
		terms:     terms,
		publisher: publisher,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		location:  loc,
		now:       time.Now,
	}
}

func (s *PeriodService) clock() time.Time {
	return s.now().In(s.location)
}

// ReconcileTerm brings the term's status in line with the clock, persisting only when it changed.
// Concurrent reconcilers race on a conditional update; the loser reloads the winner's row.
func (s *PeriodService) ReconcileTerm(ctx context.Context, term *models.AcademicTerm) (*models.AcademicTerm, error) {
	next := grading.NextTermStatus(term.Status, term.StartDate, term.EndDate, s.clock())
	if next == term.Status {
		return term, nil
	}

	changed, err := s.terms.TransitionStatus(ctx, term.ID, term.Status, next)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to update academic term status")
	}
	if !changed {
		return s.loadTerm(ctx, term.ID)
	}

	s.recordTransition(ctx, periodKindTerm, term.ID, term.Status, next)
	updated := *term
	updated.Status = next
	return &updated, nil
}

// ReconcileYear brings the year's status in line with the clock, persisting only when it changed.
func (s *PeriodService) ReconcileYear(ctx context.Context, year *models.AcademicYear) (*models.AcademicYear, error) {
	next := grading.NextYearStatus(year.Status, year.EndDate, s.clock())
	if next == year.Status {
		return year, nil
	}

	changed, err := s.years.TransitionStatus(ctx, year.ID, year.Status, next)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to update academic year status")
	}
	if !changed {
		return s.loadYear(ctx, year.ID)
	}

	s.recordTransition(ctx, periodKindYear, year.ID, year.Status, next)
	updated := *year
	updated.Status = next
	return &updated, nil
}

func (s *PeriodService) recordTransition(ctx context.Context, kind, id string, from, to models.PeriodStatus) {
	s.logger.Info("academic period transitioned",
		zap.String("kind", kind),
		zap.String("period_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	s.metrics.RecordPeriodTransition(kind, from, to)
	publishOrLog(ctx, s.publisher, s.logger, events.TopicPeriodsTransitioned, events.PeriodTransitioned{
		Kind:       kind,
		PeriodID:   id,
		From:       string(from),
		To:         string(to),
		OccurredAt: time.Now().UTC(),
	})
}

// ActiveTerm reconciles every term recorded as Active or Pending, then returns the Active one.
func (s *PeriodService) ActiveTerm(ctx context.Context) (*models.AcademicTerm, error) {
	candidates, err := s.terms.ListByStatus(ctx, models.PeriodStatusActive, models.PeriodStatusPending)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load current academic terms")
	}
	for i := range candidates {
		if _, err := s.ReconcileTerm(ctx, &candidates[i]); err != nil {
			return nil, err
		}
	}

	term, err := s.terms.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNoActivePeriod, "no active academic term")
		}
		return nil, appErrors.Internal(err, "failed to load active academic term")
	}
	return term, nil
}

// ActiveYear reconciles the year recorded as Active, then returns the Active one.
func (s *PeriodService) ActiveYear(ctx context.Context) (*models.AcademicYear, error) {
	candidates, err := s.years.ListByStatus(ctx, models.PeriodStatusActive)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load current academic years")
	}
	for i := range candidates {
		if _, err := s.ReconcileYear(ctx, &candidates[i]); err != nil {
			return nil, err
		}
	}

	year, err := s.years.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNoActivePeriod, "no active academic year")
		}
		return nil, appErrors.Internal(err, "failed to load active academic year")
	}
	return year, nil
}

// GetTerm returns a reconciled term.
func (s *PeriodService) GetTerm(ctx context.Context, id string) (*models.AcademicTerm, error) {
	term, err := s.loadTerm(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ReconcileTerm(ctx, term)
}

// ListTerms returns reconciled terms.
func (s *PeriodService) ListTerms(ctx context.Context, filter models.AcademicTermFilter) ([]models.AcademicTerm, *models.Pagination, error) {
	terms, total, err := s.terms.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list academic terms")
	}
	for i := range terms {
		reconciled, err := s.ReconcileTerm(ctx, &terms[i])
		if err != nil {
			return nil, nil, err
		}
		terms[i] = *reconciled
	}
	return terms, paginate(filter.Page, filter.PageSize, total), nil
}

// GetYear returns a reconciled year.
func (s *PeriodService) GetYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.loadYear(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ReconcileYear(ctx, year)
}

// ListYears returns reconciled years.
func (s *PeriodService) ListYears(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, *models.Pagination, error) {
	years, total, err := s.years.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list academic years")
	}
	for i := range years {
		reconciled, err := s.ReconcileYear(ctx, &years[i])
		if err != nil {
			return nil, nil, err
		}
		years[i] = *reconciled
	}
	return years, paginate(filter.Page, filter.PageSize, total), nil
}

// CreateYear adds an academic year. Its status comes from its dates.
func (s *PeriodService) CreateYear(ctx context.Context, req AcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validateYearRequest(req); err != nil {
		return nil, err
	}
	if err := s.ensureYearNameFree(ctx, req.Name, ""); err != nil {
		return nil, err
	}

	year := &models.AcademicYear{
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Status:    grading.InitialYearStatus(req.EndDate, s.clock()),
	}
	if err := s.ensureSingleActiveYear(ctx, year); err != nil {
		return nil, err
	}

	if err := s.years.Create(ctx, year); err != nil {
		return nil, appErrors.Internal(err, "failed to create academic year")
	}
	s.logger.Info("academic year created", zap.String("year_id", year.ID), zap.String("status", string(year.Status)))
	return year, nil
}

// UpdateYear edits an academic year. Explicit edits may reactivate a year.
func (s *PeriodService) UpdateYear(ctx context.Context, id string, req AcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validateYearRequest(req); err != nil {
		return nil, err
	}
	year, err := s.loadYear(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureYearNameFree(ctx, req.Name, id); err != nil {
		return nil, err
	}

	terms, err := s.terms.ListByYear(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load academic terms")
	}
	for _, term := range terms {
		if !grading.Within(term.StartDate, term.EndDate, req.StartDate, req.EndDate) {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "term %q falls outside the new academic year dates", term.Name)
		}
	}

	year.Name = req.Name
	year.StartDate = req.StartDate
	year.EndDate = req.EndDate
	year.Status = grading.InitialYearStatus(req.EndDate, s.clock())
	if err := s.ensureSingleActiveYear(ctx, year); err != nil {
		return nil, err
	}

	if err := s.years.Update(ctx, year); err != nil {
		return nil, appErrors.Internal(err, "failed to update academic year")
	}
	return year, nil
}

// DeleteYear removes an inactive year together with its terms.
func (s *PeriodService) DeleteYear(ctx context.Context, id string) error {
	year, err := s.GetYear(ctx, id)
	if err != nil {
		return err
	}
	if year.Status == models.PeriodStatusActive {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot delete the active academic year")
	}
	if err := s.years.Delete(ctx, id); err != nil {
		return appErrors.Internal(err, "failed to delete academic year")
	}
	s.logger.Info("academic year deleted", zap.String("year_id", id))
	return nil
}

// EndYear closes a running year now: its end date becomes now and every term is closed with it.
func (s *PeriodService) EndYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.GetYear(ctx, id)
	if err != nil {
		return nil, err
	}
	if year.Status != models.PeriodStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "academic year has already ended")
	}
	now := s.clock()
	if now.Before(year.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "academic year has not started")
	}

	status := grading.InitialYearStatus(now, now)
	if err := s.years.End(ctx, id, now, status); err != nil {
		return nil, appErrors.Internal(err, "failed to end academic year")
	}
	s.recordTransition(ctx, periodKindYear, id, year.Status, status)

	year.EndDate = now
	year.Status = status
	return year, nil
}

// CreateTerm adds a term inside its year.
func (s *PeriodService) CreateTerm(ctx context.Context, req AcademicTermRequest) (*models.AcademicTerm, error) {
	term := &models.AcademicTerm{}
	if err := s.applyTermRequest(ctx, term, req); err != nil {
		return nil, err
	}
	if err := s.terms.Create(ctx, term); err != nil {
		return nil, appErrors.Internal(err, "failed to create academic term")
	}
	s.logger.Info("academic term created", zap.String("term_id", term.ID), zap.String("status", string(term.Status)))
	return term, nil
}

// UpdateTerm edits a term. Explicit edits may reactivate a term.
func (s *PeriodService) UpdateTerm(ctx context.Context, id string, req AcademicTermRequest) (*models.AcademicTerm, error) {
	term, err := s.loadTerm(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyTermRequest(ctx, term, req); err != nil {
		return nil, err
	}
	if err := s.terms.Update(ctx, term); err != nil {
		return nil, appErrors.Internal(err, "failed to update academic term")
	}
	return term, nil
}

// DeleteTerm removes a term that is not running and has no assessments.
func (s *PeriodService) DeleteTerm(ctx context.Context, id string) error {
	term, err := s.GetTerm(ctx, id)
	if err != nil {
		return err
	}
	if term.Status == models.PeriodStatusActive {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot delete the active academic term")
	}
	count, err := s.terms.CountAssessments(ctx, id)
	if err != nil {
		return appErrors.Internal(err, "failed to check academic term dependencies")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "academic term has assessments")
	}
	if err := s.terms.Delete(ctx, id); err != nil {
		return appErrors.Internal(err, "failed to delete academic term")
	}
	return nil
}

// EndTerm closes the running term now.
func (s *PeriodService) EndTerm(ctx context.Context, id string) (*models.AcademicTerm, error) {
	term, err := s.GetTerm(ctx, id)
	if err != nil {
		return nil, err
	}
	switch term.Status {
	case models.PeriodStatusInactive:
		return nil, appErrors.Clone(appErrors.ErrConflict, "academic term has already ended")
	case models.PeriodStatusPending:
		return nil, appErrors.Clone(appErrors.ErrConflict, "academic term has not started")
	}

	now := s.clock()
	if err := s.terms.End(ctx, id, now); err != nil {
		return nil, appErrors.Internal(err, "failed to end academic term")
	}
	s.recordTransition(ctx, periodKindTerm, id, term.Status, models.PeriodStatusInactive)

	term.EndDate = now
	term.Status = models.PeriodStatusInactive
	return term, nil
}

func (s *PeriodService) applyTermRequest(ctx context.Context, term *models.AcademicTerm, req AcademicTermRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic term payload")
	}
	if !grading.ValidRange(req.StartDate, req.EndDate) {
		return appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}

	year, err := s.years.FindByID(ctx, req.AcademicYearID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "academic year not found")
		}
		return appErrors.Internal(err, "failed to load academic year")
	}
	if !grading.Within(req.StartDate, req.EndDate, year.StartDate, year.EndDate) {
		return appErrors.Clone(appErrors.ErrValidation, "term dates must fall within the academic year")
	}

	exists, err := s.terms.ExistsByName(ctx, req.Name, term.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to check academic term name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "academic term name already exists")
	}

	siblings, err := s.terms.ListByYear(ctx, req.AcademicYearID)
	if err != nil {
		return appErrors.Internal(err, "failed to load academic terms")
	}
	for _, sibling := range siblings {
		if sibling.ID == term.ID {
			continue
		}
		if grading.RangesOverlap(req.StartDate, req.EndDate, sibling.StartDate, sibling.EndDate) {
			return appErrors.Clonef(appErrors.ErrConflict, "term dates overlap %q", sibling.Name)
		}
	}

	term.Name = req.Name
	term.AcademicYearID = req.AcademicYearID
	term.StartDate = req.StartDate
	term.EndDate = req.EndDate
	term.Status = grading.InitialTermStatus(req.StartDate, req.EndDate, s.clock())
	return nil
}

func (s *PeriodService) validateYearRequest(req AcademicYearRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}
	if !grading.ValidRange(req.StartDate, req.EndDate) {
		return appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}
	return nil
}

func (s *PeriodService) ensureYearNameFree(ctx context.Context, name, excludeID string) error {
	exists, err := s.years.ExistsByName(ctx, name, excludeID)
	if err != nil {
		return appErrors.Internal(err, "failed to check academic year name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "academic year name already exists")
	}
	return nil
}

// ensureSingleActiveYear rejects a write that would leave two Active years.
func (s *PeriodService) ensureSingleActiveYear(ctx context.Context, year *models.AcademicYear) error {
	if year.Status != models.PeriodStatusActive {
		return nil
	}
	current, err := s.ActiveYear(ctx)
	if err != nil {
		if errors.Is(err, appErrors.ErrNoActivePeriod) {
			return nil
		}
		return err
	}
	if current.ID != year.ID {
		return appErrors.Clonef(appErrors.ErrConflict, "academic year %q is still active", current.Name)
	}
	return nil
}

func (s *PeriodService) loadTerm(ctx context.Context, id string) (*models.AcademicTerm, error) {
	term, err := s.terms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic term not found")
		}
		return nil, appErrors.Internal(err, "failed to load academic term")
	}
	return term, nil
}

func (s *PeriodService) loadYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.years.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Internal(err, "failed to load academic year")
	}
	return year, nil
}
