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

type assessmentRepository interface {
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error)
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	SaveInScope(ctx context.Context, a *models.Assessment, create bool, guard func(models.AssessmentScopeState) error) error
	WeightSummary(ctx context.Context, scope models.AssessmentScope) (decimal.Decimal, int, error)
	DeleteIfUngraded(ctx context.Context, id string) (bool, error)
}

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

// termLookup is implemented by PeriodService; terms are always read reconciled.
type termLookup interface {
	GetTerm(ctx context.Context, id string) (*models.AcademicTerm, error)
	ActiveTerm(ctx context.Context) (*models.AcademicTerm, error)
}

// AssessmentRequest is the payload for creating or updating an assessment.
type AssessmentRequest struct {
	Name           string          `json:"name" validate:"required,max=150"`
	Description    *string         `json:"description" validate:"omitempty,max=500"`
	AcademicTermID string          `json:"academic_term_id" validate:"required"`
	ClassSessionID string          `json:"class_session_id" validate:"required"`
	SubjectID      string          `json:"subject_id" validate:"required"`
	TeacherID      string          `json:"teacher_id" validate:"required"`
	Weight         decimal.Decimal `json:"weight"`
	Marks          decimal.Decimal `json:"marks"`
}

// AssessmentService manages assessments and keeps each (term, section, subject) weight budget at or below 100.
type AssessmentService struct {
	repo      assessmentRepository
	periods   termLookup
	sections  sectionReader
	subjects  subjectReader
	publisher eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssessmentService constructs the service.
func NewAssessmentService(repo assessmentRepository, periods termLookup, sections sectionReader, subjects subjectReader, publisher eventPublisher, validate *validator.Validate, logger *zap.Logger) *AssessmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &AssessmentService{
		repo:      repo,
		periods:   periods,
		sections:  sections,
		subjects:  subjects,
		publisher: publisher,
		validator: validate,
		logger:    logger,
	}
}

// List returns assessments matching the filter.
func (s *AssessmentService) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error) {
	assessments, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list assessments")
	}
	return assessments, nil
}

// Get returns one assessment.
func (s *AssessmentService) Get(ctx context.Context, id string) (*models.Assessment, error) {
	assessment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Internal(err, "failed to load assessment")
	}
	return assessment, nil
}

// WeightSummary reports the weight used and left for a triple.
func (s *AssessmentService) WeightSummary(ctx context.Context, scope models.AssessmentScope) (*models.WeightSummary, error) {
	if err := s.validator.Struct(scope); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "termId, sectionId and subjectId are required")
	}
	total, count, err := s.repo.WeightSummary(ctx, scope)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to summarise assessment weights")
	}
	return &models.WeightSummary{
		AssessmentScope: scope,
		Total:           total,
		Remaining:       grading.Remaining(total),
		Count:           count,
	}, nil
}

// Create adds an assessment after checking the weight budget under the scope lock.
func (s *AssessmentService) Create(ctx context.Context, req AssessmentRequest) (*models.Assessment, error) {
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}
	assessment := &models.Assessment{}
	applyAssessmentRequest(assessment, req)

	if err := s.repo.SaveInScope(ctx, assessment, true, s.scopeGuard(assessment)); err != nil {
		return nil, guardError(err, "failed to create assessment")
	}

	s.logger.Info("assessment created",
		zap.String("assessment_id", assessment.ID),
		zap.String("term_id", assessment.AcademicTermID),
		zap.String("section_id", assessment.ClassSessionID),
		zap.String("subject_id", assessment.SubjectID),
		zap.String("weight", assessment.Weight.String()),
	)
	s.publishChange(ctx, assessment, events.ActionCreated)
	return assessment, nil
}

// Update edits an assessment. Its own weight is excluded from the budget it is checked against.
func (s *AssessmentService) Update(ctx context.Context, id string, req AssessmentRequest) (*models.Assessment, error) {
	assessment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}
	previous := assessment.Scope()
	applyAssessmentRequest(assessment, req)

	if err := s.repo.SaveInScope(ctx, assessment, false, s.scopeGuard(assessment)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, guardError(err, "failed to update assessment")
	}
	s.publishMove(ctx, assessment, previous)
	return assessment, nil
}

// Delete removes an assessment that has no grades.
func (s *AssessmentService) Delete(ctx context.Context, id string) error {
	assessment, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.DeleteIfUngraded(ctx, id)
	if err != nil {
		return appErrors.Internal(err, "failed to delete assessment")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "assessment has recorded grades")
	}
	s.publishChange(ctx, assessment, events.ActionDeleted)
	return nil
}

func (s *AssessmentService) validateRequest(ctx context.Context, req AssessmentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}
	if !req.Weight.IsPositive() {
		return appErrors.Clone(appErrors.ErrValidation, "weight must be greater than 0")
	}
	if req.Weight.GreaterThan(grading.WeightLimit) {
		return appErrors.Clonef(appErrors.ErrInvalidWeights, "weight cannot exceed %s", grading.WeightLimit.StringFixed(grading.DisplayPlaces))
	}
	if !req.Marks.IsPositive() {
		return appErrors.Clone(appErrors.ErrValidation, "marks must be greater than 0")
	}
	if req.Marks.GreaterThan(grading.MaxMarks) {
		return appErrors.Clonef(appErrors.ErrValidation, "marks cannot exceed %s", grading.MaxMarks.String())
	}
	if !grading.Storable(req.Weight) || !grading.Storable(req.Marks) {
		return appErrors.Clonef(appErrors.ErrValidation, "weight and marks allow at most %d decimal places", grading.DisplayPlaces)
	}

	term, err := s.periods.GetTerm(ctx, req.AcademicTermID)
	if err != nil {
		return err
	}
	if term.Status == models.PeriodStatusInactive {
		return appErrors.Clone(appErrors.ErrConflict, "academic term has ended")
	}

	if _, err := s.sections.FindByID(ctx, req.ClassSessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return appErrors.Internal(err, "failed to load section")
	}
	if _, err := s.subjects.FindByID(ctx, req.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Internal(err, "failed to load subject")
	}
	return nil
}

// scopeGuard runs inside the assessment transaction against the locked scope state.
func (s *AssessmentService) scopeGuard(a *models.Assessment) func(models.AssessmentScopeState) error {
	return func(state models.AssessmentScopeState) error {
		if state.NameTaken {
			return appErrors.Clonef(appErrors.ErrConflict, "an assessment named %q already exists for this subject", a.Name)
		}
		check := grading.CanAdd(state.WeightTotal, a.Weight)
		if !check.Allowed {
			return appErrors.Clonef(appErrors.ErrInvalidWeights,
				"assessment weights would total %s; current total is %s, %s remaining",
				check.Proposed.StringFixed(grading.DisplayPlaces),
				check.CurrentTotal.StringFixed(grading.DisplayPlaces),
				check.Remaining.StringFixed(grading.DisplayPlaces),
			)
		}
		if state.MaxGradedScore.Valid && a.Marks.LessThan(state.MaxGradedScore.Decimal) {
			return appErrors.Clonef(appErrors.ErrValidation, "marks cannot be below the highest recorded score (%s)", state.MaxGradedScore.Decimal.String())
		}
		return nil
	}
}

func (s *AssessmentService) publishChange(ctx context.Context, a *models.Assessment, action string) {
	publishOrLog(ctx, s.publisher, s.logger, events.TopicAssessmentsChanged, events.AssessmentChanged{
		AssessmentID: a.ID,
		TermID:       a.AcademicTermID,
		SectionID:    a.ClassSessionID,
		SubjectID:    a.SubjectID,
		Action:       action,
		OccurredAt:   time.Now().UTC(),
	})
}

// publishMove reports an update, carrying the old term and section when the assessment left them.
func (s *AssessmentService) publishMove(ctx context.Context, a *models.Assessment, previous models.AssessmentScope) {
	evt := events.AssessmentChanged{
		AssessmentID: a.ID,
		TermID:       a.AcademicTermID,
		SectionID:    a.ClassSessionID,
		SubjectID:    a.SubjectID,
		Action:       events.ActionUpdated,
		OccurredAt:   time.Now().UTC(),
	}
	if previous.AcademicTermID != a.AcademicTermID || previous.ClassSessionID != a.ClassSessionID {
		evt.PreviousTermID = previous.AcademicTermID
		evt.PreviousSectionID = previous.ClassSessionID
	}
	publishOrLog(ctx, s.publisher, s.logger, events.TopicAssessmentsChanged, evt)
}

func applyAssessmentRequest(a *models.Assessment, req AssessmentRequest) {
	a.Name = req.Name
	a.Description = req.Description
	a.AcademicTermID = req.AcademicTermID
	a.ClassSessionID = req.ClassSessionID
	a.SubjectID = req.SubjectID
	a.TeacherID = req.TeacherID
	a.Weight = req.Weight
	a.Marks = req.Marks
}
