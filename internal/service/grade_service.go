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

type gradeRepository interface {
	Upsert(ctx context.Context, grade *models.Grade, check models.GradeCheck) error
	BulkUpsert(ctx context.Context, assessmentID string, grades []*models.Grade, check models.GradeCheck) error
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	ListByAssessment(ctx context.Context, assessmentID string) ([]models.Grade, error)
	Delete(ctx context.Context, id string) error
}

type assessmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type enrollmentReader interface {
	FindEnrollment(ctx context.Context, studentID, sectionID, yearID string) (*models.ClassStudent, error)
}

// GradeRequest records one student's score on an assessment.
type GradeRequest struct {
	AssessmentID string          `json:"assessment_id" validate:"required"`
	StudentID    string          `json:"student_id" validate:"required"`
	Score        decimal.Decimal `json:"score"`
}

// StudentScore is one entry of a bulk grading request.
type StudentScore struct {
	StudentID string          `json:"student_id" validate:"required"`
	Score     decimal.Decimal `json:"score"`
}

// BulkGradeRequest records scores for many students on one assessment.
type BulkGradeRequest struct {
	AssessmentID string         `json:"assessment_id" validate:"required"`
	Grades       []StudentScore `json:"grades" validate:"required,min=1,max=500,dive"`
}

// GradeService records grades. Grading is only allowed against assessments of the active term.
type GradeService struct {
	repo        gradeRepository
	assessments assessmentReader
	students    studentReader
	enrollments enrollmentReader
	periods     termLookup
	publisher   eventPublisher
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs the service.
func NewGradeService(repo gradeRepository, assessments assessmentReader, students studentReader, enrollments enrollmentReader, periods termLookup, publisher eventPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &GradeService{
		repo:        repo,
		assessments: assessments,
		students:    students,
		enrollments: enrollments,
		periods:     periods,
		publisher:   publisher,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Grade upserts a single grade.
func (s *GradeService) Grade(ctx context.Context, req GradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	assessment, term, err := s.gradableAssessment(ctx, req.AssessmentID)
	if err != nil {
		return nil, err
	}
	grade, err := s.buildGrade(ctx, assessment, term, req.StudentID, req.Score)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Upsert(ctx, grade, checkAgainstScale); err != nil {
		return nil, gradeWriteError(err, "failed to save grade")
	}
	s.recorded(ctx, assessment, []string{grade.StudentID})
	return grade, nil
}

// BulkGrade upserts grades for many students in one transaction; one invalid entry rejects them all.
func (s *GradeService) BulkGrade(ctx context.Context, req BulkGradeRequest) ([]models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk grade payload")
	}
	assessment, term, err := s.gradableAssessment(ctx, req.AssessmentID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(req.Grades))
	grades := make([]*models.Grade, 0, len(req.Grades))
	studentIDs := make([]string, 0, len(req.Grades))
	for _, entry := range req.Grades {
		if _, dup := seen[entry.StudentID]; dup {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "student %s appears more than once", entry.StudentID)
		}
		seen[entry.StudentID] = struct{}{}

		grade, err := s.buildGrade(ctx, assessment, term, entry.StudentID, entry.Score)
		if err != nil {
			return nil, err
		}
		grades = append(grades, grade)
		studentIDs = append(studentIDs, entry.StudentID)
	}

	if err := s.repo.BulkUpsert(ctx, assessment.ID, grades, checkAgainstScale); err != nil {
		return nil, gradeWriteError(err, "failed to save grades")
	}
	s.recorded(ctx, assessment, studentIDs)

	out := make([]models.Grade, len(grades))
	for i, g := range grades {
		out[i] = *g
	}
	return out, nil
}

// List returns the grades recorded for an assessment.
func (s *GradeService) List(ctx context.Context, assessmentID string) ([]models.Grade, error) {
	if _, err := s.loadAssessment(ctx, assessmentID); err != nil {
		return nil, err
	}
	grades, err := s.repo.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list grades")
	}
	return grades, nil
}

// Delete removes a grade from an assessment of the active term.
func (s *GradeService) Delete(ctx context.Context, id string) error {
	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return appErrors.Internal(err, "failed to load grade")
	}
	assessment, _, err := s.gradableAssessment(ctx, grade.AssessmentID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Internal(err, "failed to delete grade")
	}
	s.recorded(ctx, assessment, []string{grade.StudentID})
	return nil
}

// gradableAssessment loads the assessment and the active term, failing unless the two match.
func (s *GradeService) gradableAssessment(ctx context.Context, assessmentID string) (*models.Assessment, *models.AcademicTerm, error) {
	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		return nil, nil, err
	}
	term, err := s.periods.ActiveTerm(ctx)
	if err != nil {
		return nil, nil, err
	}
	if assessment.AcademicTermID != term.ID {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "assessment does not belong to the active academic term")
	}
	return assessment, term, nil
}

func (s *GradeService) buildGrade(ctx context.Context, assessment *models.Assessment, term *models.AcademicTerm, studentID string, score decimal.Decimal) (*models.Grade, error) {
	if score.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score cannot be negative")
	}
	if !grading.Storable(score) {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "score %s has more than %d decimal places", score.String(), grading.DisplayPlaces)
	}
	// Early rejection only; the authoritative check runs under the assessment lock.
	if score.GreaterThan(assessment.Marks) {
		return nil, appErrors.Clonef(appErrors.ErrScoreExceedsMarks, "score %s exceeds the assessment's %s marks", score.String(), assessment.Marks.String())
	}

	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clonef(appErrors.ErrNotFound, "student %s not found", studentID)
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	if _, err := s.enrollments.FindEnrollment(ctx, studentID, assessment.ClassSessionID, term.AcademicYearID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "student %s is not enrolled in the assessment's section", studentID)
		}
		return nil, appErrors.Internal(err, "failed to check enrollment")
	}

	return &models.Grade{
		AssessmentID: assessment.ID,
		StudentID:    studentID,
		Score:        score,
	}, nil
}

// checkAgainstScale runs inside the grade write transaction with the assessment row share-locked.
func checkAgainstScale(scale models.AssessmentScale, grade *models.Grade) error {
	if grade.Score.GreaterThan(scale.Marks) {
		return appErrors.Clonef(appErrors.ErrScoreExceedsMarks, "score %s exceeds the assessment's %s marks", grade.Score.String(), scale.Marks.String())
	}
	contribution := grading.WeightedContribution(&grade.Score, scale.Weight, scale.Marks)
	grade.Total = decimal.NewNullDecimal(grading.Display(contribution))
	return nil
}

func gradeWriteError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
	}
	return guardError(err, message)
}

func (s *GradeService) loadAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	assessment, err := s.assessments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Internal(err, "failed to load assessment")
	}
	return assessment, nil
}

func (s *GradeService) recorded(ctx context.Context, assessment *models.Assessment, studentIDs []string) {
	s.metrics.RecordGrades(len(studentIDs))
	s.logger.Info("grades recorded",
		zap.String("assessment_id", assessment.ID),
		zap.Int("students", len(studentIDs)),
	)
	publishOrLog(ctx, s.publisher, s.logger, events.TopicGradesRecorded, events.GradesRecorded{
		AssessmentID: assessment.ID,
		TermID:       assessment.AcademicTermID,
		SectionID:    assessment.ClassSessionID,
		SubjectID:    assessment.SubjectID,
		StudentIDs:   studentIDs,
		OccurredAt:   time.Now().UTC(),
	})
}
