package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-results-api/internal/models"
)

const gradeColumns = `id, assessment_id, student_id, score, total, created_at, updated_at`

// GradeRepository persists grades, one row per (assessment, student).
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository instantiates the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const upsertGrade = `INSERT INTO grades (id, assessment_id, student_id, score, total, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (assessment_id, student_id) DO UPDATE SET score = EXCLUDED.score, total = EXCLUDED.total, updated_at = EXCLUDED.updated_at
RETURNING id, created_at, updated_at`

// Upsert writes the grade, updating in place when the student already has one for the assessment.
// check runs after the assessment row is share-locked, so marks cannot change until the write commits.
func (r *GradeRepository) Upsert(ctx context.Context, grade *models.Grade, check models.GradeCheck) error {
	if err := r.save(ctx, grade.AssessmentID, []*models.Grade{grade}, check); err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	return nil
}

// BulkUpsert writes all grades of one assessment atomically.
func (r *GradeRepository) BulkUpsert(ctx context.Context, assessmentID string, grades []*models.Grade, check models.GradeCheck) error {
	return r.save(ctx, assessmentID, grades, check)
}

func (r *GradeRepository) save(ctx context.Context, assessmentID string, grades []*models.Grade, check models.GradeCheck) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grade tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var scale models.AssessmentScale
	if err := tx.GetContext(ctx, &scale, `SELECT weight, marks FROM assessments WHERE id = $1 FOR SHARE`, assessmentID); err != nil {
		return err
	}

	for _, g := range grades {
		if g.AssessmentID != assessmentID {
			return fmt.Errorf("grade for student %s targets assessment %s, expected %s", g.StudentID, g.AssessmentID, assessmentID)
		}
		if check != nil {
			if err := check(scale, g); err != nil {
				return err
			}
		}
		if err := upsertGradeRow(ctx, tx, g); err != nil {
			return fmt.Errorf("upsert grade for student %s: %w", g.StudentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grade tx: %w", err)
	}
	return nil
}

func upsertGradeRow(ctx context.Context, q sqlx.QueryerContext, grade *models.Grade) error {
	id := grade.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	row := q.QueryRowxContext(ctx, upsertGrade, id, grade.AssessmentID, grade.StudentID, grade.Score, grade.Total, now)
	return row.Scan(&grade.ID, &grade.CreatedAt, &grade.UpdatedAt)
}

// FindByID loads a grade.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	query := `SELECT ` + gradeColumns + ` FROM grades WHERE id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// ListByAssessment returns an assessment's grades.
func (r *GradeRepository) ListByAssessment(ctx context.Context, assessmentID string) ([]models.Grade, error) {
	query := `SELECT ` + gradeColumns + ` FROM grades WHERE assessment_id = $1 ORDER BY student_id ASC`
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, assessmentID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// ListForAssessments returns every grade recorded against the given assessments.
func (r *GradeRepository) ListForAssessments(ctx context.Context, assessmentIDs []string) ([]models.Grade, error) {
	if len(assessmentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+gradeColumns+` FROM grades WHERE assessment_id IN (?)`, assessmentIDs)
	if err != nil {
		return nil, fmt.Errorf("build grades query: %w", err)
	}
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list grades for assessments: %w", err)
	}
	return grades, nil
}

// Delete removes a grade.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM grades WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return nil
}
