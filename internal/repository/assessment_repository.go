package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/school-results-api/internal/models"
)

const assessmentColumns = `id, name, description, weight, marks, academic_term_id, class_session_id, subject_id, teacher_id, created_at, updated_at`

// AssessmentRepository persists assessments.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository instantiates the repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// List returns assessments matching the filter ordered by creation.
func (r *AssessmentRepository) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error) {
	var conditions []string
	var args []interface{}
	add := func(column, value string) {
		if value == "" {
			return
		}
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}
	add("academic_term_id", filter.AcademicTermID)
	add("class_session_id", filter.ClassSessionID)
	add("subject_id", filter.SubjectID)
	add("teacher_id", filter.TeacherID)

	query := "SELECT " + assessmentColumns + " FROM assessments WHERE 1=1"
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	var assessments []models.Assessment
	if err := r.db.SelectContext(ctx, &assessments, query, args...); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return assessments, nil
}

// FindByID loads an assessment.
func (r *AssessmentRepository) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = $1`
	var assessment models.Assessment
	if err := r.db.GetContext(ctx, &assessment, query, id); err != nil {
		return nil, err
	}
	return &assessment, nil
}

const refreshGradeTotals = `UPDATE grades SET total = ROUND(score / $1 * $2, 2) WHERE assessment_id = $3`

// SaveInScope inserts (create) or updates the assessment inside one transaction holding the lock
// for its (term, section, subject) scope. guard sees the scope state excluding the assessment
// itself and aborts the write by returning an error.
func (r *AssessmentRepository) SaveInScope(ctx context.Context, a *models.Assessment, create bool, guard func(models.AssessmentScopeState) error) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if create && a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assessment tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := lockKey(ctx, tx, scopeLockKey(a.Scope())); err != nil {
		return err
	}
	if !create {
		// Row lock orders this write against grade writers holding FOR SHARE on the assessment.
		var id string
		if err := tx.GetContext(ctx, &id, `SELECT id FROM assessments WHERE id = $1 FOR UPDATE`, a.ID); err != nil {
			return err
		}
	}

	state, err := r.scopeState(ctx, tx, a, create)
	if err != nil {
		return err
	}
	if err := guard(state); err != nil {
		return err
	}

	if create {
		const insert = `INSERT INTO assessments (id, name, description, weight, marks, academic_term_id, class_session_id, subject_id, teacher_id, created_at, updated_at)
VALUES (:id, :name, :description, :weight, :marks, :academic_term_id, :class_session_id, :subject_id, :teacher_id, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insert, a); err != nil {
			return fmt.Errorf("create assessment: %w", err)
		}
	} else {
		const update = `UPDATE assessments SET name = :name, description = :description, weight = :weight, marks = :marks, academic_term_id = :academic_term_id,
class_session_id = :class_session_id, subject_id = :subject_id, teacher_id = :teacher_id, updated_at = :updated_at WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, update, a); err != nil {
			return fmt.Errorf("update assessment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, refreshGradeTotals, a.Marks, a.Weight, a.ID); err != nil {
			return fmt.Errorf("refresh grade totals: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assessment tx: %w", err)
	}
	return nil
}

func (r *AssessmentRepository) scopeState(ctx context.Context, tx *sqlx.Tx, a *models.Assessment, create bool) (models.AssessmentScopeState, error) {
	var state models.AssessmentScopeState

	const sumQuery = `SELECT COALESCE(SUM(weight), 0) FROM assessments WHERE academic_term_id = $1 AND class_session_id = $2 AND subject_id = $3 AND id <> $4`
	if err := tx.GetContext(ctx, &state.WeightTotal, sumQuery, a.AcademicTermID, a.ClassSessionID, a.SubjectID, a.ID); err != nil {
		return state, fmt.Errorf("sum assessment weights: %w", err)
	}

	const nameQuery = `SELECT EXISTS (SELECT 1 FROM assessments WHERE academic_term_id = $1 AND class_session_id = $2 AND subject_id = $3 AND LOWER(name) = LOWER($4) AND id <> $5)`
	if err := tx.GetContext(ctx, &state.NameTaken, nameQuery, a.AcademicTermID, a.ClassSessionID, a.SubjectID, a.Name, a.ID); err != nil {
		return state, fmt.Errorf("check assessment name: %w", err)
	}

	if !create {
		if err := tx.GetContext(ctx, &state.MaxGradedScore, `SELECT MAX(score) FROM grades WHERE assessment_id = $1`, a.ID); err != nil {
			return state, fmt.Errorf("max graded score: %w", err)
		}
	}
	return state, nil
}

// WeightSummary returns the weight total and assessment count of a scope.
func (r *AssessmentRepository) WeightSummary(ctx context.Context, scope models.AssessmentScope) (decimal.Decimal, int, error) {
	const query = `SELECT COALESCE(SUM(weight), 0) AS total, COUNT(*) AS count FROM assessments WHERE academic_term_id = $1 AND class_session_id = $2 AND subject_id = $3`
	var row struct {
		Total decimal.Decimal `db:"total"`
		Count int             `db:"count"`
	}
	if err := r.db.GetContext(ctx, &row, query, scope.AcademicTermID, scope.ClassSessionID, scope.SubjectID); err != nil {
		return decimal.Zero, 0, fmt.Errorf("summarise assessment weights: %w", err)
	}
	return row.Total, row.Count, nil
}

// DeleteIfUngraded removes the assessment unless grades reference it, reporting whether it was removed.
func (r *AssessmentRepository) DeleteIfUngraded(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM assessments WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM grades WHERE assessment_id = $1)`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete assessment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete assessment rows: %w", err)
	}
	return n > 0, nil
}

func scopeLockKey(scope models.AssessmentScope) string {
	return "assessments:" + scope.AcademicTermID + ":" + scope.ClassSessionID + ":" + scope.SubjectID
}
