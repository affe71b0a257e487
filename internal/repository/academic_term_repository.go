package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/school-results-api/internal/models"
)

const academicTermColumns = `id, name, status, start_date, end_date, academic_year_id, created_at, updated_at`

// AcademicTermRepository handles persistence for academic terms.
type AcademicTermRepository struct {
	db *sqlx.DB
}

// NewAcademicTermRepository instantiates the repository.
func NewAcademicTermRepository(db *sqlx.DB) *AcademicTermRepository {
	return &AcademicTermRepository{db: db}
}

// List returns terms matching the filter, newest first.
func (r *AcademicTermRepository) List(ctx context.Context, filter models.AcademicTermFilter) ([]models.AcademicTerm, int, error) {
	base := "FROM academic_terms WHERE 1=1"
	var args []interface{}
	if filter.AcademicYearID != "" {
		base += fmt.Sprintf(" AND academic_year_id = $%d", len(args)+1)
		args = append(args, filter.AcademicYearID)
	}
	if filter.Status != "" {
		base += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}

	limit, offset := pageBounds(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY start_date DESC LIMIT %d OFFSET %d", academicTermColumns, base, limit, offset)

	var terms []models.AcademicTerm
	if err := r.db.SelectContext(ctx, &terms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list academic terms: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count academic terms: %w", err)
	}
	return terms, total, nil
}

// FindByID loads a term by identifier.
func (r *AcademicTermRepository) FindByID(ctx context.Context, id string) (*models.AcademicTerm, error) {
	query := `SELECT ` + academicTermColumns + ` FROM academic_terms WHERE id = $1`
	var term models.AcademicTerm
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		return nil, err
	}
	return &term, nil
}

// ListByYear returns every term of a year ordered by start date.
func (r *AcademicTermRepository) ListByYear(ctx context.Context, yearID string) ([]models.AcademicTerm, error) {
	query := `SELECT ` + academicTermColumns + ` FROM academic_terms WHERE academic_year_id = $1 ORDER BY start_date ASC`
	var terms []models.AcademicTerm
	if err := r.db.SelectContext(ctx, &terms, query, yearID); err != nil {
		return nil, fmt.Errorf("list academic terms by year: %w", err)
	}
	return terms, nil
}

// ListByStatus returns terms currently recorded with any of the statuses.
func (r *AcademicTermRepository) ListByStatus(ctx context.Context, statuses ...models.PeriodStatus) ([]models.AcademicTerm, error) {
	query := `SELECT ` + academicTermColumns + ` FROM academic_terms WHERE status = ANY($1) ORDER BY start_date ASC`
	var terms []models.AcademicTerm
	if err := r.db.SelectContext(ctx, &terms, query, pq.Array(statusStrings(statuses))); err != nil {
		return nil, fmt.Errorf("list academic terms by status: %w", err)
	}
	return terms, nil
}

// FindActive returns the recorded Active term.
func (r *AcademicTermRepository) FindActive(ctx context.Context) (*models.AcademicTerm, error) {
	query := `SELECT ` + academicTermColumns + ` FROM academic_terms WHERE status = $1 ORDER BY start_date DESC LIMIT 1`
	var term models.AcademicTerm
	if err := r.db.GetContext(ctx, &term, query, models.PeriodStatusActive); err != nil {
		return nil, err
	}
	return &term, nil
}

// ExistsByName checks name uniqueness, case-insensitively.
func (r *AcademicTermRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	query := "SELECT 1 FROM academic_terms WHERE LOWER(name) = LOWER($1)"
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check academic term name: %w", err)
	}
	return true, nil
}

// Create inserts a term.
func (r *AcademicTermRepository) Create(ctx context.Context, term *models.AcademicTerm) error {
	if term.ID == "" {
		term.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if term.CreatedAt.IsZero() {
		term.CreatedAt = now
	}
	term.UpdatedAt = now

	const query = `INSERT INTO academic_terms (id, name, status, start_date, end_date, academic_year_id, created_at, updated_at) VALUES (:id, :name, :status, :start_date, :end_date, :academic_year_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, term); err != nil {
		return fmt.Errorf("create academic term: %w", err)
	}
	return nil
}

// Update modifies a term.
func (r *AcademicTermRepository) Update(ctx context.Context, term *models.AcademicTerm) error {
	term.UpdatedAt = time.Now().UTC()
	const query = `UPDATE academic_terms SET name = :name, status = :status, start_date = :start_date, end_date = :end_date, academic_year_id = :academic_year_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, term); err != nil {
		return fmt.Errorf("update academic term: %w", err)
	}
	return nil
}

// TransitionStatus moves a term from one status to another only if it still holds from.
func (r *AcademicTermRepository) TransitionStatus(ctx context.Context, id string, from, to models.PeriodStatus) (bool, error) {
	const query = `UPDATE academic_terms SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("transition academic term: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition academic term rows: %w", err)
	}
	return n > 0, nil
}

// End closes a term now: the end date is shortened and the status set Inactive.
func (r *AcademicTermRepository) End(ctx context.Context, id string, endDate time.Time) error {
	const query = `UPDATE academic_terms SET end_date = $1, status = $2, updated_at = $3 WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, endDate, models.PeriodStatusInactive, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("end academic term: %w", err)
	}
	return nil
}

// Delete removes a term.
func (r *AcademicTermRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM academic_terms WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete academic term: %w", err)
	}
	return nil
}

// CountAssessments returns the number of assessments scheduled in the term.
func (r *AcademicTermRepository) CountAssessments(ctx context.Context, id string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM assessments WHERE academic_term_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count term assessments: %w", err)
	}
	return count, nil
}
