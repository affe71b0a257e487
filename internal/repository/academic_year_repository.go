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

const academicYearColumns = `id, name, status, start_date, end_date, created_at, updated_at`

// AcademicYearRepository handles persistence for academic years.
type AcademicYearRepository struct {
	db *sqlx.DB
}

// NewAcademicYearRepository instantiates the repository.
func NewAcademicYearRepository(db *sqlx.DB) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

// List returns years newest first.
func (r *AcademicYearRepository) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error) {
	base := "FROM academic_years WHERE 1=1"
	var args []interface{}
	if filter.Status != "" {
		base += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}

	limit, offset := pageBounds(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY start_date DESC LIMIT %d OFFSET %d", academicYearColumns, base, limit, offset)

	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list academic years: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count academic years: %w", err)
	}
	return years, total, nil
}

// FindByID loads a year by identifier.
func (r *AcademicYearRepository) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	query := `SELECT ` + academicYearColumns + ` FROM academic_years WHERE id = $1`
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// ListByStatus returns years currently recorded with any of the statuses.
func (r *AcademicYearRepository) ListByStatus(ctx context.Context, statuses ...models.PeriodStatus) ([]models.AcademicYear, error) {
	query := `SELECT ` + academicYearColumns + ` FROM academic_years WHERE status = ANY($1) ORDER BY start_date ASC`
	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query, pq.Array(statusStrings(statuses))); err != nil {
		return nil, fmt.Errorf("list academic years by status: %w", err)
	}
	return years, nil
}

// FindActive returns the recorded Active year.
func (r *AcademicYearRepository) FindActive(ctx context.Context) (*models.AcademicYear, error) {
	query := `SELECT ` + academicYearColumns + ` FROM academic_years WHERE status = $1 ORDER BY start_date DESC LIMIT 1`
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, models.PeriodStatusActive); err != nil {
		return nil, err
	}
	return &year, nil
}

// ExistsByName checks name uniqueness, case-insensitively.
func (r *AcademicYearRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	query := "SELECT 1 FROM academic_years WHERE LOWER(name) = LOWER($1)"
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
		return false, fmt.Errorf("check academic year name: %w", err)
	}
	return true, nil
}

// Create inserts a year.
func (r *AcademicYearRepository) Create(ctx context.Context, year *models.AcademicYear) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if year.CreatedAt.IsZero() {
		year.CreatedAt = now
	}
	year.UpdatedAt = now

	const query = `INSERT INTO academic_years (id, name, status, start_date, end_date, created_at, updated_at) VALUES (:id, :name, :status, :start_date, :end_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("create academic year: %w", err)
	}
	return nil
}

// Update modifies a year.
func (r *AcademicYearRepository) Update(ctx context.Context, year *models.AcademicYear) error {
	year.UpdatedAt = time.Now().UTC()
	const query = `UPDATE academic_years SET name = :name, status = :status, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("update academic year: %w", err)
	}
	return nil
}

// TransitionStatus moves a year from one status to another only if it still holds from.
// It reports whether this call performed the write.
func (r *AcademicYearRepository) TransitionStatus(ctx context.Context, id string, from, to models.PeriodStatus) (bool, error) {
	const query = `UPDATE academic_years SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("transition academic year: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition academic year rows: %w", err)
	}
	return n > 0, nil
}

// End shortens the year to endDate and closes every term it owns in one transaction.
// Terms are clamped so none extends past the new end date.
func (r *AcademicYearRepository) End(ctx context.Context, id string, endDate time.Time, status models.PeriodStatus) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin end year tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE academic_years SET end_date = $1, status = $2, updated_at = $3 WHERE id = $4`, endDate, status, now, id); err != nil {
		return fmt.Errorf("end academic year: %w", err)
	}
	const closeTerms = `UPDATE academic_terms SET start_date = LEAST(start_date, $1), end_date = LEAST(end_date, $1), status = $2, updated_at = $3 WHERE academic_year_id = $4 AND (status <> $2 OR end_date > $1)`
	if _, err := tx.ExecContext(ctx, closeTerms, endDate, models.PeriodStatusInactive, now, id); err != nil {
		return fmt.Errorf("close academic terms: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit end year tx: %w", err)
	}
	return nil
}

// Delete removes a year; its terms cascade.
func (r *AcademicYearRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM academic_years WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete academic year: %w", err)
	}
	return nil
}

func statusStrings(statuses []models.PeriodStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
