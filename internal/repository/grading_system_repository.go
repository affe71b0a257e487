package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-results-api/internal/models"
)

const gradingSystemColumns = `id, min_score, max_score, grade, remarks, created_at, updated_at`

// GradingSystemRepository persists grade bands.
type GradingSystemRepository struct {
	db *sqlx.DB
}

// NewGradingSystemRepository instantiates the repository.
func NewGradingSystemRepository(db *sqlx.DB) *GradingSystemRepository {
	return &GradingSystemRepository{db: db}
}

// List returns every band ordered by minimum score.
func (r *GradingSystemRepository) List(ctx context.Context) ([]models.GradingSystem, error) {
	query := `SELECT ` + gradingSystemColumns + ` FROM grading_systems ORDER BY min_score ASC`
	var bands []models.GradingSystem
	if err := r.db.SelectContext(ctx, &bands, query); err != nil {
		return nil, fmt.Errorf("list grading systems: %w", err)
	}
	return bands, nil
}

// FindByID loads a band.
func (r *GradingSystemRepository) FindByID(ctx context.Context, id string) (*models.GradingSystem, error) {
	query := `SELECT ` + gradingSystemColumns + ` FROM grading_systems WHERE id = $1`
	var band models.GradingSystem
	if err := r.db.GetContext(ctx, &band, query, id); err != nil {
		return nil, err
	}
	return &band, nil
}

// SaveWithGuard writes the band while holding the band-set lock. guard receives the full current
// band set and aborts the write by returning an error.
func (r *GradingSystemRepository) SaveWithGuard(ctx context.Context, band *models.GradingSystem, create bool, guard func([]models.GradingSystem) error) error {
	if band.ID == "" {
		band.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if create && band.CreatedAt.IsZero() {
		band.CreatedAt = now
	}
	band.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grading system tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := lockKey(ctx, tx, "grading_systems"); err != nil {
		return err
	}

	var existing []models.GradingSystem
	if err := tx.SelectContext(ctx, &existing, `SELECT `+gradingSystemColumns+` FROM grading_systems ORDER BY min_score ASC`); err != nil {
		return fmt.Errorf("load grading systems: %w", err)
	}
	if err := guard(existing); err != nil {
		return err
	}

	if create {
		const insert = `INSERT INTO grading_systems (id, min_score, max_score, grade, remarks, created_at, updated_at) VALUES (:id, :min_score, :max_score, :grade, :remarks, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insert, band); err != nil {
			return fmt.Errorf("create grading system: %w", err)
		}
	} else {
		const update = `UPDATE grading_systems SET min_score = :min_score, max_score = :max_score, grade = :grade, remarks = :remarks, updated_at = :updated_at WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, update, band); err != nil {
			return fmt.Errorf("update grading system: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grading system tx: %w", err)
	}
	return nil
}

// Delete removes a band, reporting whether a row existed.
func (r *GradingSystemRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM grading_systems WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete grading system: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete grading system rows: %w", err)
	}
	return n > 0, nil
}
