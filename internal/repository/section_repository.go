package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-results-api/internal/models"
)

// SectionRepository reads class sessions.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository instantiates the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// FindByID loads a section with its class name.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	const query = `SELECT cs.id, cs.name, cs.capacity, cs.class_id, c.name AS class_name, cs.created_at
FROM class_sessions cs JOIN classes c ON c.id = cs.class_id WHERE cs.id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}
