package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-results-api/internal/models"
)

// ResultRepository holds the typed read queries behind the results views.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository instantiates the repository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// SectionAssessments returns the assessments of a section in a term with subject labels.
// subjectID narrows to one subject when set.
func (r *ResultRepository) SectionAssessments(ctx context.Context, termID, sectionID, subjectID string) ([]models.ScoredAssessment, error) {
	query := `SELECT a.id, a.name, a.description, a.weight, a.marks, a.academic_term_id, a.class_session_id, a.subject_id, a.teacher_id,
a.created_at, a.updated_at, s.name AS subject_name, s.code AS subject_code
FROM assessments a JOIN subjects s ON s.id = a.subject_id
WHERE a.academic_term_id = $1 AND a.class_session_id = $2`
	args := []interface{}{termID, sectionID}
	if subjectID != "" {
		query += " AND a.subject_id = $3"
		args = append(args, subjectID)
	}
	query += " ORDER BY s.name ASC, a.created_at ASC"

	var rows []models.ScoredAssessment
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list section assessments: %w", err)
	}
	return rows, nil
}
