package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-results-api/internal/models"
)

// ClassStudentRepository reads section enrollments. Enrollments are produced by the promotion workflow.
type ClassStudentRepository struct {
	db *sqlx.DB
}

// NewClassStudentRepository instantiates the repository.
func NewClassStudentRepository(db *sqlx.DB) *ClassStudentRepository {
	return &ClassStudentRepository{db: db}
}

// FindEnrollment returns the student's membership of a section in a year.
func (r *ClassStudentRepository) FindEnrollment(ctx context.Context, studentID, sectionID, yearID string) (*models.ClassStudent, error) {
	const query = `SELECT id, student_id, class_session_id, academic_year_id, status, promoted_to
FROM class_students WHERE student_id = $1 AND class_session_id = $2 AND academic_year_id = $3 LIMIT 1`
	var enrollment models.ClassStudent
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, sectionID, yearID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Roster lists a section's enrollments for a year with the student columns left-joined,
// so enrollments whose student row is gone come back with nil names.
func (r *ClassStudentRepository) Roster(ctx context.Context, sectionID, yearID string) ([]models.RosterEntry, error) {
	const query = `SELECT cs.id AS class_student_id, cs.student_id, s.full_name, s.photo
FROM class_students cs LEFT JOIN students s ON s.id = cs.student_id
WHERE cs.class_session_id = $1 AND cs.academic_year_id = $2
ORDER BY s.full_name ASC NULLS LAST, cs.student_id ASC`
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, sectionID, yearID); err != nil {
		return nil, fmt.Errorf("list section roster: %w", err)
	}
	return roster, nil
}
