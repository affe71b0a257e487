package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-results-api/internal/models"
)

func newGradeRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func expectScaleLock(mock sqlmock.Sqlmock, assessmentID, weight, marks string) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT weight, marks FROM assessments WHERE id = $1 FOR SHARE")).
		WithArgs(assessmentID).
		WillReturnRows(sqlmock.NewRows([]string{"weight", "marks"}).AddRow(weight, marks))
}

func TestGradeRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	created := time.Now().Add(-time.Hour)
	mock.ExpectBegin()
	expectScaleLock(mock, "assessment-1", "40", "50")
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (assessment_id, student_id) DO UPDATE SET score = EXCLUDED.score")).
		WithArgs(sqlmock.AnyArg(), "assessment-1", "student-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("grade-existing", created, time.Now()))
	mock.ExpectCommit()

	grade := &models.Grade{
		AssessmentID: "assessment-1",
		StudentID:    "student-1",
		Score:        decimal.NewFromInt(40),
	}
	var seen models.AssessmentScale
	err := repo.Upsert(context.Background(), grade, func(scale models.AssessmentScale, g *models.Grade) error {
		seen = scale
		g.Total = decimal.NewNullDecimal(decimal.NewFromInt(32))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "50", seen.Marks.String())
	assert.Equal(t, "grade-existing", grade.ID, "re-grading keeps the original row")
	assert.WithinDuration(t, created, grade.CreatedAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryUpsertCheckSeesLockedMarks(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	// marks were lowered to 50 by a committed assessment update
	mock.ExpectBegin()
	expectScaleLock(mock, "assessment-1", "40", "50")
	mock.ExpectRollback()

	exceeds := errors.New("score exceeds marks")
	err := repo.Upsert(context.Background(), &models.Grade{
		AssessmentID: "assessment-1",
		StudentID:    "student-1",
		Score:        decimal.NewFromInt(80),
	}, func(scale models.AssessmentScale, g *models.Grade) error {
		if g.Score.GreaterThan(scale.Marks) {
			return exceeds
		}
		return nil
	})
	assert.ErrorIs(t, err, exceeds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryUpsertMissingAssessment(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR SHARE").
		WithArgs("assessment-gone").
		WillReturnRows(sqlmock.NewRows([]string{"weight", "marks"}))
	mock.ExpectRollback()

	err := repo.Upsert(context.Background(), &models.Grade{AssessmentID: "assessment-gone", StudentID: "student-1"}, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryBulkUpsertIsAtomic(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	expectScaleLock(mock, "assessment-1", "40", "50")
	mock.ExpectQuery("INSERT INTO grades").
		WithArgs(sqlmock.AnyArg(), "assessment-1", "student-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("g1", now, now))
	mock.ExpectQuery("INSERT INTO grades").
		WithArgs(sqlmock.AnyArg(), "assessment-1", "student-2", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	checked := 0
	err := repo.BulkUpsert(context.Background(), "assessment-1", []*models.Grade{
		{AssessmentID: "assessment-1", StudentID: "student-1", Score: decimal.NewFromInt(10)},
		{AssessmentID: "assessment-1", StudentID: "student-2", Score: decimal.NewFromInt(12)},
	}, func(models.AssessmentScale, *models.Grade) error {
		checked++
		return nil
	})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Equal(t, 2, checked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryListForAssessments(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM grades WHERE assessment_id IN ($1, $2)")).
		WithArgs("a-1", "a-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "assessment_id", "student_id", "score", "total", "created_at", "updated_at"}).
			AddRow("g1", "a-1", "s-1", "80", "48", now, now).
			AddRow("g2", "a-2", "s-1", "40", nil, now, now))

	grades, err := repo.ListForAssessments(context.Background(), []string{"a-1", "a-2"})
	require.NoError(t, err)
	require.Len(t, grades, 2)
	assert.True(t, grades[0].Total.Valid)
	assert.False(t, grades[1].Total.Valid)

	empty, err := repo.ListForAssessments(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}
