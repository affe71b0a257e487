package service

import (
	"context"
	"encoding/json"
	"path"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-results-api/internal/models"
	appErrors "github.com/noah-isme/school-results-api/pkg/errors"
)

type mockResultRepo struct {
	assessments []models.ScoredAssessment
	calls       int
}

func (m *mockResultRepo) SectionAssessments(ctx context.Context, termID, sectionID, subjectID string) ([]models.ScoredAssessment, error) {
	m.calls++
	var out []models.ScoredAssessment
	for _, a := range m.assessments {
		if a.AcademicTermID != termID || a.ClassSessionID != sectionID {
			continue
		}
		if subjectID != "" && a.SubjectID != subjectID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type stubGradeLister []models.Grade

func (s stubGradeLister) ListForAssessments(ctx context.Context, ids []string) ([]models.Grade, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.Grade
	for _, g := range s {
		if wanted[g.AssessmentID] {
			out = append(out, g)
		}
	}
	return out, nil
}

type stubRoster []models.RosterEntry

func (s stubRoster) Roster(ctx context.Context, sectionID, yearID string) ([]models.RosterEntry, error) {
	return s, nil
}

type memoryCacheRepo struct {
	items map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	removed := 0
	for key := range m.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.items, key)
			removed++
		}
	}
	return removed, nil
}

func scored(id, subjectID, subjectName string, weight, marks int64) models.ScoredAssessment {
	return models.ScoredAssessment{
		Assessment: models.Assessment{
			ID:             id,
			Name:           id,
			Weight:         decimal.NewFromInt(weight),
			Marks:          decimal.NewFromInt(marks),
			AcademicTermID: "term-1",
			ClassSessionID: "section-1",
			SubjectID:      subjectID,
		},
		SubjectName: subjectName,
		SubjectCode: subjectName[:3],
	}
}

func scoreOf(assessmentID, studentID string, score int64) models.Grade {
	return models.Grade{AssessmentID: assessmentID, StudentID: studentID, Score: decimal.NewFromInt(score)}
}

func strPtr(s string) *string { return &s }

type resultFixture struct {
	svc     *ResultService
	results *mockResultRepo
	cache   *memoryCacheRepo
	terms   *stubTermLookup
	metrics *MetricsService
}

func newResultFixture() *resultFixture {
	results := &mockResultRepo{assessments: []models.ScoredAssessment{
		scored("math-ca", "subject-math", "Mathematics", 40, 50),
		scored("math-exam", "subject-math", "Mathematics", 60, 100),
		scored("eng-exam", "subject-eng", "English", 100, 100),
	}}
	grades := stubGradeLister{
		scoreOf("math-ca", "student-1", 40),
		scoreOf("math-exam", "student-1", 75),
		scoreOf("eng-exam", "student-1", 80),
		scoreOf("math-ca", "student-2", 50),
		scoreOf("eng-exam", "student-2", 90),
		scoreOf("unrelated", "student-3", 100),
	}
	roster := stubRoster{
		{ClassStudentID: "cs-1", StudentID: "student-1", FullName: strPtr("Ada Obi")},
		{ClassStudentID: "cs-2", StudentID: "student-2", FullName: strPtr("Bayo Ade")},
		{ClassStudentID: "cs-3", StudentID: "student-3", FullName: strPtr("Chi Eze")},
		{ClassStudentID: "cs-4", StudentID: "student-4"},
	}
	active := activeTermFixture()
	terms := &stubTermLookup{terms: map[string]*models.AcademicTerm{"term-1": active}, active: active}
	sections := stubSections{"section-1": {ID: "section-1", Name: "JSS1 A"}}
	subjects := stubSubjects{
		"subject-math": {ID: "subject-math", Name: "Mathematics"},
		"subject-eng":  {ID: "subject-eng", Name: "English"},
	}
	cacheRepo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, nil, true)

	return &resultFixture{
		svc:     NewResultService(results, grades, roster, standardBands(), sections, subjects, terms, cache, metrics, time.Minute, nil),
		results: results,
		cache:   cacheRepo,
		terms:   terms,
		metrics: metrics,
	}
}

func TestResultServiceClassResults(t *testing.T) {
	f := newResultFixture()

	sheet, err := f.svc.ClassResults(context.Background(), "section-1", "")
	require.NoError(t, err)

	assert.Equal(t, "term-1", sheet.AcademicTerm.ID)
	require.Len(t, sheet.Subjects, 2)
	assert.Equal(t, "English", sheet.Subjects[0].Name)
	assert.Equal(t, "Mathematics", sheet.Subjects[1].Name)
	assert.Equal(t, 2, sheet.Subjects[1].Assessments)

	require.Len(t, sheet.Students, 3, "enrollments without a student record are skipped")

	first := sheet.Students[0]
	assert.Equal(t, "student-1", first.StudentID)
	assert.Equal(t, "157", first.TotalScore.String())
	assert.Equal(t, "78.5", first.Average.String())
	assert.Equal(t, "A", first.Grade)
	assert.Equal(t, 1, first.Position)
	assert.Equal(t, "1st", first.PositionLabel)
	require.Len(t, first.SubjectScores, 2)
	assert.Equal(t, "80", first.SubjectScores[0].Score.String())
	assert.Equal(t, "77", first.SubjectScores[1].Score.String())

	second := sheet.Students[1]
	assert.Equal(t, "student-2", second.StudentID)
	assert.Equal(t, "130", second.TotalScore.String())
	assert.Equal(t, "B", second.Grade)
	assert.Equal(t, "C", second.SubjectScores[1].Grade, "missing exam grade contributes zero")
	assert.Equal(t, "2nd", second.PositionLabel)

	third := sheet.Students[2]
	assert.Equal(t, "student-3", third.StudentID)
	assert.True(t, third.TotalScore.IsZero())
	assert.Equal(t, "F", third.Grade)
	assert.Equal(t, "3rd", third.PositionLabel)
}

func TestResultServiceSubjectResults(t *testing.T) {
	f := newResultFixture()

	sheet, err := f.svc.SubjectResults(context.Background(), "section-1", "subject-math", "term-1")
	require.NoError(t, err)
	require.Len(t, sheet.Subjects, 1)
	require.Len(t, sheet.Students, 3)
	assert.Equal(t, "77", sheet.Students[0].TotalScore.String())
	assert.Equal(t, "40", sheet.Students[1].TotalScore.String())
	assert.Equal(t, "C", sheet.Students[1].Grade)

	_, err = f.svc.SubjectResults(context.Background(), "section-1", "subject-x", "term-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestResultServiceTiesGetDistinctPositions(t *testing.T) {
	f := newResultFixture()
	f.svc.grades = stubGradeLister{
		scoreOf("eng-exam", "student-2", 70),
		scoreOf("eng-exam", "student-1", 70),
	}

	sheet, err := f.svc.SubjectResults(context.Background(), "section-1", "subject-eng", "term-1")
	require.NoError(t, err)
	assert.Equal(t, "student-1", sheet.Students[0].StudentID)
	assert.Equal(t, 1, sheet.Students[0].Position)
	assert.Equal(t, "student-2", sheet.Students[1].StudentID)
	assert.Equal(t, 2, sheet.Students[1].Position)
}

func TestResultServiceStudentTermResults(t *testing.T) {
	f := newResultFixture()

	result, err := f.svc.StudentTermResults(context.Background(), "student-2", "section-1", "")
	require.NoError(t, err)
	assert.Equal(t, 3, result.ClassSize)
	assert.Equal(t, 2, result.Result.Position)
	assert.Equal(t, "Bayo Ade", result.Result.FullName)

	_, err = f.svc.StudentTermResults(context.Background(), "student-4", "section-1", "")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestResultServiceRequiresActiveTermWhenUnspecified(t *testing.T) {
	f := newResultFixture()
	f.terms.active = nil

	_, err := f.svc.ClassResults(context.Background(), "section-1", "")
	assert.ErrorIs(t, err, appErrors.ErrNoActivePeriod)
}

func TestResultServiceCachesAndInvalidates(t *testing.T) {
	f := newResultFixture()
	ctx := context.Background()

	_, err := f.svc.ClassResults(ctx, "section-1", "term-1")
	require.NoError(t, err)
	cached, err := f.svc.ClassResults(ctx, "section-1", "term-1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.results.calls)
	assert.Equal(t, "157", cached.Students[0].TotalScore.String())
	assert.Contains(t, f.cache.items, "results:term-1:section-1:class")

	invalidator := NewResultsCacheInvalidator(f.svc.cache, nil)
	payload, err := json.Marshal(map[string]interface{}{"term_id": "term-1", "section_id": "section-1"})
	require.NoError(t, err)
	require.NoError(t, invalidator.onGradesRecorded(ctx, payload))
	assert.Empty(t, f.cache.items)

	_, err = f.svc.ClassResults(ctx, "section-1", "term-1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.results.calls)
	assert.Equal(t, uint64(2), f.metrics.Snapshot().ResultsComputed)
}
