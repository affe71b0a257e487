package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-results-api/internal/models"
	appErrors "github.com/noah-isme/school-results-api/pkg/errors"
	"github.com/noah-isme/school-results-api/pkg/events"
)

type mockAssessmentRepo struct {
	items      map[string]*models.Assessment
	maxGraded  map[string]decimal.Decimal
	graded     map[string]bool
	lastState  models.AssessmentScopeState
	nextID     int
	saveErr    error
	summaryErr error
}

func newMockAssessmentRepo() *mockAssessmentRepo {
	return &mockAssessmentRepo{
		items:     make(map[string]*models.Assessment),
		maxGraded: make(map[string]decimal.Decimal),
		graded:    make(map[string]bool),
	}
}

func (m *mockAssessmentRepo) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error) {
	var out []models.Assessment
	for _, a := range m.items {
		if filter.SubjectID != "" && a.SubjectID != filter.SubjectID {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *mockAssessmentRepo) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	if a, ok := m.items[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssessmentRepo) SaveInScope(ctx context.Context, a *models.Assessment, create bool, guard func(models.AssessmentScopeState) error) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	state := models.AssessmentScopeState{WeightTotal: decimal.Zero}
	for _, other := range m.items {
		if other.Scope() != a.Scope() || (!create && other.ID == a.ID) {
			continue
		}
		state.WeightTotal = state.WeightTotal.Add(other.Weight)
		if strings.EqualFold(other.Name, a.Name) {
			state.NameTaken = true
		}
	}
	if !create {
		if score, ok := m.maxGraded[a.ID]; ok {
			state.MaxGradedScore = decimal.NewNullDecimal(score)
		}
	}
	m.lastState = state
	if err := guard(state); err != nil {
		return err
	}
	if create {
		m.nextID++
		a.ID = fmt.Sprintf("assessment-%d", m.nextID)
	}
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockAssessmentRepo) WeightSummary(ctx context.Context, scope models.AssessmentScope) (decimal.Decimal, int, error) {
	if m.summaryErr != nil {
		return decimal.Zero, 0, m.summaryErr
	}
	total := decimal.Zero
	count := 0
	for _, a := range m.items {
		if a.Scope() == scope {
			total = total.Add(a.Weight)
			count++
		}
	}
	return total, count, nil
}

func (m *mockAssessmentRepo) DeleteIfUngraded(ctx context.Context, id string) (bool, error) {
	if m.graded[id] {
		return false, nil
	}
	delete(m.items, id)
	return true, nil
}

type stubTermLookup struct {
	terms  map[string]*models.AcademicTerm
	active *models.AcademicTerm
}

func (s *stubTermLookup) GetTerm(ctx context.Context, id string) (*models.AcademicTerm, error) {
	if t, ok := s.terms[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "academic term not found")
}

func (s *stubTermLookup) ActiveTerm(ctx context.Context) (*models.AcademicTerm, error) {
	if s.active == nil {
		return nil, appErrors.Clone(appErrors.ErrNoActivePeriod, "no active academic term")
	}
	cp := *s.active
	return &cp, nil
}

type stubSections map[string]models.Section

func (s stubSections) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if sec, ok := s[id]; ok {
		return &sec, nil
	}
	return nil, sql.ErrNoRows
}

type stubSubjects map[string]models.Subject

func (s stubSubjects) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if sub, ok := s[id]; ok {
		return &sub, nil
	}
	return nil, sql.ErrNoRows
}

func activeTermFixture() *models.AcademicTerm {
	return &models.AcademicTerm{ID: "term-1", Name: "First Term", Status: models.PeriodStatusActive, AcademicYearID: "year-1"}
}

func newTestAssessmentService(repo *mockAssessmentRepo, pub eventPublisher) *AssessmentService {
	active := activeTermFixture()
	terms := &stubTermLookup{
		terms: map[string]*models.AcademicTerm{
			"term-1":   active,
			"term-old": {ID: "term-old", Name: "Old Term", Status: models.PeriodStatusInactive, AcademicYearID: "year-0"},
		},
		active: active,
	}
	sections := stubSections{
		"section-1": {ID: "section-1", Name: "JSS1 A"},
		"section-2": {ID: "section-2", Name: "JSS1 B"},
	}
	subjects := stubSubjects{"subject-1": {ID: "subject-1", Name: "Mathematics", Code: "MTH"}}
	return NewAssessmentService(repo, terms, sections, subjects, pub, nil, nil)
}

func assessmentRequest(name string, weight, marks int64) AssessmentRequest {
	return AssessmentRequest{
		Name:           name,
		AcademicTermID: "term-1",
		ClassSessionID: "section-1",
		SubjectID:      "subject-1",
		TeacherID:      "teacher-1",
		Weight:         decimal.NewFromInt(weight),
		Marks:          decimal.NewFromInt(marks),
	}
}

func TestAssessmentServiceWeightBudget(t *testing.T) {
	repo := newMockAssessmentRepo()
	pub := &recordingPublisher{}
	svc := newTestAssessmentService(repo, pub)
	ctx := context.Background()

	_, err := svc.Create(ctx, assessmentRequest("Test 1", 60, 100))
	require.NoError(t, err)
	_, err = svc.Create(ctx, assessmentRequest("Exam", 40, 100))
	require.NoError(t, err)

	_, err = svc.Create(ctx, assessmentRequest("Quiz", 15, 20))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidWeights)
	assert.Contains(t, err.Error(), "current total is 100.00")
	assert.True(t, repo.lastState.WeightTotal.Equal(decimal.NewFromInt(100)))
	assert.Len(t, repo.items, 2)

	assert.Equal(t, []string{events.TopicAssessmentsChanged, events.TopicAssessmentsChanged}, pub.topics)
}

func TestAssessmentServiceUpdateExcludesOwnWeight(t *testing.T) {
	repo := newMockAssessmentRepo()
	svc := newTestAssessmentService(repo, &recordingPublisher{})
	ctx := context.Background()

	first, err := svc.Create(ctx, assessmentRequest("Test 1", 60, 100))
	require.NoError(t, err)
	_, err = svc.Create(ctx, assessmentRequest("Exam", 40, 100))
	require.NoError(t, err)

	req := assessmentRequest("Test 1", 55, 100)
	updated, err := svc.Update(ctx, first.ID, req)
	require.NoError(t, err)
	assert.True(t, updated.Weight.Equal(decimal.NewFromInt(55)))
	assert.True(t, repo.lastState.WeightTotal.Equal(decimal.NewFromInt(40)))

	_, err = svc.Update(ctx, first.ID, assessmentRequest("Test 1", 61, 100))
	assert.ErrorIs(t, err, appErrors.ErrInvalidWeights)
}

func TestAssessmentServiceUpdateAcrossSectionsReportsPreviousScope(t *testing.T) {
	repo := newMockAssessmentRepo()
	pub := &recordingPublisher{}
	svc := newTestAssessmentService(repo, pub)
	ctx := context.Background()

	created, err := svc.Create(ctx, assessmentRequest("Test 1", 30, 50))
	require.NoError(t, err)

	req := assessmentRequest("Test 1", 30, 50)
	req.ClassSessionID = "section-2"
	_, err = svc.Update(ctx, created.ID, req)
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.ID, assessmentRequest("Test 1", 30, 50))
	require.NoError(t, err)
	_, err = svc.Update(ctx, created.ID, assessmentRequest("Test 1", 25, 50))
	require.NoError(t, err)

	require.Len(t, pub.payloads, 4)
	moved, ok := pub.payloads[1].(events.AssessmentChanged)
	require.True(t, ok)
	assert.Equal(t, "section-2", moved.SectionID)
	assert.Equal(t, "section-1", moved.PreviousSectionID)
	assert.Equal(t, "term-1", moved.PreviousTermID)

	back := pub.payloads[2].(events.AssessmentChanged)
	assert.Equal(t, "section-1", back.SectionID)
	assert.Equal(t, "section-2", back.PreviousSectionID)

	inPlace := pub.payloads[3].(events.AssessmentChanged)
	assert.Empty(t, inPlace.PreviousSectionID)
	assert.Empty(t, inPlace.PreviousTermID)
}

func TestAssessmentServiceFractionalWeightsReachExactlyHundred(t *testing.T) {
	repo := newMockAssessmentRepo()
	svc := newTestAssessmentService(repo, nil)
	ctx := context.Background()

	third := assessmentRequest("CA 1", 0, 10)
	third.Weight = decimal.RequireFromString("33.33")
	_, err := svc.Create(ctx, third)
	require.NoError(t, err)
	third.Name = "CA 2"
	_, err = svc.Create(ctx, third)
	require.NoError(t, err)
	third.Name = "CA 3"
	third.Weight = decimal.RequireFromString("33.34")
	_, err = svc.Create(ctx, third)
	require.NoError(t, err)

	summary, err := svc.WeightSummary(ctx, models.AssessmentScope{AcademicTermID: "term-1", ClassSessionID: "section-1", SubjectID: "subject-1"})
	require.NoError(t, err)
	assert.Equal(t, "100", summary.Total.String())
	assert.True(t, summary.Remaining.IsZero())
	assert.Equal(t, 3, summary.Count)
}

func TestAssessmentServiceValidation(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*AssessmentRequest)
		target error
	}{
		{"zero weight", func(r *AssessmentRequest) { r.Weight = decimal.Zero }, appErrors.ErrValidation},
		{"weight over limit", func(r *AssessmentRequest) { r.Weight = decimal.RequireFromString("100.01") }, appErrors.ErrInvalidWeights},
		{"zero marks", func(r *AssessmentRequest) { r.Marks = decimal.Zero }, appErrors.ErrValidation},
		{"marks beyond storage", func(r *AssessmentRequest) { r.Marks = decimal.NewFromInt(10000) }, appErrors.ErrValidation},
		{"marks with three places", func(r *AssessmentRequest) { r.Marks = decimal.RequireFromString("79.996") }, appErrors.ErrValidation},
		{"weight with three places", func(r *AssessmentRequest) { r.Weight = decimal.RequireFromString("10.555") }, appErrors.ErrValidation},
		{"missing name", func(r *AssessmentRequest) { r.Name = "" }, appErrors.ErrValidation},
		{"ended term", func(r *AssessmentRequest) { r.AcademicTermID = "term-old" }, appErrors.ErrConflict},
		{"unknown term", func(r *AssessmentRequest) { r.AcademicTermID = "term-x" }, appErrors.ErrNotFound},
		{"unknown section", func(r *AssessmentRequest) { r.ClassSessionID = "section-x" }, appErrors.ErrNotFound},
		{"unknown subject", func(r *AssessmentRequest) { r.SubjectID = "subject-x" }, appErrors.ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMockAssessmentRepo()
			svc := newTestAssessmentService(repo, nil)
			req := assessmentRequest("Test", 20, 50)
			tc.mutate(&req)

			_, err := svc.Create(ctx, req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.target)
			assert.Empty(t, repo.items)
		})
	}
}

func TestAssessmentServiceDuplicateName(t *testing.T) {
	repo := newMockAssessmentRepo()
	svc := newTestAssessmentService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, assessmentRequest("Mid Term", 20, 50))
	require.NoError(t, err)
	_, err = svc.Create(ctx, assessmentRequest("mid term", 20, 50))
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestAssessmentServiceMarksBelowRecordedScore(t *testing.T) {
	repo := newMockAssessmentRepo()
	svc := newTestAssessmentService(repo, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, assessmentRequest("Test", 20, 50))
	require.NoError(t, err)
	repo.maxGraded[created.ID] = decimal.RequireFromString("45.5")

	_, err = svc.Update(ctx, created.ID, assessmentRequest("Test", 20, 40))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Update(ctx, created.ID, assessmentRequest("Test", 20, 46))
	assert.NoError(t, err)
}

func TestAssessmentServiceDelete(t *testing.T) {
	repo := newMockAssessmentRepo()
	pub := &recordingPublisher{}
	svc := newTestAssessmentService(repo, pub)
	ctx := context.Background()

	graded, err := svc.Create(ctx, assessmentRequest("Graded", 20, 50))
	require.NoError(t, err)
	fresh, err := svc.Create(ctx, assessmentRequest("Fresh", 20, 50))
	require.NoError(t, err)
	repo.graded[graded.ID] = true

	err = svc.Delete(ctx, graded.ID)
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	require.NoError(t, svc.Delete(ctx, fresh.ID))
	assert.NotContains(t, repo.items, fresh.ID)

	assert.ErrorIs(t, svc.Delete(ctx, "missing"), appErrors.ErrNotFound)
}

func TestAssessmentServiceRepositoryFailureIsInternal(t *testing.T) {
	repo := newMockAssessmentRepo()
	repo.saveErr = sql.ErrConnDone
	svc := newTestAssessmentService(repo, nil)

	_, err := svc.Create(context.Background(), assessmentRequest("Test", 20, 50))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestAssessmentServiceWeightSummaryRequiresScope(t *testing.T) {
	svc := newTestAssessmentService(newMockAssessmentRepo(), nil)
	_, err := svc.WeightSummary(context.Background(), models.AssessmentScope{AcademicTermID: "term-1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
