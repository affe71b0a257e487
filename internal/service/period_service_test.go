package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-results-api/internal/models"
	appErrors "github.com/noah-isme/school-results-api/pkg/errors"
	"github.com/noah-isme/school-results-api/pkg/events"
)

type mockYearRepo struct {
	years       map[string]*models.AcademicYear
	transitions int
	ended       map[string]time.Time
}

func (m *mockYearRepo) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error) {
	var out []models.AcademicYear
	for _, y := range m.years {
		out = append(out, *y)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *mockYearRepo) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if y, ok := m.years[id]; ok {
		cp := *y
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockYearRepo) ListByStatus(ctx context.Context, statuses ...models.PeriodStatus) ([]models.AcademicYear, error) {
	var out []models.AcademicYear
	for _, y := range m.years {
		for _, st := range statuses {
			if y.Status == st {
				out = append(out, *y)
			}
		}
	}
	return out, nil
}

func (m *mockYearRepo) FindActive(ctx context.Context) (*models.AcademicYear, error) {
	for _, y := range m.years {
		if y.Status == models.PeriodStatusActive {
			cp := *y
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockYearRepo) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	for _, y := range m.years {
		if y.Name == name && y.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockYearRepo) Create(ctx context.Context, year *models.AcademicYear) error {
	if m.years == nil {
		m.years = make(map[string]*models.AcademicYear)
	}
	year.ID = "year-new"
	cp := *year
	m.years[year.ID] = &cp
	return nil
}

func (m *mockYearRepo) Update(ctx context.Context, year *models.AcademicYear) error {
	cp := *year
	m.years[year.ID] = &cp
	return nil
}

func (m *mockYearRepo) TransitionStatus(ctx context.Context, id string, from, to models.PeriodStatus) (bool, error) {
	y, ok := m.years[id]
	if !ok || y.Status != from {
		return false, nil
	}
	y.Status = to
	m.transitions++
	return true, nil
}

func (m *mockYearRepo) End(ctx context.Context, id string, endDate time.Time, status models.PeriodStatus) error {
	if m.ended == nil {
		m.ended = make(map[string]time.Time)
	}
	m.ended[id] = endDate
	m.years[id].EndDate = endDate
	m.years[id].Status = status
	return nil
}

func (m *mockYearRepo) Delete(ctx context.Context, id string) error {
	delete(m.years, id)
	return nil
}

type mockTermRepo struct {
	terms       map[string]*models.AcademicTerm
	transitions int
	// raceWinner, when set, is applied to the stored row right before a transition to simulate another writer.
	raceWinner  models.PeriodStatus
	assessments map[string]int
	created     *models.AcademicTerm
}

func (m *mockTermRepo) List(ctx context.Context, filter models.AcademicTermFilter) ([]models.AcademicTerm, int, error) {
	var out []models.AcademicTerm
	for _, t := range m.terms {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *mockTermRepo) FindByID(ctx context.Context, id string) (*models.AcademicTerm, error) {
	if t, ok := m.terms[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTermRepo) ListByYear(ctx context.Context, yearID string) ([]models.AcademicTerm, error) {
	var out []models.AcademicTerm
	for _, t := range m.terms {
		if t.AcademicYearID == yearID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTermRepo) ListByStatus(ctx context.Context, statuses ...models.PeriodStatus) ([]models.AcademicTerm, error) {
	var out []models.AcademicTerm
	for _, t := range m.terms {
		for _, st := range statuses {
			if t.Status == st {
				out = append(out, *t)
			}
		}
	}
	return out, nil
}

func (m *mockTermRepo) FindActive(ctx context.Context) (*models.AcademicTerm, error) {
	for _, t := range m.terms {
		if t.Status == models.PeriodStatusActive {
			cp := *t
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockTermRepo) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	for _, t := range m.terms {
		if t.Name == name && t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTermRepo) Create(ctx context.Context, term *models.AcademicTerm) error {
	term.ID = "term-new"
	m.created = term
	return nil
}

func (m *mockTermRepo) Update(ctx context.Context, term *models.AcademicTerm) error {
	cp := *term
	m.terms[term.ID] = &cp
	return nil
}

func (m *mockTermRepo) TransitionStatus(ctx context.Context, id string, from, to models.PeriodStatus) (bool, error) {
	t, ok := m.terms[id]
	if !ok {
		return false, nil
	}
	if m.raceWinner != "" {
		t.Status = m.raceWinner
	}
	if t.Status != from {
		return false, nil
	}
	t.Status = to
	m.transitions++
	return true, nil
}

func (m *mockTermRepo) End(ctx context.Context, id string, endDate time.Time) error {
	m.terms[id].EndDate = endDate
	m.terms[id].Status = models.PeriodStatusInactive
	return nil
}

func (m *mockTermRepo) Delete(ctx context.Context, id string) error {
	delete(m.terms, id)
	return nil
}

func (m *mockTermRepo) CountAssessments(ctx context.Context, id string) (int, error) {
	return m.assessments[id], nil
}

type recordingPublisher struct {
	topics   []string
	payloads []interface{}
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

var periodNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func day(month time.Month, d int) time.Time {
	return time.Date(2025, month, d, 0, 0, 0, 0, time.UTC)
}

func newTestPeriodService(years *mockYearRepo, terms *mockTermRepo, pub eventPublisher) *PeriodService {
	svc := NewPeriodService(years, terms, pub, nil, nil, zap.NewNop(), time.UTC)
	svc.now = func() time.Time { return periodNow }
	return svc
}

func defaultYear() *models.AcademicYear {
	return &models.AcademicYear{ID: "year-1", Name: "2024/2025", Status: models.PeriodStatusActive, StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), EndDate: day(time.July, 31)}
}

func TestReconcileTermActivatesPendingOnce(t *testing.T) {
	terms := &mockTermRepo{terms: map[string]*models.AcademicTerm{
		"term-2": {ID: "term-2", Name: "Second Term", Status: models.PeriodStatusPending, StartDate: day(time.March, 10), EndDate: day(time.May, 30), AcademicYearID: "year-1"},
	}}
	pub := &recordingPublisher{}
	svc := newTestPeriodService(&mockYearRepo{}, terms, pub)

	first, err := svc.GetTerm(context.Background(), "term-2")
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusActive, first.Status, "start date reached")

	second, err := svc.GetTerm(context.Background(), "term-2")
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusActive, second.Status)
	assert.Equal(t, 1, terms.transitions, "second reconcile must not write")

	require.Len(t, pub.topics, 1)
	assert.Equal(t, events.TopicPeriodsTransitioned, pub.topics[0])
	payload := pub.payloads[0].(events.PeriodTransitioned)
	assert.Equal(t, "Pending", payload.From)
	assert.Equal(t, "Active", payload.To)
}

func TestReconcileTermEndsOnlyAfterEndDate(t *testing.T) {
	terms := &mockTermRepo{terms: map[string]*models.AcademicTerm{
		"ends-today": {ID: "ends-today", Status: models.PeriodStatusActive, StartDate: day(time.January, 6), EndDate: periodNow},
		"ended":      {ID: "ended", Status: models.PeriodStatusActive, StartDate: day(time.January, 6), EndDate: periodNow.Add(-time.Second)},
	}}
	svc := newTestPeriodService(&mockYearRepo{}, terms, nil)

	same, err := svc.GetTerm(context.Background(), "ends-today")
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusActive, same.Status, "now == endDate keeps the term running")

	ended, err := svc.GetTerm(context.Background(), "ended")
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusInactive, ended.Status)
}

func TestReconcileTermNeverReactivates(t *testing.T) {
	terms := &mockTermRepo{terms: map[string]*models.AcademicTerm{
		"closed": {ID: "closed", Status: models.PeriodStatusInactive, StartDate: day(time.March, 1), EndDate: day(time.May, 1)},
	}}
	svc := newTestPeriodService(&mockYearRepo{}, terms, nil)

	term, err := svc.GetTerm(context.Background(), "closed")
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusInactive, term.Status)
	assert.Zero(t, terms.transitions)
}

func TestReconcileTermLosingRaceReloads(t *testing.T) {
	terms := &mockTermRepo{
		terms: map[string]*models.AcademicTerm{
			"term-1": {ID: "term-1", Status: models.PeriodStatusActive, StartDate: day(time.January, 6), EndDate: day(time.March, 1)},
		},
		raceWinner: models.PeriodStatusInactive,
	}
	pub := &recordingPublisher{}
	svc := newTestPeriodService(&mockYearRepo{}, terms, pub)

	term, err := svc.GetTerm(context.Background(), "term-1")
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusInactive, term.Status)
	assert.Zero(t, terms.transitions)
	assert.Empty(t, pub.topics, "the winning writer reports the transition")
}

func TestActiveTermHealsStaleRecords(t *testing.T) {
	terms := &mockTermRepo{terms: map[string]*models.AcademicTerm{
		"first":  {ID: "first", Name: "First", Status: models.PeriodStatusActive, StartDate: day(time.January, 6), EndDate: day(time.March, 7)},
		"second": {ID: "second", Name: "Second", Status: models.PeriodStatusPending, StartDate: day(time.March, 8), EndDate: day(time.May, 30)},
	}}
	svc := newTestPeriodService(&mockYearRepo{}, terms, nil)

	active, err := svc.ActiveTerm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", active.ID)
	assert.Equal(t, models.PeriodStatusInactive, terms.terms["first"].Status)
}

func TestActiveTermNoActivePeriod(t *testing.T) {
	terms := &mockTermRepo{terms: map[string]*models.AcademicTerm{
		"first": {ID: "first", Status: models.PeriodStatusActive, StartDate: day(time.January, 6), EndDate: day(time.March, 7)},
	}}
	svc := newTestPeriodService(&mockYearRepo{}, terms, nil)

	_, err := svc.ActiveTerm(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNoActivePeriod))
}

func TestActiveYearExpiresOnEndDate(t *testing.T) {
	years := &mockYearRepo{years: map[string]*models.AcademicYear{
		"old": {ID: "old", Status: models.PeriodStatusActive, StartDate: day(time.January, 1), EndDate: periodNow},
	}}
	svc := newTestPeriodService(years, &mockTermRepo{}, nil)

	_, err := svc.ActiveYear(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrNoActivePeriod), "years end when now reaches the end date")
	assert.Equal(t, models.PeriodStatusInactive, years.years["old"].Status)
}

func TestCreateTermValidation(t *testing.T) {
	years := &mockYearRepo{years: map[string]*models.AcademicYear{"year-1": defaultYear()}}
	terms := &mockTermRepo{terms: map[string]*models.AcademicTerm{
		"first": {ID: "first", Name: "First Term", Status: models.PeriodStatusActive, StartDate: day(time.January, 6), EndDate: day(time.April, 4), AcademicYearID: "year-1"},
	}}
	svc := newTestPeriodService(years, terms, nil)

	_, err := svc.CreateTerm(context.Background(), AcademicTermRequest{Name: "Third Term", AcademicYearID: "year-1", StartDate: day(time.May, 1), EndDate: day(time.August, 30)})
	assert.True(t, errors.Is(err, appErrors.ErrValidation), "term must fit inside its year")

	_, err = svc.CreateTerm(context.Background(), AcademicTermRequest{Name: "Second Term", AcademicYearID: "year-1", StartDate: day(time.April, 1), EndDate: day(time.June, 30)})
	assert.True(t, errors.Is(err, appErrors.ErrConflict), "terms of a year cannot overlap")

	_, err = svc.CreateTerm(context.Background(), AcademicTermRequest{Name: "First Term", AcademicYearID: "year-1", StartDate: day(time.April, 20), EndDate: day(time.June, 30)})
	assert.True(t, errors.Is(err, appErrors.ErrConflict), "term names are unique")

	term, err := svc.CreateTerm(context.Background(), AcademicTermRequest{Name: "Second Term", AcademicYearID: "year-1", StartDate: day(time.April, 20), EndDate: day(time.July, 20)})
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusPending, term.Status)
	assert.Equal(t, "term-new", terms.created.ID)
}

func TestEndTermClosesNow(t *testing.T) {
	terms := &mockTermRepo{terms: map[string]*models.AcademicTerm{
		"first": {ID: "first", Status: models.PeriodStatusActive, StartDate: day(time.January, 6), EndDate: day(time.April, 4)},
	}}
	svc := newTestPeriodService(&mockYearRepo{}, terms, nil)

	term, err := svc.EndTerm(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusInactive, term.Status)
	assert.True(t, term.EndDate.Equal(periodNow))

	_, err = svc.EndTerm(context.Background(), "first")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestDeleteTermGuards(t *testing.T) {
	terms := &mockTermRepo{
		terms: map[string]*models.AcademicTerm{
			"running": {ID: "running", Status: models.PeriodStatusActive, StartDate: day(time.January, 6), EndDate: day(time.April, 4)},
			"graded":  {ID: "graded", Status: models.PeriodStatusInactive, StartDate: day(time.January, 6), EndDate: day(time.February, 4)},
			"empty":   {ID: "empty", Status: models.PeriodStatusPending, StartDate: day(time.May, 6), EndDate: day(time.June, 4)},
		},
		assessments: map[string]int{"graded": 2},
	}
	svc := newTestPeriodService(&mockYearRepo{}, terms, nil)

	assert.True(t, errors.Is(svc.DeleteTerm(context.Background(), "running"), appErrors.ErrPreconditionFailed))
	assert.True(t, errors.Is(svc.DeleteTerm(context.Background(), "graded"), appErrors.ErrPreconditionFailed))
	require.NoError(t, svc.DeleteTerm(context.Background(), "empty"))
	assert.NotContains(t, terms.terms, "empty")
	assert.True(t, errors.Is(svc.DeleteTerm(context.Background(), "missing"), appErrors.ErrNotFound))
}

func TestCreateYearRejectsSecondActiveYear(t *testing.T) {
	years := &mockYearRepo{years: map[string]*models.AcademicYear{"year-1": defaultYear()}}
	svc := newTestPeriodService(years, &mockTermRepo{}, nil)

	_, err := svc.CreateYear(context.Background(), AcademicYearRequest{Name: "2025/2026", StartDate: day(time.September, 1), EndDate: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	past, err := svc.CreateYear(context.Background(), AcademicYearRequest{Name: "2022/2023", StartDate: time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2023, 7, 31, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusInactive, past.Status)
}

func TestEndYear(t *testing.T) {
	years := &mockYearRepo{years: map[string]*models.AcademicYear{"year-1": defaultYear()}}
	pub := &recordingPublisher{}
	svc := newTestPeriodService(years, &mockTermRepo{}, pub)

	year, err := svc.EndYear(context.Background(), "year-1")
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusInactive, year.Status)
	assert.True(t, years.ended["year-1"].Equal(periodNow))
	assert.Equal(t, []string{events.TopicPeriodsTransitioned}, pub.topics)

	require.NoError(t, svc.DeleteYear(context.Background(), "year-1"), "ended years can be deleted")
}

func TestDeleteActiveYearRejected(t *testing.T) {
	years := &mockYearRepo{years: map[string]*models.AcademicYear{"year-1": defaultYear()}}
	svc := newTestPeriodService(years, &mockTermRepo{}, nil)

	err := svc.DeleteYear(context.Background(), "year-1")
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}
