package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-results-api/internal/grading"
	"github.com/noah-isme/school-results-api/internal/models"
	appErrors "github.com/noah-isme/school-results-api/pkg/errors"
)

const (
	resultsViewClass   = "class"
	resultsViewSubject = "subject"
	resultsViewStudent = "student"
)

type resultRepository interface {
	SectionAssessments(ctx context.Context, termID, sectionID, subjectID string) ([]models.ScoredAssessment, error)
}

type gradeLister interface {
	ListForAssessments(ctx context.Context, assessmentIDs []string) ([]models.Grade, error)
}

type rosterReader interface {
	Roster(ctx context.Context, sectionID, yearID string) ([]models.RosterEntry, error)
}

type bandLister interface {
	List(ctx context.Context) ([]models.GradingSystem, error)
}

// ResultService computes class, subject and student results views from recorded grades.
type ResultService struct {
	results  resultRepository
	grades   gradeLister
	roster   rosterReader
	bands    bandLister
	sections sectionReader
	subjects subjectReader
	periods  termLookup
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	cacheTTL time.Duration
}

// NewResultService constructs the service. A nil cache disables result caching.
func NewResultService(results resultRepository, grades gradeLister, roster rosterReader, bands bandLister, sections sectionReader, subjects subjectReader, periods termLookup, cache *CacheService, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *ResultService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{
		results:  results,
		grades:   grades,
		roster:   roster,
		bands:    bands,
		sections: sections,
		subjects: subjects,
		periods:  periods,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// ResultsCachePrefix is the key namespace of cached results views.
const ResultsCachePrefix = "results"

func classResultsKey(termID, sectionID string) string {
	return fmt.Sprintf("%s:%s:%s:class", ResultsCachePrefix, termID, sectionID)
}

func subjectResultsKey(termID, sectionID, subjectID string) string {
	return fmt.Sprintf("%s:%s:%s:subject:%s", ResultsCachePrefix, termID, sectionID, subjectID)
}

// ClassResults returns every enrolled student's subject scores, total, average, grade and position.
// The student-level grade and remarks are resolved from the average subject score, not the total.
// An empty termID selects the active term.
func (s *ResultService) ClassResults(ctx context.Context, sectionID, termID string) (*models.ResultSheet, error) {
	term, err := s.resolveTerm(ctx, termID)
	if err != nil {
		return nil, err
	}

	key := classResultsKey(term.ID, sectionID)
	var cached models.ResultSheet
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	section, err := s.loadSection(ctx, sectionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sheet, err := s.compute(ctx, term, section, "")
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveResults(resultsViewClass, time.Since(start))
	_ = s.cache.Set(ctx, key, sheet, s.cacheTTL)
	return sheet, nil
}

// SubjectResults ranks a section on a single subject's score. An empty termID selects the active term.
func (s *ResultService) SubjectResults(ctx context.Context, sectionID, subjectID, termID string) (*models.ResultSheet, error) {
	term, err := s.resolveTerm(ctx, termID)
	if err != nil {
		return nil, err
	}

	key := subjectResultsKey(term.ID, sectionID, subjectID)
	var cached models.ResultSheet
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	section, err := s.loadSection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Internal(err, "failed to load subject")
	}

	start := time.Now()
	sheet, err := s.compute(ctx, term, section, subject.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveResults(resultsViewSubject, time.Since(start))
	_ = s.cache.Set(ctx, key, sheet, s.cacheTTL)
	return sheet, nil
}

// StudentTermResults returns one student's line from the class results with the class size.
func (s *ResultService) StudentTermResults(ctx context.Context, studentID, sectionID, termID string) (*models.StudentResultSheet, error) {
	start := time.Now()
	sheet, err := s.ClassResults(ctx, sectionID, termID)
	if err != nil {
		return nil, err
	}
	for _, result := range sheet.Students {
		if result.StudentID == studentID {
			s.metrics.ObserveResults(resultsViewStudent, time.Since(start))
			return &models.StudentResultSheet{
				AcademicTerm: sheet.AcademicTerm,
				Section:      sheet.Section,
				ClassSize:    len(sheet.Students),
				Result:       result,
			}, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no results in this section for the term")
}

func (s *ResultService) resolveTerm(ctx context.Context, termID string) (*models.AcademicTerm, error) {
	if termID == "" {
		return s.periods.ActiveTerm(ctx)
	}
	return s.periods.GetTerm(ctx, termID)
}

func (s *ResultService) loadSection(ctx context.Context, id string) (*models.Section, error) {
	section, err := s.sections.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Internal(err, "failed to load section")
	}
	return section, nil
}

func (s *ResultService) compute(ctx context.Context, term *models.AcademicTerm, section *models.Section, subjectID string) (*models.ResultSheet, error) {
	assessments, err := s.results.SectionAssessments(ctx, term.ID, section.ID, subjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load assessments")
	}
	ids := make([]string, len(assessments))
	for i, a := range assessments {
		ids[i] = a.ID
	}
	grades, err := s.grades.ListForAssessments(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load grades")
	}
	roster, err := s.roster.Roster(ctx, section.ID, term.AcademicYearID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load section roster")
	}
	bandList, err := s.bands.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load grading systems")
	}

	board := grading.NewScoreboard(assessments, grades)
	bands := grading.NewBands(bandList)
	subjects := board.Subjects()

	byStudent := make(map[string]models.StudentResult, len(roster))
	entries := make([]grading.RankEntry, 0, len(roster))
	for _, entry := range roster {
		if entry.FullName == nil {
			s.logger.Warn("skipping enrollment without student record",
				zap.String("class_student_id", entry.ClassStudentID),
				zap.String("student_id", entry.StudentID),
			)
			continue
		}
		if _, dup := byStudent[entry.StudentID]; dup {
			continue
		}

		scores := make([]models.SubjectScore, 0, len(subjects))
		for _, subject := range subjects {
			score := board.SubjectScore(entry.StudentID, subject.ID)
			res := bands.Resolve(score)
			scores = append(scores, models.SubjectScore{
				SubjectID:   subject.ID,
				SubjectName: subject.Name,
				SubjectCode: subject.Code,
				Score:       grading.Display(score),
				Grade:       res.Grade,
				Remarks:     res.Remarks,
			})
		}

		total := board.TermTotal(entry.StudentID)
		average := board.Average(entry.StudentID)
		overall := bands.Resolve(average)
		byStudent[entry.StudentID] = models.StudentResult{
			StudentID:     entry.StudentID,
			FullName:      *entry.FullName,
			Photo:         entry.Photo,
			SubjectScores: scores,
			TotalScore:    grading.Display(total),
			Average:       grading.Display(average),
			Grade:         overall.Grade,
			Remarks:       overall.Remarks,
		}
		entries = append(entries, grading.RankEntry{ID: entry.StudentID, Total: total})
	}

	students := make([]models.StudentResult, 0, len(entries))
	for _, ranked := range grading.Rank(entries) {
		result := byStudent[ranked.ID]
		result.Position = ranked.Position
		result.PositionLabel = ranked.Label
		students = append(students, result)
	}

	return &models.ResultSheet{
		AcademicTerm: *term,
		Section:      *section,
		Subjects:     subjects,
		Students:     students,
	}, nil
}
