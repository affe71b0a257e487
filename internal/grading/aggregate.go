package grading

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/school-results-api/internal/models"
)

// DisplayPlaces is the precision scores are rounded to when presented.
// It is also the scale of every stored score, weight and mark.
const DisplayPlaces = 2

// MaxMarks is the largest marks value the store holds. Scores never exceed marks.
var MaxMarks = decimal.RequireFromString("9999.99")

// Storable reports whether v has at most DisplayPlaces decimal places.
func Storable(v decimal.Decimal) bool {
	return v.Equal(v.Truncate(DisplayPlaces))
}

// WeightedContribution scales a raw score into the assessment's share of the subject score:
// score / marks * weight. A missing grade contributes zero.
func WeightedContribution(score *decimal.Decimal, weight, marks decimal.Decimal) decimal.Decimal {
	if score == nil || !marks.IsPositive() {
		return decimal.Zero
	}
	return score.Mul(weight).Div(marks)
}

// Display rounds a score for presentation.
func Display(v decimal.Decimal) decimal.Decimal {
	return v.Round(DisplayPlaces)
}

// Scoreboard aggregates grades for one section and term.
type Scoreboard struct {
	subjects    []models.ResultSubject
	bySubject   map[string][]models.ScoredAssessment
	gradeScores map[string]map[string]decimal.Decimal
}

// NewScoreboard indexes the assessments of a section/term and the grades recorded against them.
// Grades for assessments outside the set are ignored.
func NewScoreboard(assessments []models.ScoredAssessment, grades []models.Grade) *Scoreboard {
	b := &Scoreboard{
		bySubject:   make(map[string][]models.ScoredAssessment),
		gradeScores: make(map[string]map[string]decimal.Decimal, len(assessments)),
	}

	subjects := make(map[string]*models.ResultSubject)
	for _, a := range assessments {
		b.bySubject[a.SubjectID] = append(b.bySubject[a.SubjectID], a)
		b.gradeScores[a.ID] = make(map[string]decimal.Decimal)

		s, ok := subjects[a.SubjectID]
		if !ok {
			s = &models.ResultSubject{ID: a.SubjectID, Name: a.SubjectName, Code: a.SubjectCode, TotalWeight: decimal.Zero}
			subjects[a.SubjectID] = s
		}
		s.Assessments++
		s.TotalWeight = s.TotalWeight.Add(a.Weight)
	}

	for _, g := range grades {
		if scores, ok := b.gradeScores[g.AssessmentID]; ok {
			scores[g.StudentID] = g.Score
		}
	}

	b.subjects = make([]models.ResultSubject, 0, len(subjects))
	for _, s := range subjects {
		b.subjects = append(b.subjects, *s)
	}
	sort.Slice(b.subjects, func(i, j int) bool {
		ni, nj := strings.ToLower(b.subjects[i].Name), strings.ToLower(b.subjects[j].Name)
		if ni != nj {
			return ni < nj
		}
		return b.subjects[i].ID < b.subjects[j].ID
	})
	return b
}

// Subjects returns every subject with at least one assessment, ordered by name.
func (b *Scoreboard) Subjects() []models.ResultSubject {
	out := make([]models.ResultSubject, len(b.subjects))
	copy(out, b.subjects)
	return out
}

// HasSubject reports whether the subject has assessments on the board.
func (b *Scoreboard) HasSubject(subjectID string) bool {
	_, ok := b.bySubject[subjectID]
	return ok
}

// SubjectScore sums the student's weighted contributions over the subject's assessments.
func (b *Scoreboard) SubjectScore(studentID, subjectID string) decimal.Decimal {
	total := decimal.Zero
	for _, a := range b.bySubject[subjectID] {
		var score *decimal.Decimal
		if s, ok := b.gradeScores[a.ID][studentID]; ok {
			score = &s
		}
		total = total.Add(WeightedContribution(score, a.Weight, a.Marks))
	}
	return total
}

// TermTotal sums the student's subject scores over every subject on the board.
func (b *Scoreboard) TermTotal(studentID string) decimal.Decimal {
	total := decimal.Zero
	for _, s := range b.subjects {
		total = total.Add(b.SubjectScore(studentID, s.ID))
	}
	return total
}

// Average is the term total divided by the number of subjects, zero when there are none.
func (b *Scoreboard) Average(studentID string) decimal.Decimal {
	if len(b.subjects) == 0 {
		return decimal.Zero
	}
	return b.TermTotal(studentID).Div(decimal.NewFromInt(int64(len(b.subjects))))
}
