package grading

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/school-results-api/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assessment(id, subjectID, name, weight, marks string) models.ScoredAssessment {
	return models.ScoredAssessment{
		Assessment:  models.Assessment{ID: id, SubjectID: subjectID, Weight: dec(weight), Marks: dec(marks)},
		SubjectName: name,
	}
}

func TestWeightedContribution(t *testing.T) {
	score := dec("80")
	assert.Equal(t, "48", WeightedContribution(&score, dec("60"), dec("100")).String())
	assert.True(t, WeightedContribution(nil, dec("60"), dec("100")).IsZero())
	assert.True(t, WeightedContribution(&score, dec("60"), decimal.Zero).IsZero())
}

func TestScoreboardSubjectScore(t *testing.T) {
	assessments := []models.ScoredAssessment{
		assessment("a", "math", "Mathematics", "60", "100"),
		assessment("b", "math", "Mathematics", "40", "50"),
	}
	grades := []models.Grade{
		{AssessmentID: "a", StudentID: "s1", Score: dec("80")},
		{AssessmentID: "b", StudentID: "s1", Score: dec("40")},
		{AssessmentID: "a", StudentID: "s2", Score: dec("50")},
	}

	board := NewScoreboard(assessments, grades)
	assert.Equal(t, "80.00", Display(board.SubjectScore("s1", "math")).StringFixed(2))
	// s2 has no grade for b, which counts as zero
	assert.Equal(t, "30.00", Display(board.SubjectScore("s2", "math")).StringFixed(2))
	assert.True(t, board.SubjectScore("s3", "math").IsZero())

	reversed := NewScoreboard([]models.ScoredAssessment{assessments[1], assessments[0]}, grades)
	assert.True(t, reversed.SubjectScore("s1", "math").Equal(board.SubjectScore("s1", "math")))
}

func TestScoreboardTermTotal(t *testing.T) {
	assessments := []models.ScoredAssessment{
		assessment("a", "math", "Mathematics", "100", "100"),
		assessment("c", "eng", "English", "50", "20"),
		assessment("d", "eng", "English", "50", "30"),
	}
	grades := []models.Grade{
		{AssessmentID: "a", StudentID: "s1", Score: dec("70")},
		{AssessmentID: "c", StudentID: "s1", Score: dec("10")},
		{AssessmentID: "d", StudentID: "s1", Score: dec("10")},
		{AssessmentID: "zzz", StudentID: "s1", Score: dec("99")},
	}
	board := NewScoreboard(assessments, grades)

	subjects := board.Subjects()
	assert.Len(t, subjects, 2)
	assert.Equal(t, "English", subjects[0].Name)
	assert.Equal(t, 2, subjects[0].Assessments)
	assert.Equal(t, "100", subjects[0].TotalWeight.String())

	// 70 + (25 + 16.666...) keeps full precision until display
	assert.Equal(t, "111.67", Display(board.TermTotal("s1")).StringFixed(2))
	assert.Equal(t, "55.83", Display(board.Average("s1")).StringFixed(2))
	assert.True(t, board.HasSubject("eng"))
	assert.False(t, board.HasSubject("bio"))
}

func TestStorable(t *testing.T) {
	assert.True(t, Storable(dec("79.99")))
	assert.True(t, Storable(dec("80.500")))
	assert.True(t, Storable(dec("100")))
	assert.False(t, Storable(dec("79.996")))
	assert.True(t, MaxMarks.LessThan(dec("10000")))
}
