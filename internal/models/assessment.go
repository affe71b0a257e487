package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Assessment is one graded activity for a (term, section, subject) triple.
type Assessment struct {
	ID             string          `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Description    *string         `db:"description" json:"description,omitempty"`
	Weight         decimal.Decimal `db:"weight" json:"weight"`
	Marks          decimal.Decimal `db:"marks" json:"marks"`
	AcademicTermID string          `db:"academic_term_id" json:"academic_term_id"`
	ClassSessionID string          `db:"class_session_id" json:"class_session_id"`
	SubjectID      string          `db:"subject_id" json:"subject_id"`
	TeacherID      string          `db:"teacher_id" json:"teacher_id"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// AssessmentScope identifies the triple weights are budgeted against.
type AssessmentScope struct {
	AcademicTermID string `json:"academic_term_id" form:"termId" validate:"required"`
	ClassSessionID string `json:"class_session_id" form:"sectionId" validate:"required"`
	SubjectID      string `json:"subject_id" form:"subjectId" validate:"required"`
}

// Scope returns the triple the assessment belongs to.
func (a Assessment) Scope() AssessmentScope {
	return AssessmentScope{
		AcademicTermID: a.AcademicTermID,
		ClassSessionID: a.ClassSessionID,
		SubjectID:      a.SubjectID,
	}
}

// AssessmentScopeState is read under the scope lock before an assessment write.
type AssessmentScopeState struct {
	WeightTotal    decimal.Decimal
	NameTaken      bool
	MaxGradedScore decimal.NullDecimal
}

// WeightSummary reports how much of the 100-point budget a triple has used.
type WeightSummary struct {
	AssessmentScope
	Total     decimal.Decimal `json:"total"`
	Remaining decimal.Decimal `json:"remaining"`
	Count     int             `json:"count"`
}

// Grade is one student's score on one assessment.
type Grade struct {
	ID           string              `db:"id" json:"id"`
	AssessmentID string              `db:"assessment_id" json:"assessment_id"`
	StudentID    string              `db:"student_id" json:"student_id"`
	Score        decimal.Decimal     `db:"score" json:"score"`
	Total        decimal.NullDecimal `db:"total" json:"total"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updated_at"`
}

// AssessmentScale is the weight and marks of an assessment as read under the grade write lock.
type AssessmentScale struct {
	Weight decimal.Decimal `db:"weight"`
	Marks  decimal.Decimal `db:"marks"`
}

// GradeCheck validates a grade against the locked scale and may set derived fields before it is stored.
type GradeCheck func(scale AssessmentScale, grade *Grade) error

// GradingSystem is one grade band mapping [min, max] to a letter and remark.
type GradingSystem struct {
	ID        string          `db:"id" json:"id"`
	MinScore  decimal.Decimal `db:"min_score" json:"min_score"`
	MaxScore  decimal.Decimal `db:"max_score" json:"max_score"`
	Grade     string          `db:"grade" json:"grade"`
	Remarks   string          `db:"remarks" json:"remarks"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// AssessmentFilter scopes assessment listings; empty fields are ignored.
type AssessmentFilter struct {
	AcademicTermID string
	ClassSessionID string
	SubjectID      string
	TeacherID      string
}
