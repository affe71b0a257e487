package models

import "github.com/shopspring/decimal"

// SubjectScore is one student's aggregated score for a subject.
type SubjectScore struct {
	SubjectID   string          `json:"subject_id"`
	SubjectName string          `json:"subject_name"`
	SubjectCode string          `json:"subject_code"`
	Score       decimal.Decimal `json:"score"`
	Grade       string          `json:"grade"`
	Remarks     string          `json:"remarks"`
}

// StudentResult is one row of a results sheet.
type StudentResult struct {
	StudentID     string          `json:"student_id"`
	FullName      string          `json:"full_name"`
	Photo         *string         `json:"photo,omitempty"`
	SubjectScores []SubjectScore  `json:"subject_scores"`
	TotalScore    decimal.Decimal `json:"total_score"`
	Average       decimal.Decimal `json:"average"`
	// Grade and Remarks are banded from Average.
	Grade         string          `json:"grade"`
	Remarks       string          `json:"remarks"`
	Position      int             `json:"position"`
	PositionLabel string          `json:"position_label"`
}

// ResultSubject describes a subject column on a results sheet.
type ResultSubject struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Code        string          `json:"code"`
	Assessments int             `json:"assessments"`
	TotalWeight decimal.Decimal `json:"total_weight"`
}

// ResultSheet is a ranked results view for a section in a term.
type ResultSheet struct {
	AcademicTerm AcademicTerm    `json:"academic_term"`
	Section      Section         `json:"section"`
	Subjects     []ResultSubject `json:"subjects"`
	Students     []StudentResult `json:"students"`
}

// StudentResultSheet is one student's term results with their class position.
type StudentResultSheet struct {
	AcademicTerm AcademicTerm  `json:"academic_term"`
	Section      Section       `json:"section"`
	ClassSize    int           `json:"class_size"`
	Result       StudentResult `json:"result"`
}

// ScoredAssessment is the row the results queries read: an assessment with its subject labels.
type ScoredAssessment struct {
	Assessment
	SubjectName string `db:"subject_name" json:"subject_name"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
}
