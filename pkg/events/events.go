package events

import "time"

// Topics published by the grading domain.
const (
	TopicGradesRecorded        = "grades.recorded"
	TopicAssessmentsChanged    = "assessments.changed"
	TopicGradingSystemsChanged = "grading_systems.changed"
	TopicPeriodsTransitioned   = "periods.transitioned"
)

// GradesRecorded is emitted after one or more grades for an assessment are written or removed.
type GradesRecorded struct {
	AssessmentID string    `json:"assessment_id"`
	TermID       string    `json:"term_id"`
	SectionID    string    `json:"section_id"`
	SubjectID    string    `json:"subject_id"`
	StudentIDs   []string  `json:"student_ids"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// AssessmentChanged is emitted when an assessment is created, updated or deleted.
type AssessmentChanged struct {
	AssessmentID string    `json:"assessment_id"`
	TermID       string    `json:"term_id"`
	SectionID    string    `json:"section_id"`
	SubjectID    string    `json:"subject_id"`
	Action       string    `json:"action"`
	OccurredAt   time.Time `json:"occurred_at"`

	// Set when an update moved the assessment out of another term or section.
	PreviousTermID    string `json:"previous_term_id,omitempty"`
	PreviousSectionID string `json:"previous_section_id,omitempty"`
}

// GradingSystemChanged is emitted on any grade band write.
type GradingSystemChanged struct {
	GradingSystemID string    `json:"grading_system_id"`
	Action          string    `json:"action"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// PeriodTransitioned records an automatic or manual lifecycle change.
type PeriodTransitioned struct {
	Kind       string    `json:"kind"`
	PeriodID   string    `json:"period_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Event actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)
