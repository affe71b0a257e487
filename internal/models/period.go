package models

import "time"

// PeriodStatus is the lifecycle state of an academic year or term.
type PeriodStatus string

const (
	PeriodStatusActive   PeriodStatus = "Active"
	PeriodStatusInactive PeriodStatus = "Inactive"
	PeriodStatusPending  PeriodStatus = "Pending"
)

// AcademicYear is the top-level school calendar period.
type AcademicYear struct {
	ID        string       `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	Status    PeriodStatus `db:"status" json:"status"`
	StartDate time.Time    `db:"start_date" json:"start_date"`
	EndDate   time.Time    `db:"end_date" json:"end_date"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// AcademicTerm is a term owned by an academic year.
type AcademicTerm struct {
	ID             string       `db:"id" json:"id"`
	Name           string       `db:"name" json:"name"`
	Status         PeriodStatus `db:"status" json:"status"`
	StartDate      time.Time    `db:"start_date" json:"start_date"`
	EndDate        time.Time    `db:"end_date" json:"end_date"`
	AcademicYearID string       `db:"academic_year_id" json:"academic_year_id"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// AcademicYearFilter defines filters supported by year list endpoints.
type AcademicYearFilter struct {
	Status   PeriodStatus
	Page     int
	PageSize int
}

// AcademicTermFilter defines filters supported by term list endpoints.
type AcademicTermFilter struct {
	AcademicYearID string
	Status         PeriodStatus
	Page           int
	PageSize       int
}
