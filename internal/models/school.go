package models

import "time"

// Class is a grade level, e.g. "Grade 3".
type Class struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Section is one physical class group within a class ("class session").
type Section struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	ClassID   string    `db:"class_id" json:"class_id"`
	ClassName string    `db:"class_name" json:"class_name,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Subject represents an academic subject.
type Subject struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Student is the read-side projection of a learner used by results views.
type Student struct {
	ID       string  `db:"id" json:"id"`
	FullName string  `db:"full_name" json:"full_name"`
	Photo    *string `db:"photo" json:"photo,omitempty"`
}

// EnrollmentStatus is the end-of-year outcome for a class membership.
type EnrollmentStatus string

const (
	EnrollmentPromoted  EnrollmentStatus = "Promoted"
	EnrollmentRepeated  EnrollmentStatus = "Repeated"
	EnrollmentGraduated EnrollmentStatus = "Graduated"
	EnrollmentNotYet    EnrollmentStatus = "Not Yet"
)

// ClassStudent is a student's membership in a section for one academic year.
type ClassStudent struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	ClassSessionID string           `db:"class_session_id" json:"class_session_id"`
	AcademicYearID string           `db:"academic_year_id" json:"academic_year_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	PromotedTo     *string          `db:"promoted_to" json:"promoted_to,omitempty"`
}

// RosterEntry is an enrollment joined with its student; Student fields are nil when the student row is gone.
type RosterEntry struct {
	ClassStudentID string  `db:"class_student_id"`
	StudentID      string  `db:"student_id"`
	FullName       *string `db:"full_name"`
	Photo          *string `db:"photo"`
}
