package dto

import "github.com/noah-isme/school-results-api/internal/models"

// ExportRequest captures the POST /exports payload. An empty termId exports the active term.
type ExportRequest struct {
	Type      models.ExportType `json:"type" validate:"required,oneof=class_results subject_results"`
	TermID    string            `json:"termId"`
	SectionID string            `json:"sectionId" validate:"required"`
	SubjectID string            `json:"subjectId" validate:"required_if=Type subject_results"`
	Format    string            `json:"format" validate:"omitempty,oneof=csv pdf xlsx"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse exposes job progress metadata.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ExportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
