package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-results-api/internal/models"
	"github.com/noah-isme/school-results-api/internal/service"
	appErrors "github.com/noah-isme/school-results-api/pkg/errors"
	"github.com/noah-isme/school-results-api/pkg/response"
)

type gradeService interface {
	Grade(ctx context.Context, req service.GradeRequest) (*models.Grade, error)
	BulkGrade(ctx context.Context, req service.BulkGradeRequest) ([]models.Grade, error)
	List(ctx context.Context, assessmentID string) ([]models.Grade, error)
	Delete(ctx context.Context, id string) error
}

// GradeHandler exposes grading endpoints.
type GradeHandler struct {
	service gradeService
}

// NewGradeHandler constructs a grade handler.
func NewGradeHandler(svc gradeService) *GradeHandler {
	return &GradeHandler{service: svc}
}

// List godoc
// @Summary List grades of an assessment
// @Tags Grades
// @Produce json
// @Param assessmentId query string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Router /grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	assessmentID := c.Query("assessmentId")
	if assessmentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "assessmentId required"))
		return
	}
	grades, err := h.service.List(c.Request.Context(), assessmentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// Grade godoc
// @Summary Record or replace a student's score
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.GradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Grade(c *gin.Context) {
	var req service.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	grade, err := h.service.Grade(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// BulkGrade godoc
// @Summary Record scores for many students at once
// @Description All entries are written in one transaction; any invalid entry rejects the batch
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.BulkGradeRequest true "Bulk grade payload"
// @Success 200 {object} response.Envelope
// @Router /grades/bulk [post]
func (h *GradeHandler) BulkGrade(c *gin.Context) {
	var req service.BulkGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	grades, err := h.service.BulkGrade(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// Delete godoc
// @Summary Delete a grade
// @Tags Grades
// @Param id path string true "Grade ID"
// @Success 204
// @Router /grades/{id} [delete]
func (h *GradeHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
