package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-results-api/internal/models"
	appErrors "github.com/noah-isme/school-results-api/pkg/errors"
	"github.com/noah-isme/school-results-api/pkg/response"
)

type resultService interface {
	ClassResults(ctx context.Context, sectionID, termID string) (*models.ResultSheet, error)
	SubjectResults(ctx context.Context, sectionID, subjectID, termID string) (*models.ResultSheet, error)
	StudentTermResults(ctx context.Context, studentID, sectionID, termID string) (*models.StudentResultSheet, error)
}

// ResultHandler exposes computed results views.
type ResultHandler struct {
	service resultService
}

// NewResultHandler constructs a results handler.
func NewResultHandler(svc resultService) *ResultHandler {
	return &ResultHandler{service: svc}
}

// Class godoc
// @Summary Ranked class results for a section
// @Description Omitting termId selects the active term
// @Tags Results
// @Produce json
// @Param id path string true "Section ID"
// @Param termId query string false "Academic term ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /results/sections/{id} [get]
func (h *ResultHandler) Class(c *gin.Context) {
	sheet, err := h.service.ClassResults(c.Request.Context(), c.Param("id"), c.Query("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Subject godoc
// @Summary Ranked results of one subject for a section
// @Tags Results
// @Produce json
// @Param id path string true "Section ID"
// @Param subjectId path string true "Subject ID"
// @Param termId query string false "Academic term ID"
// @Success 200 {object} response.Envelope
// @Router /results/sections/{id}/subjects/{subjectId} [get]
func (h *ResultHandler) Subject(c *gin.Context) {
	sheet, err := h.service.SubjectResults(c.Request.Context(), c.Param("id"), c.Param("subjectId"), c.Query("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Student godoc
// @Summary Term results of a single student
// @Tags Results
// @Produce json
// @Param id path string true "Student ID"
// @Param sectionId query string true "Section ID"
// @Param termId query string false "Academic term ID"
// @Success 200 {object} response.Envelope
// @Router /results/students/{id} [get]
func (h *ResultHandler) Student(c *gin.Context) {
	studentID := c.Param("id")
	claims := claimsFromContext(c)
	if claims != nil && claims.Role == models.RoleStudent && claims.UserID != studentID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	sectionID := c.Query("sectionId")
	if sectionID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "sectionId required"))
		return
	}
	sheet, err := h.service.StudentTermResults(c.Request.Context(), studentID, sectionID, c.Query("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}
