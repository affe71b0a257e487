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

type assessmentService interface {
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error)
	Get(ctx context.Context, id string) (*models.Assessment, error)
	WeightSummary(ctx context.Context, scope models.AssessmentScope) (*models.WeightSummary, error)
	Create(ctx context.Context, req service.AssessmentRequest) (*models.Assessment, error)
	Update(ctx context.Context, id string, req service.AssessmentRequest) (*models.Assessment, error)
	Delete(ctx context.Context, id string) error
}

// AssessmentHandler exposes assessment endpoints.
type AssessmentHandler struct {
	service assessmentService
}

// NewAssessmentHandler constructs an assessment handler.
func NewAssessmentHandler(svc assessmentService) *AssessmentHandler {
	return &AssessmentHandler{service: svc}
}

// List godoc
// @Summary List assessments
// @Tags Assessments
// @Produce json
// @Param termId query string false "Academic term ID"
// @Param sectionId query string false "Section (class session) ID"
// @Param subjectId query string false "Subject ID"
// @Param teacherId query string false "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /assessments [get]
func (h *AssessmentHandler) List(c *gin.Context) {
	filter := models.AssessmentFilter{
		AcademicTermID: c.Query("termId"),
		ClassSessionID: c.Query("sectionId"),
		SubjectID:      c.Query("subjectId"),
		TeacherID:      c.Query("teacherId"),
	}
	assessments, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessments, nil)
}

// Get godoc
// @Summary Get assessment
// @Tags Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) Get(c *gin.Context) {
	assessment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// Weights godoc
// @Summary Weight used and remaining for a term, section and subject
// @Tags Assessments
// @Produce json
// @Param termId query string true "Academic term ID"
// @Param sectionId query string true "Section ID"
// @Param subjectId query string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /assessments/weights [get]
func (h *AssessmentHandler) Weights(c *gin.Context) {
	var scope models.AssessmentScope
	if err := c.ShouldBindQuery(&scope); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	summary, err := h.service.WeightSummary(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Create godoc
// @Summary Create assessment
// @Description Rejected with INVALID_WEIGHTS when the subject's weights would exceed 100
// @Tags Assessments
// @Accept json
// @Produce json
// @Param payload body service.AssessmentRequest true "Assessment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assessments [post]
func (h *AssessmentHandler) Create(c *gin.Context) {
	var req service.AssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleTeacher {
		req.TeacherID = claims.UserID
	}
	assessment, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assessment)
}

// Update godoc
// @Summary Update assessment
// @Tags Assessments
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body service.AssessmentRequest true "Assessment payload"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id} [put]
func (h *AssessmentHandler) Update(c *gin.Context) {
	var req service.AssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleTeacher {
		req.TeacherID = claims.UserID
	}
	assessment, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// Delete godoc
// @Summary Delete an ungraded assessment
// @Tags Assessments
// @Param id path string true "Assessment ID"
// @Success 204
// @Failure 412 {object} response.Envelope
// @Router /assessments/{id} [delete]
func (h *AssessmentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
