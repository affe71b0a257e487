package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-results-api/internal/models"
	"github.com/noah-isme/school-results-api/internal/service"
	"github.com/noah-isme/school-results-api/pkg/response"
)

type periodService interface {
	ListYears(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, *models.Pagination, error)
	GetYear(ctx context.Context, id string) (*models.AcademicYear, error)
	ActiveYear(ctx context.Context) (*models.AcademicYear, error)
	CreateYear(ctx context.Context, req service.AcademicYearRequest) (*models.AcademicYear, error)
	UpdateYear(ctx context.Context, id string, req service.AcademicYearRequest) (*models.AcademicYear, error)
	EndYear(ctx context.Context, id string) (*models.AcademicYear, error)
	DeleteYear(ctx context.Context, id string) error

	ListTerms(ctx context.Context, filter models.AcademicTermFilter) ([]models.AcademicTerm, *models.Pagination, error)
	GetTerm(ctx context.Context, id string) (*models.AcademicTerm, error)
	ActiveTerm(ctx context.Context) (*models.AcademicTerm, error)
	CreateTerm(ctx context.Context, req service.AcademicTermRequest) (*models.AcademicTerm, error)
	UpdateTerm(ctx context.Context, id string, req service.AcademicTermRequest) (*models.AcademicTerm, error)
	EndTerm(ctx context.Context, id string) (*models.AcademicTerm, error)
	DeleteTerm(ctx context.Context, id string) error
}

// PeriodHandler exposes academic year and academic term endpoints.
type PeriodHandler struct {
	service periodService
}

// NewPeriodHandler constructs a period handler.
func NewPeriodHandler(svc periodService) *PeriodHandler {
	return &PeriodHandler{service: svc}
}

// ListYears godoc
// @Summary List academic years
// @Tags Academic Years
// @Produce json
// @Param status query string false "Filter by status (Active, Inactive, Pending)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /academic-years [get]
func (h *PeriodHandler) ListYears(c *gin.Context) {
	var filter models.AcademicYearFilter
	filter.Status = models.PeriodStatus(c.Query("status"))
	filter.Page, filter.PageSize = pageParams(c)

	years, pagination, err := h.service.ListYears(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, pagination)
}

// GetYear godoc
// @Summary Get academic year
// @Tags Academic Years
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id} [get]
func (h *PeriodHandler) GetYear(c *gin.Context) {
	year, err := h.service.GetYear(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// ActiveYear godoc
// @Summary Get the active academic year
// @Tags Academic Years
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /academic-years/active [get]
func (h *PeriodHandler) ActiveYear(c *gin.Context) {
	year, err := h.service.ActiveYear(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// CreateYear godoc
// @Summary Create academic year
// @Tags Academic Years
// @Accept json
// @Produce json
// @Param payload body service.AcademicYearRequest true "Academic year payload"
// @Success 201 {object} response.Envelope
// @Router /academic-years [post]
func (h *PeriodHandler) CreateYear(c *gin.Context) {
	var req service.AcademicYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	year, err := h.service.CreateYear(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, year)
}

// UpdateYear godoc
// @Summary Update academic year
// @Tags Academic Years
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param payload body service.AcademicYearRequest true "Academic year payload"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id} [put]
func (h *PeriodHandler) UpdateYear(c *gin.Context) {
	var req service.AcademicYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	year, err := h.service.UpdateYear(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// EndYear godoc
// @Summary End the active academic year now
// @Tags Academic Years
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id}/end [post]
func (h *PeriodHandler) EndYear(c *gin.Context) {
	year, err := h.service.EndYear(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// DeleteYear godoc
// @Summary Delete academic year and its terms
// @Tags Academic Years
// @Param id path string true "Academic year ID"
// @Success 204
// @Router /academic-years/{id} [delete]
func (h *PeriodHandler) DeleteYear(c *gin.Context) {
	if err := h.service.DeleteYear(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListTerms godoc
// @Summary List academic terms
// @Tags Academic Terms
// @Produce json
// @Param academicYearId query string false "Filter by academic year"
// @Param status query string false "Filter by status (Active, Inactive, Pending)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /academic-terms [get]
func (h *PeriodHandler) ListTerms(c *gin.Context) {
	var filter models.AcademicTermFilter
	filter.AcademicYearID = c.Query("academicYearId")
	filter.Status = models.PeriodStatus(c.Query("status"))
	filter.Page, filter.PageSize = pageParams(c)

	terms, pagination, err := h.service.ListTerms(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, terms, pagination)
}

// GetTerm godoc
// @Summary Get academic term
// @Tags Academic Terms
// @Produce json
// @Param id path string true "Academic term ID"
// @Success 200 {object} response.Envelope
// @Router /academic-terms/{id} [get]
func (h *PeriodHandler) GetTerm(c *gin.Context) {
	term, err := h.service.GetTerm(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, term, nil)
}

// ActiveTerm godoc
// @Summary Get the active academic term
// @Tags Academic Terms
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /academic-terms/active [get]
func (h *PeriodHandler) ActiveTerm(c *gin.Context) {
	term, err := h.service.ActiveTerm(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, term, nil)
}

// CreateTerm godoc
// @Summary Create academic term
// @Tags Academic Terms
// @Accept json
// @Produce json
// @Param payload body service.AcademicTermRequest true "Academic term payload"
// @Success 201 {object} response.Envelope
// @Router /academic-terms [post]
func (h *PeriodHandler) CreateTerm(c *gin.Context) {
	var req service.AcademicTermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	term, err := h.service.CreateTerm(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, term)
}

// UpdateTerm godoc
// @Summary Update academic term
// @Tags Academic Terms
// @Accept json
// @Produce json
// @Param id path string true "Academic term ID"
// @Param payload body service.AcademicTermRequest true "Academic term payload"
// @Success 200 {object} response.Envelope
// @Router /academic-terms/{id} [put]
func (h *PeriodHandler) UpdateTerm(c *gin.Context) {
	var req service.AcademicTermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	term, err := h.service.UpdateTerm(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, term, nil)
}

// EndTerm godoc
// @Summary End an academic term now
// @Tags Academic Terms
// @Produce json
// @Param id path string true "Academic term ID"
// @Success 200 {object} response.Envelope
// @Router /academic-terms/{id}/end [post]
func (h *PeriodHandler) EndTerm(c *gin.Context) {
	term, err := h.service.EndTerm(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, term, nil)
}

// DeleteTerm godoc
// @Summary Delete academic term
// @Tags Academic Terms
// @Param id path string true "Academic term ID"
// @Success 204
// @Router /academic-terms/{id} [delete]
func (h *PeriodHandler) DeleteTerm(c *gin.Context) {
	if err := h.service.DeleteTerm(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
