package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/school-results-api/internal/grading"
	"github.com/noah-isme/school-results-api/internal/models"
	"github.com/noah-isme/school-results-api/internal/service"
	appErrors "github.com/noah-isme/school-results-api/pkg/errors"
	"github.com/noah-isme/school-results-api/pkg/response"
)

type gradingSystemService interface {
	List(ctx context.Context) ([]models.GradingSystem, error)
	Get(ctx context.Context, id string) (*models.GradingSystem, error)
	Create(ctx context.Context, req service.GradingSystemRequest) (*models.GradingSystem, error)
	Update(ctx context.Context, id string, req service.GradingSystemRequest) (*models.GradingSystem, error)
	Delete(ctx context.Context, id string) error
	Resolve(ctx context.Context, score decimal.Decimal) (grading.Resolution, error)
}

// GradingSystemHandler exposes grade band endpoints.
type GradingSystemHandler struct {
	service gradingSystemService
}

// NewGradingSystemHandler constructs a grading system handler.
func NewGradingSystemHandler(svc gradingSystemService) *GradingSystemHandler {
	return &GradingSystemHandler{service: svc}
}

// List godoc
// @Summary List grade bands
// @Tags Grading Systems
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /grading-systems [get]
func (h *GradingSystemHandler) List(c *gin.Context) {
	bands, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bands, nil)
}

// Get godoc
// @Summary Get grade band
// @Tags Grading Systems
// @Produce json
// @Param id path string true "Grading system ID"
// @Success 200 {object} response.Envelope
// @Router /grading-systems/{id} [get]
func (h *GradingSystemHandler) Get(c *gin.Context) {
	band, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, band, nil)
}

// Resolve godoc
// @Summary Resolve a score to its grade and remark
// @Tags Grading Systems
// @Produce json
// @Param score query number true "Score"
// @Success 200 {object} response.Envelope
// @Router /grading-systems/resolve [get]
func (h *GradingSystemHandler) Resolve(c *gin.Context) {
	score, err := decimal.NewFromString(c.Query("score"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "score must be a number"))
		return
	}
	res, err := h.service.Resolve(c.Request.Context(), score)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Create godoc
// @Summary Create grade band
// @Tags Grading Systems
// @Accept json
// @Produce json
// @Param payload body service.GradingSystemRequest true "Grade band payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /grading-systems [post]
func (h *GradingSystemHandler) Create(c *gin.Context) {
	var req service.GradingSystemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	band, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, band)
}

// Update godoc
// @Summary Update grade band
// @Tags Grading Systems
// @Accept json
// @Produce json
// @Param id path string true "Grading system ID"
// @Param payload body service.GradingSystemRequest true "Grade band payload"
// @Success 200 {object} response.Envelope
// @Router /grading-systems/{id} [put]
func (h *GradingSystemHandler) Update(c *gin.Context) {
	var req service.GradingSystemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	band, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, band, nil)
}

// Delete godoc
// @Summary Delete grade band
// @Tags Grading Systems
// @Param id path string true "Grading system ID"
// @Success 204
// @Router /grading-systems/{id} [delete]
func (h *GradingSystemHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
