package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/internal/service"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
	"github.com/noah-isme/assessment-window-api/pkg/response"
)

type instanceManager interface {
	ListInstances(ctx context.Context, baseID string) ([]models.AssessmentInstance, error)
	ValidateAssessment(ctx context.Context, assessmentID string, periods int) (models.ShuffleValidation, error)
	DeleteInstances(ctx context.Context, baseID string) (int64, error)
}

// InstanceHandler exposes per-period assessment instances.
type InstanceHandler struct {
	service instanceManager
}

// NewInstanceHandler constructs the handler.
func NewInstanceHandler(svc *service.QuestionShufflerService) *InstanceHandler {
	return &InstanceHandler{service: svc}
}

// List godoc
// @Summary List shuffled instances of an assessment
// @Tags Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id}/instances [get]
func (h *InstanceHandler) List(c *gin.Context) {
	items, err := h.service.ListInstances(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Validate godoc
// @Summary Check whether the question pool can cover a sequence
// @Tags Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Param periods query int true "Number of periods in the sequence"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id}/instances/validation [get]
func (h *InstanceHandler) Validate(c *gin.Context) {
	periods, err := strconv.Atoi(c.Query("periods"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "periods must be an integer"))
		return
	}
	result, err := h.service.ValidateAssessment(c.Request.Context(), c.Param("id"), periods)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete every instance derived from an assessment
// @Tags Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id}/instances [delete]
func (h *InstanceHandler) Delete(c *gin.Context) {
	deleted, err := h.service.DeleteInstances(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": deleted}, nil)
}
