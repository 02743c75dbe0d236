package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assessment-window-api/internal/dto"
	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/internal/service"
	"github.com/noah-isme/assessment-window-api/pkg/response"
)

type weeklyScheduleGenerator interface {
	GenerateWeeklySchedules(ctx context.Context, week int, now time.Time) (*models.GenerationResult, error)
}

type generationEnqueuer interface {
	EnqueueWeeklyGeneration(week int, now time.Time) (*dto.GenerationJobResponse, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// GenerationHandler triggers weekly schedule generation.
type GenerationHandler struct {
	service    weeklyScheduleGenerator
	jobs       generationEnqueuer
	incomplete cacheInvalidator
	now        func() time.Time
}

// NewGenerationHandler constructs the handler.
func NewGenerationHandler(svc *service.GenerationService, jobs *service.GenerationJobService, incomplete *service.IncompleteService) *GenerationHandler {
	return &GenerationHandler{service: svc, jobs: jobs, incomplete: incomplete, now: systemClock}
}

// Generate godoc
// @Summary Generate schedules for one term week
// @Description Runs synchronously. Failed students are listed in the result instead of aborting the run.
// @Tags Generation
// @Produce json
// @Param week path int true "Term week number"
// @Success 200 {object} response.Envelope
// @Router /generation/weeks/{week} [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	week, err := weekParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.GenerateWeeklySchedules(c.Request.Context(), week, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.incomplete != nil {
		h.incomplete.Invalidate(c.Request.Context())
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Enqueue godoc
// @Summary Queue schedule generation for one term week
// @Tags Generation
// @Produce json
// @Param week path int true "Term week number"
// @Success 202 {object} response.Envelope
// @Router /generation/weeks/{week}/jobs [post]
func (h *GenerationHandler) Enqueue(c *gin.Context) {
	week, err := weekParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	job, err := h.jobs.EnqueueWeeklyGeneration(week, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}
