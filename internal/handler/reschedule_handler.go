package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assessment-window-api/internal/dto"
	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/internal/service"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
	"github.com/noah-isme/assessment-window-api/pkg/response"
)

type rescheduleManager interface {
	Reschedule(ctx context.Context, teacherID string, req dto.RescheduleRequest, now time.Time) (*models.Reschedule, error)
	CancelReschedule(ctx context.Context, teacherID, rescheduleID string, req dto.CancelRescheduleRequest, now time.Time) (*models.Reschedule, error)
	ListByTeacher(ctx context.Context, teacherID, studentID string) ([]models.Reschedule, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Reschedule, error)
}

// RescheduleHandler exposes teacher reschedule endpoints.
type RescheduleHandler struct {
	service rescheduleManager
	now     func() time.Time
}

// NewRescheduleHandler constructs the handler.
func NewRescheduleHandler(svc *service.RescheduleService) *RescheduleHandler {
	return &RescheduleHandler{service: svc, now: systemClock}
}

// Create godoc
// @Summary Move a student's assessment window
// @Tags Reschedules
// @Accept json
// @Produce json
// @Param payload body dto.RescheduleRequest true "Reschedule payload"
// @Success 201 {object} response.Envelope
// @Router /reschedules [post]
func (h *RescheduleHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reschedule payload"))
		return
	}
	result, err := h.service.Reschedule(c.Request.Context(), claims.UserID, req, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Cancel godoc
// @Summary Cancel a reschedule before the new window opens
// @Tags Reschedules
// @Accept json
// @Produce json
// @Param id path string true "Reschedule ID"
// @Param payload body dto.CancelRescheduleRequest true "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Router /reschedules/{id}/cancel [post]
func (h *RescheduleHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CancelRescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancel payload"))
		return
	}
	result, err := h.service.CancelReschedule(c.Request.Context(), claims.UserID, c.Param("id"), req, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List reschedules
// @Description Teachers see the reschedules they created. Admins must filter by student_id.
// @Tags Reschedules
// @Produce json
// @Param student_id query string false "Student ID"
// @Success 200 {object} response.Envelope
// @Router /reschedules [get]
func (h *RescheduleHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.RescheduleListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	var (
		items []models.Reschedule
		err   error
	)
	switch {
	case claims.Role == models.RoleTeacher:
		items, err = h.service.ListByTeacher(c.Request.Context(), claims.UserID, query.StudentID)
	case query.StudentID != "":
		items, err = h.service.ListByStudent(c.Request.Context(), query.StudentID)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ListForStudent godoc
// @Summary List reschedules affecting a student
// @Tags Reschedules
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/reschedules [get]
func (h *RescheduleHandler) ListForStudent(c *gin.Context) {
	items, err := h.service.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
