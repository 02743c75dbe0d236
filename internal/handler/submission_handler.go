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

type assessmentSubmitter interface {
	SubmitAssessment(ctx context.Context, studentID, assessmentID string, req dto.SubmitAssessmentRequest, now time.Time) (*models.SubmissionResult, error)
}

type submissionSweeper interface {
	Sweep(ctx context.Context, now time.Time) (models.SweepResult, error)
	NullifiedCount(ctx context.Context, studentID string) (int, error)
}

type nullifiedCountResponse struct {
	StudentID      string `json:"student_id"`
	NullifiedCount int    `json:"nullified_count"`
}

// SubmissionHandler accepts submissions and exposes the early-submission validator.
type SubmissionHandler struct {
	service   assessmentSubmitter
	validator submissionSweeper
	now       func() time.Time
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(svc *service.SubmissionService, validator *service.SubmissionValidatorService) *SubmissionHandler {
	return &SubmissionHandler{service: svc, validator: validator, now: systemClock}
}

// Submit godoc
// @Summary Submit answers for an open assessment window
// @Tags Assessments
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body dto.SubmitAssessmentRequest true "Answers"
// @Success 201 {object} response.Envelope
// @Router /assessments/{id}/submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}

	result, err := h.service.SubmitAssessment(c.Request.Context(), claims.UserID, c.Param("id"), req, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Sweep godoc
// @Summary Run the early-submission validator immediately
// @Tags Submissions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /submissions/validation/sweep [post]
func (h *SubmissionHandler) Sweep(c *gin.Context) {
	result, err := h.validator.Sweep(c.Request.Context(), h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Nullified godoc
// @Summary Count a student's nullified submissions
// @Tags Submissions
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/submissions/nullified [get]
func (h *SubmissionHandler) Nullified(c *gin.Context) {
	studentID := c.Param("id")
	count, err := h.validator.NullifiedCount(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, nullifiedCountResponse{StudentID: studentID, NullifiedCount: count}, nil)
}
