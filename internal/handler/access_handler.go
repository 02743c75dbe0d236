package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/internal/service"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
	"github.com/noah-isme/assessment-window-api/pkg/response"
)

type accessChecker interface {
	CanAccess(ctx context.Context, studentID, assessmentID string, now time.Time) (*models.AccessResult, error)
}

// AccessHandler answers whether a student may enter an assessment.
type AccessHandler struct {
	service accessChecker
	now     func() time.Time
}

// NewAccessHandler constructs the handler.
func NewAccessHandler(svc *service.AccessService) *AccessHandler {
	return &AccessHandler{service: svc, now: systemClock}
}

// Check godoc
// @Summary Check assessment access for a student
// @Description Students check their own access. Admins pass student_id to check on behalf of a student.
// @Tags Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Param student_id query string false "Student ID (admin only)"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id}/access [get]
func (h *AccessHandler) Check(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	studentID := claims.UserID
	if override := c.Query("student_id"); override != "" && override != claims.UserID {
		if !isAdmin(claims.Role) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "cannot check access for another student"))
			return
		}
		studentID = override
	} else if claims.Role != models.RoleStudent && override == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_id is required"))
		return
	}

	result, err := h.service.CanAccess(c.Request.Context(), studentID, c.Param("id"), h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
