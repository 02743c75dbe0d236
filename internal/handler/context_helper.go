package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assessment-window-api/internal/middleware"
	"github.com/noah-isme/assessment-window-api/internal/models"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentClaims(c)
}

func systemClock() time.Time {
	return time.Now().UTC()
}

func isAdmin(role models.UserRole) bool {
	return role == models.RoleAdmin || role == models.RoleSuperAdmin
}

func weekParam(c *gin.Context) (int, error) {
	week, err := strconv.Atoi(c.Param("week"))
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "week must be an integer")
	}
	return week, nil
}
