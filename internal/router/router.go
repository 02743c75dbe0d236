package router

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assessment-window-api/internal/handler"
	"github.com/noah-isme/assessment-window-api/internal/middleware"
	"github.com/noah-isme/assessment-window-api/internal/models"
)

// Dependencies bundles the handlers mounted under the API prefix.
type Dependencies struct {
	Access     *handler.AccessHandler
	Submission *handler.SubmissionHandler
	Reschedule *handler.RescheduleHandler
	Generation *handler.GenerationHandler
	Incomplete *handler.IncompleteHandler
	Instance   *handler.InstanceHandler
	Metrics    *handler.MetricsHandler

	// Auth guards every route under the prefix except the signed export download.
	Auth gin.HandlerFunc
}

// Register mounts ops endpoints at the root and domain endpoints under prefix.
func Register(r *gin.Engine, prefix string, deps Dependencies) {
	r.GET("/health", deps.Metrics.Health)
	r.GET("/ready", deps.Metrics.Ready)
	r.GET("/metrics", deps.Metrics.Prometheus)

	api := r.Group("/" + strings.Trim(prefix, "/"))
	api.GET("/incomplete/exports/download", deps.Incomplete.Download)

	secured := api.Group("")
	secured.Use(deps.Auth)

	student := middleware.RequireRoles(models.RoleStudent)
	teacher := middleware.RequireRoles(models.RoleTeacher)
	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin, models.RoleSuperAdmin)
	admin := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)
	adminOrSelf := middleware.RBAC(string(models.RoleTeacher), string(models.RoleAdmin), string(models.RoleSuperAdmin), middleware.Self)

	assessments := secured.Group("/assessments/:id")
	assessments.GET("/access", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin, models.RoleSuperAdmin), deps.Access.Check)
	assessments.POST("/submissions", student, deps.Submission.Submit)
	assessments.GET("/instances", staff, deps.Instance.List)
	assessments.GET("/instances/validation", staff, deps.Instance.Validate)
	assessments.DELETE("/instances", staff, deps.Instance.Delete)

	reschedules := secured.Group("/reschedules")
	reschedules.POST("", teacher, deps.Reschedule.Create)
	reschedules.POST("/:id/cancel", teacher, deps.Reschedule.Cancel)
	reschedules.GET("", staff, deps.Reschedule.List)

	students := secured.Group("/students/:id")
	students.GET("/reschedules", adminOrSelf, deps.Reschedule.ListForStudent)
	students.GET("/submissions/nullified", adminOrSelf, deps.Submission.Nullified)

	secured.POST("/submissions/validation/sweep", admin, deps.Submission.Sweep)

	generation := secured.Group("/generation/weeks/:week", admin)
	generation.POST("", deps.Generation.Generate)
	generation.POST("/jobs", deps.Generation.Enqueue)

	incomplete := secured.Group("/incomplete", staff)
	incomplete.GET("/statistics", deps.Incomplete.Statistics)
	incomplete.GET("/report", deps.Incomplete.Report)
	incomplete.POST("/exports", deps.Incomplete.Export)
}
