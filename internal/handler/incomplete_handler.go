package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assessment-window-api/internal/dto"
	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/internal/service"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
	"github.com/noah-isme/assessment-window-api/pkg/response"
)

type incompleteTracker interface {
	GetStatistics(ctx context.Context, query dto.IncompleteQuery, now time.Time) (*models.IncompleteStatistics, error)
	GetReport(ctx context.Context, query dto.IncompleteQuery, now time.Time) (*models.IncompleteReport, error)
}

type incompleteExporter interface {
	ExportIncomplete(ctx context.Context, req dto.IncompleteExportRequest, now time.Time) (*models.ExportArtifact, error)
	OpenDownload(token string, now time.Time) (*service.ExportDownload, error)
}

// IncompleteHandler serves incomplete statistics, reports and exports.
type IncompleteHandler struct {
	service  incompleteTracker
	exporter incompleteExporter
	now      func() time.Time
}

// NewIncompleteHandler constructs the handler.
func NewIncompleteHandler(svc *service.IncompleteService, exporter *service.ExportService) *IncompleteHandler {
	return &IncompleteHandler{service: svc, exporter: exporter, now: systemClock}
}

// Statistics godoc
// @Summary Aggregate incomplete assessments
// @Tags Incomplete
// @Produce json
// @Param scope query string true "student, subject or system"
// @Param id query string false "Student or subject ID"
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /incomplete/statistics [get]
func (h *IncompleteHandler) Statistics(c *gin.Context) {
	var query dto.IncompleteQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	stats, err := h.service.GetStatistics(c.Request.Context(), query, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Report godoc
// @Summary Detailed incomplete report with rankings
// @Tags Incomplete
// @Produce json
// @Param scope query string true "student, subject or system"
// @Param id query string false "Student or subject ID"
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /incomplete/report [get]
func (h *IncompleteHandler) Report(c *gin.Context) {
	var query dto.IncompleteQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	report, err := h.service.GetReport(c.Request.Context(), query, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Export incomplete records as CSV or PDF
// @Tags Incomplete
// @Produce json
// @Param scope query string true "student, subject or system"
// @Param id query string false "Student or subject ID"
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Param format query string true "csv or pdf"
// @Success 201 {object} response.Envelope
// @Router /incomplete/exports [post]
func (h *IncompleteHandler) Export(c *gin.Context) {
	var req dto.IncompleteExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export parameters"))
		return
	}
	artifact, err := h.exporter.ExportIncomplete(c.Request.Context(), req, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, artifact)
}

// Download godoc
// @Summary Download an export via signed token
// @Tags Incomplete
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /incomplete/exports/download [get]
func (h *IncompleteHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.exporter.OpenDownload(token, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	info, err := result.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), result.ContentType, result.File, nil)
}
