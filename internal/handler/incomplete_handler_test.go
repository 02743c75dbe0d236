package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-window-api/internal/dto"
	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/internal/service"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

type incompleteTrackerStub struct {
	query dto.IncompleteQuery
}

func (s *incompleteTrackerStub) GetStatistics(ctx context.Context, query dto.IncompleteQuery, now time.Time) (*models.IncompleteStatistics, error) {
	s.query = query
	return &models.IncompleteStatistics{Scope: models.IncompleteScope(query.Scope), TotalLessons: 6, TotalIncomplete: 4}, nil
}

func (s *incompleteTrackerStub) GetReport(ctx context.Context, query dto.IncompleteQuery, now time.Time) (*models.IncompleteReport, error) {
	s.query = query
	return &models.IncompleteReport{Records: []models.IncompleteRecord{{ProgressID: "p2"}}}, nil
}

type exporterStub struct {
	req  dto.IncompleteExportRequest
	path string
	err  error
}

func (s *exporterStub) ExportIncomplete(ctx context.Context, req dto.IncompleteExportRequest, now time.Time) (*models.ExportArtifact, error) {
	s.req = req
	return &models.ExportArtifact{ID: "export-1", Format: req.Format, DownloadURL: "/api/v1/incomplete/exports/download?token=abc"}, nil
}

func (s *exporterStub) OpenDownload(token string, now time.Time) (*service.ExportDownload, error) {
	if s.err != nil {
		return nil, s.err
	}
	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	return &service.ExportDownload{File: file, Filename: filepath.Base(s.path), ContentType: "text/csv"}, nil
}

func incompleteRoutes(tracker *incompleteTrackerStub, exporter *exporterStub) http.Handler {
	handler := &IncompleteHandler{service: tracker, exporter: exporter, now: fixedClock}
	router := newRouter(teacher("teacher-1"))
	router.GET("/incomplete/statistics", handler.Statistics)
	router.GET("/incomplete/report", handler.Report)
	router.POST("/incomplete/exports", handler.Export)
	router.GET("/incomplete/exports/download", handler.Download)
	return router
}

func TestIncompleteStatisticsBindsQuery(t *testing.T) {
	tracker := &incompleteTrackerStub{}
	w := perform(incompleteRoutes(tracker, &exporterStub{}), http.MethodGet, "/incomplete/statistics?scope=subject&id=math&from=2024-02-01&to=2024-03-31", nil)

	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "subject", tracker.query.Scope)
	assert.Equal(t, "math", tracker.query.ID)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), tracker.query.From.UTC())
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), tracker.query.To.UTC())
}

func TestIncompleteStatisticsRejectsBadDate(t *testing.T) {
	w := perform(incompleteRoutes(&incompleteTrackerStub{}, &exporterStub{}), http.MethodGet, "/incomplete/statistics?scope=system&from=01-02-2024&to=2024-03-31", nil)
	requireStatus(t, w, http.StatusBadRequest)
}

func TestIncompleteReport(t *testing.T) {
	tracker := &incompleteTrackerStub{}
	w := perform(incompleteRoutes(tracker, &exporterStub{}), http.MethodGet, "/incomplete/report?scope=system&from=2024-02-01&to=2024-03-31", nil)

	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "system", tracker.query.Scope)
}

func TestIncompleteExportBindsFormat(t *testing.T) {
	exporter := &exporterStub{}
	w := perform(incompleteRoutes(&incompleteTrackerStub{}, exporter), http.MethodPost, "/incomplete/exports?scope=student&id=student-1&from=2024-02-01&to=2024-03-31&format=pdf", nil)

	requireStatus(t, w, http.StatusCreated)
	assert.Equal(t, "pdf", exporter.req.Format)
	assert.Equal(t, "student-1", exporter.req.ID)
	assert.Equal(t, 2024, exporter.req.From.Year())
}

func TestIncompleteDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incomplete_system.csv")
	require.NoError(t, os.WriteFile(path, []byte("Student,Subject\nstudent-1,math\n"), 0o600))
	exporter := &exporterStub{path: path}

	w := perform(incompleteRoutes(&incompleteTrackerStub{}, exporter), http.MethodGet, "/incomplete/exports/download?token=abc", nil)

	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="incomplete_system.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Student,Subject\nstudent-1,math\n", w.Body.String())
}

func TestIncompleteDownloadErrors(t *testing.T) {
	w := perform(incompleteRoutes(&incompleteTrackerStub{}, &exporterStub{}), http.MethodGet, "/incomplete/exports/download", nil)
	requireStatus(t, w, http.StatusBadRequest)

	exporter := &exporterStub{err: appErrors.Clone(appErrors.ErrForbidden, "download link expired")}
	w = perform(incompleteRoutes(&incompleteTrackerStub{}, exporter), http.MethodGet, "/incomplete/exports/download?token=old", nil)
	requireStatus(t, w, http.StatusForbidden)
	assert.Equal(t, "download link expired", decodeEnvelope(t, w).Error.Message)
}
