package service

import (
	"context"
	"encoding/csv"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/internal/dto"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
	"github.com/noah-isme/assessment-window-api/pkg/export"
	"github.com/noah-isme/assessment-window-api/pkg/storage"
)

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	reports := NewIncompleteService(&incompleteSourceStub{records: incompleteFixtureRecords()}, nil, newTestCalculator(t), nil, nil, time.Minute)
	svc := NewExportService(reports, store, signer, ExportConfig{APIPrefix: "/api/v1/"}, nil, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return svc, store
}

func exportRequest(t *testing.T, format string) dto.IncompleteExportRequest {
	return dto.IncompleteExportRequest{
		IncompleteQuery: dto.IncompleteQuery{Scope: "student", ID: "student 1/a", From: ts(t, "2024-02-01 00:00"), To: ts(t, "2024-03-31 00:00")},
		Format:          format,
	}
}

func downloadToken(t *testing.T, downloadURL string) string {
	t.Helper()
	parsed, err := url.Parse(downloadURL)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/incomplete/exports/download", parsed.Path)
	return parsed.Query().Get("token")
}

func TestExportIncompleteCSV(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	now := ts(t, "2024-03-11 10:00")

	artifact, err := svc.ExportIncomplete(context.Background(), exportRequest(t, "csv"), now)
	require.NoError(t, err)
	assert.Equal(t, 4, artifact.RowCount)
	assert.Equal(t, now.Add(time.Hour), artifact.ExpiresAt)
	assert.True(t, strings.HasPrefix(artifact.Path, "incomplete/student_student_1-a_20240311_100000_"), artifact.Path)
	assert.True(t, strings.HasSuffix(artifact.Path, ".csv"))

	download, err := svc.OpenDownload(downloadToken(t, artifact.DownloadURL), now.Add(time.Minute))
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv", download.ContentType)

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, incompleteExportHeaders, rows[0])
}

func TestExportIncompletePDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	artifact, err := svc.ExportIncomplete(context.Background(), exportRequest(t, "pdf"), ts(t, "2024-03-11 10:00"))
	require.NoError(t, err)
	assert.Equal(t, "pdf", artifact.Format)

	file, err := store.Open(artifact.Path)
	require.NoError(t, err)
	defer file.Close()
	info, err := file.Stat()
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportIncompleteRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	_, err := svc.ExportIncomplete(context.Background(), exportRequest(t, "xlsx"), ts(t, "2024-03-11 10:00"))

	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestOpenDownloadRejectsBadTokens(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	now := ts(t, "2024-03-11 10:00")
	artifact, err := svc.ExportIncomplete(context.Background(), exportRequest(t, "csv"), now)
	require.NoError(t, err)
	token := downloadToken(t, artifact.DownloadURL)

	_, err = svc.OpenDownload(token, now.Add(2*time.Hour))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))
	assert.Equal(t, "download link expired", appErrors.FromError(err).Message)

	_, err = svc.OpenDownload(token+"x", now)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	require.NoError(t, store.Delete(artifact.Path))
	_, err = svc.OpenDownload(token, now)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}
