package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/internal/dto"
	"github.com/noah-isme/assessment-window-api/internal/models"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
	"github.com/noah-isme/assessment-window-api/pkg/export"
	"github.com/noah-isme/assessment-window-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type urlSigner interface {
	Generate(exportID, relPath string, now time.Time) (string, time.Time, error)
	Parse(token string, now time.Time) (exportID, relPath string, err error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, subtitle string) ([]byte, error)
}

type incompleteReporter interface {
	GetReport(ctx context.Context, query dto.IncompleteQuery, now time.Time) (*models.IncompleteReport, error)
}

// ExportConfig tunes export URLs.
type ExportConfig struct {
	APIPrefix string
}

// ExportDownload is a resolved export file ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
}

var incompleteExportHeaders = []string{
	"Student", "Subject", "Topic", "Scheduled Date", "Period", "Sequence", "Reason", "Days Overdue", "Urgency",
}

// ExportService renders incomplete reports to CSV or PDF and hands out signed download links.
type ExportService struct {
	reports   incompleteReporter
	storage   fileStorage
	signer    urlSigner
	csv       csvRenderer
	pdf       pdfRenderer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(reports incompleteReporter, storage fileStorage, signer urlSigner, cfg ExportConfig, validate *validator.Validate, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		reports:   reports,
		storage:   storage,
		signer:    signer,
		csv:       csv,
		pdf:       pdf,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// ExportIncomplete renders the incomplete records of the query and stores the file.
func (s *ExportService) ExportIncomplete(ctx context.Context, req dto.IncompleteExportRequest, now time.Time) (*models.ExportArtifact, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	report, err := s.reports.GetReport(ctx, req.IncompleteQuery, now)
	if err != nil {
		return nil, err
	}

	dataset := incompleteDataset(report.Records)
	var payload []byte
	switch export.Format(req.Format) {
	case export.FormatCSV:
		payload, err = s.csv.Render(dataset)
	case export.FormatPDF:
		subtitle := fmt.Sprintf("%s %s | %s to %s | incomplete %d of %d",
			req.Scope, req.ID, req.From.Format("2006-01-02"), req.To.Format("2006-01-02"),
			report.Statistics.TotalIncomplete, report.Statistics.TotalLessons)
		payload, err = s.pdf.Render(dataset, "Incomplete Assessments", strings.TrimSpace(subtitle))
	default:
		err = fmt.Errorf("unsupported format %s", req.Format)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	id := uuid.NewString()
	filename := s.buildFilename(req, id, now)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(id, relPath, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("incomplete export created",
		zap.String("export_id", id),
		zap.String("format", req.Format),
		zap.Int("rows", len(report.Records)))
	return &models.ExportArtifact{
		ID:          id,
		Format:      req.Format,
		Path:        relPath,
		DownloadURL: fmt.Sprintf("%s/incomplete/exports/download?token=%s", prefix, token),
		ExpiresAt:   expiresAt,
		RowCount:    len(report.Records),
	}, nil
}

// OpenDownload validates a signed token and opens the stored file.
func (s *ExportService) OpenDownload(token string, now time.Time) (*ExportDownload, error) {
	_, relPath, err := s.signer.Parse(token, now)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	format := export.FormatCSV
	if strings.HasSuffix(relPath, "."+string(export.FormatPDF)) {
		format = export.FormatPDF
	}
	parts := strings.Split(relPath, "/")
	return &ExportDownload{File: file, Filename: parts[len(parts)-1], ContentType: format.ContentType()}, nil
}

func (s *ExportService) buildFilename(req dto.IncompleteExportRequest, id string, now time.Time) string {
	scope := req.Scope
	if req.ID != "" {
		scope = scope + "_" + sanitizeFilename(req.ID)
	}
	return fmt.Sprintf("incomplete/%s_%s_%s.%s", scope, now.UTC().Format("20060102_150405"), id[:8], req.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func incompleteDataset(records []models.IncompleteRecord) export.Dataset {
	rows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		row := map[string]string{
			"Student":        record.StudentID,
			"Subject":        record.SubjectName,
			"Topic":          deref(record.LessonTopicTitle),
			"Scheduled Date": record.ScheduledDate.Format("2006-01-02"),
			"Period":         strconv.Itoa(record.PeriodNumber),
			"Sequence":       fmt.Sprintf("%d/%d", record.PeriodSequence, record.TotalPeriodsInSequence),
			"Reason":         deref(record.IncompleteReason),
			"Days Overdue":   strconv.Itoa(record.DaysOverdue),
			"Urgency":        string(record.Urgency),
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: incompleteExportHeaders, Rows: rows}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
