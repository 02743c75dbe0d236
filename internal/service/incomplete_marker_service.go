package service

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/pkg/config"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
	"github.com/noah-isme/assessment-window-api/pkg/jobs"
)

type overdueProgressStore interface {
	ListOverdueUnmarked(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]models.Progress, error)
	MarkIncomplete(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress, reason models.IncompleteReason, at time.Time) error
}

type statisticsInvalidator interface {
	Invalidate(ctx context.Context)
}

// IncompleteMarkerService flags progress records whose grace period ran out without a
// submission, which is what makes them show up in incomplete reporting.
type IncompleteMarkerService struct {
	progress    overdueProgressStore
	calc        *WindowCalculator
	invalidator statisticsInvalidator
	metrics     *MetricsService
	logger      *zap.Logger
	interval    time.Duration
	batchSize   int
}

// NewIncompleteMarkerService constructs the marker. invalidator may be nil.
func NewIncompleteMarkerService(progress overdueProgressStore, calc *WindowCalculator, invalidator statisticsInvalidator, metrics *MetricsService, logger *zap.Logger, cfg config.IncompleteConfig) *IncompleteMarkerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MarkBatchSize <= 0 {
		cfg.MarkBatchSize = 200
	}
	return &IncompleteMarkerService{
		progress:    progress,
		calc:        calc,
		invalidator: invalidator,
		metrics:     metrics,
		logger:      logger,
		interval:    cfg.MarkInterval,
		batchSize:   cfg.MarkBatchSize,
	}
}

// StartMarker runs MarkOverdue immediately and then on the configured interval.
func (s *IncompleteMarkerService) StartMarker(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("incomplete marker disabled")
		return
	}
	jobs.Every(ctx, "incomplete-marker", s.interval, true, s.logger, func(ctx context.Context, now time.Time) error {
		_, err := s.MarkOverdue(ctx, now)
		return err
	})
}

// MarkOverdue sets MISSED_GRACE_PERIOD on every uncompleted, unmarked record whose grace
// period ended before now. Records changed concurrently are skipped and retried next pass.
func (s *IncompleteMarkerService) MarkOverdue(ctx context.Context, now time.Time) (models.IncompleteMarkResult, error) {
	started := time.Now()
	result := models.IncompleteMarkResult{StartedAt: now}
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return s.finish(ctx, result, started), err
		}
		batch, err := s.progress.ListOverdueUnmarked(ctx, now, afterID, s.batchSize)
		if err != nil {
			return s.finish(ctx, result, started), appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overdue progress")
		}
		for i := range batch {
			result.Scanned++
			record := &batch[i]
			if grace, ok := s.graceEnd(record); !ok || !now.After(grace) {
				result.Skipped++
				continue
			}
			err := s.progress.MarkIncomplete(ctx, nil, record, models.IncompleteMissedGracePeriod, now)
			switch {
			case err == nil:
				result.Marked++
			case errors.Is(err, appErrors.ErrStaleProgress):
				result.Skipped++
			default:
				result.Failed++
				s.logger.Warn("failed to mark progress incomplete", zap.String("progress_id", record.ID), zap.Error(err))
			}
		}
		if len(batch) < s.batchSize {
			break
		}
		afterID = batch[len(batch)-1].ID
	}

	result = s.finish(ctx, result, started)
	s.logger.Info("incomplete marking completed",
		zap.Int("scanned", result.Scanned),
		zap.Int("marked", result.Marked),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *IncompleteMarkerService) finish(ctx context.Context, result models.IncompleteMarkResult, started time.Time) models.IncompleteMarkResult {
	result.Duration = time.Since(started).String()
	if result.Marked > 0 {
		s.metrics.RecordIncompleteMarked(string(models.IncompleteMissedGracePeriod), result.Marked)
		if s.invalidator != nil {
			s.invalidator.Invalidate(ctx)
		}
	}
	return result
}

func (s *IncompleteMarkerService) graceEnd(record *models.Progress) (time.Time, bool) {
	switch {
	case record.GracePeriodEnd != nil:
		return *record.GracePeriodEnd, true
	case record.AssessmentWindowEnd != nil:
		return s.calc.GraceEnd(*record.AssessmentWindowEnd), true
	default:
		return time.Time{}, false
	}
}
