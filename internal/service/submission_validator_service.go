package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/pkg/config"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
	"github.com/noah-isme/assessment-window-api/pkg/jobs"
)

type pendingSubmissionStore interface {
	ListPendingValidation(ctx context.Context, afterID string, limit int) ([]models.Submission, error)
	Nullify(ctx context.Context, id, reason string, at time.Time) (bool, error)
	CountNullified(ctx context.Context, studentID string) (int, error)
}

type validationProgressReader interface {
	FindBySubmission(ctx context.Context, submissionID string) (*models.Progress, error)
	FindByScheduledPeriod(ctx context.Context, periodID string) (*models.Progress, error)
}

type validationPeriodReader interface {
	FindForSubmission(ctx context.Context, topicID, studentID string, instanceID *string) (*models.ScheduledPeriod, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, event models.Event)
}

type validationOutcome int

const (
	outcomeValid validationOutcome = iota
	outcomeSkipped
	outcomeNullified
)

// SubmissionValidatorService nullifies submissions made before the student's window opened.
type SubmissionValidatorService struct {
	submissions pendingSubmissionStore
	progress    validationProgressReader
	periods     validationPeriodReader
	events      eventPublisher
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         config.ValidatorConfig
}

// NewSubmissionValidatorService constructs the validator.
func NewSubmissionValidatorService(
	submissions pendingSubmissionStore,
	progress validationProgressReader,
	periods validationPeriodReader,
	events eventPublisher,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg config.ValidatorConfig,
) *SubmissionValidatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 15 * time.Minute
	}
	return &SubmissionValidatorService{
		submissions: submissions,
		progress:    progress,
		periods:     periods,
		events:      events,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// StartSweeper runs Sweep on the configured interval until ctx is cancelled.
func (s *SubmissionValidatorService) StartSweeper(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("submission sweep disabled")
		return
	}
	jobs.Every(ctx, "submission-validator", s.cfg.SweepInterval, false, s.logger, func(ctx context.Context, now time.Time) error {
		_, err := s.Sweep(ctx, now)
		return err
	})
}

// Sweep validates every ungraded, non-nullified submission. Records are handled one by one so
// an interrupted sweep picks up where it stopped on the next run.
func (s *SubmissionValidatorService) Sweep(ctx context.Context, now time.Time) (models.SweepResult, error) {
	started := time.Now()
	result := models.SweepResult{StartedAt: now}
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return s.finishSweep(result, started), err
		}
		batch, err := s.submissions.ListPendingValidation(ctx, afterID, s.cfg.BatchSize)
		if err != nil {
			return s.finishSweep(result, started), appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions for validation")
		}
		for i := range batch {
			result.Scanned++
			outcome, err := s.check(ctx, &batch[i], now)
			if err != nil {
				result.Failed++
				s.logger.Warn("submission validation failed", zap.String("submission_id", batch[i].ID), zap.Error(err))
				continue
			}
			switch outcome {
			case outcomeNullified:
				result.Nullified++
			case outcomeSkipped:
				result.Skipped++
			}
		}
		if len(batch) < s.cfg.BatchSize {
			break
		}
		afterID = batch[len(batch)-1].ID
	}

	result = s.finishSweep(result, started)
	s.logger.Info("submission sweep completed",
		zap.Int("scanned", result.Scanned),
		zap.Int("nullified", result.Nullified),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *SubmissionValidatorService) finishSweep(result models.SweepResult, started time.Time) models.SweepResult {
	elapsed := time.Since(started)
	result.Duration = elapsed.String()
	s.metrics.ObserveSweep(elapsed)
	return result
}

// Validate reports whether the submission respects its window, nullifying it when it does not.
// Submissions whose window cannot be resolved are treated as valid.
func (s *SubmissionValidatorService) Validate(ctx context.Context, submission *models.Submission, now time.Time) (bool, error) {
	outcome, err := s.check(ctx, submission, now)
	if err != nil {
		return true, err
	}
	return outcome != outcomeNullified, nil
}

// NullifiedCount returns how many of the student's submissions were nullified.
func (s *SubmissionValidatorService) NullifiedCount(ctx context.Context, studentID string) (int, error) {
	count, err := s.submissions.CountNullified(ctx, studentID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count nullified submissions")
	}
	return count, nil
}

// NullificationReason formats the audit message stored on a nullified submission.
func NullificationReason(submittedAt, windowStart time.Time) string {
	return fmt.Sprintf("Submitted at %s before assessment window opened at %s",
		submittedAt.UTC().Format(time.RFC3339), windowStart.UTC().Format(time.RFC3339))
}

func (s *SubmissionValidatorService) check(ctx context.Context, submission *models.Submission, now time.Time) (validationOutcome, error) {
	if submission.IsNullified() {
		return outcomeSkipped, nil
	}
	windowStart, ok, err := s.windowStart(ctx, submission)
	if err != nil {
		return outcomeSkipped, err
	}
	if !ok {
		return outcomeSkipped, nil
	}
	if !submission.SubmittedAt.Before(windowStart) {
		return outcomeValid, nil
	}

	reason := NullificationReason(submission.SubmittedAt, windowStart)
	changed, err := s.submissions.Nullify(ctx, submission.ID, reason, now)
	if err != nil {
		return outcomeSkipped, err
	}
	if !changed {
		return outcomeSkipped, nil
	}

	original := submission.SubmittedAt
	submission.SubmittedBeforeWindow = true
	submission.OriginalSubmissionTime = &original
	submission.NullifiedAt = &now
	submission.NullifiedReason = &reason
	submission.Score, submission.Percentage = 0, 0
	submission.Graded, submission.Passed = false, false

	s.metrics.RecordNullification(1)
	s.logger.Warn("submission nullified",
		zap.String("submission_id", submission.ID),
		zap.String("student_id", submission.StudentID),
		zap.Time("submitted_at", original),
		zap.Time("window_start", windowStart))
	if s.events != nil {
		s.events.Publish(ctx, models.Event{
			Type:       models.EventSubmissionNullified,
			StudentID:  submission.StudentID,
			ResourceID: submission.ID,
			Data: map[string]interface{}{
				"assessment_id": submission.AssessmentID,
				"reason":        reason,
			},
			OccurredAt: now,
		})
	}
	return outcomeNullified, nil
}

// windowStart resolves the window a submission is measured against: the progress row the
// submission completed, else the scheduled period for its topic and instance.
func (s *SubmissionValidatorService) windowStart(ctx context.Context, submission *models.Submission) (time.Time, bool, error) {
	progress, err := s.progress.FindBySubmission(ctx, submission.ID)
	switch {
	case err == nil:
		if progress.AssessmentWindowStart != nil {
			return *progress.AssessmentWindowStart, true, nil
		}
	case !errors.Is(err, sql.ErrNoRows):
		return time.Time{}, false, fmt.Errorf("load progress for submission: %w", err)
	}

	if submission.LessonTopicID == nil || *submission.LessonTopicID == "" {
		return time.Time{}, false, nil
	}
	period, err := s.periods.FindForSubmission(ctx, *submission.LessonTopicID, submission.StudentID, submission.AssessmentInstanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("load scheduled period for submission: %w", err)
	}

	progress, err = s.progress.FindByScheduledPeriod(ctx, period.ID)
	switch {
	case err == nil:
		if progress.AssessmentWindowStart != nil {
			return *progress.AssessmentWindowStart, true, nil
		}
	case !errors.Is(err, sql.ErrNoRows):
		return time.Time{}, false, fmt.Errorf("load progress for period: %w", err)
	}
	if period.AssessmentWindowStart != nil {
		return *period.AssessmentWindowStart, true, nil
	}
	return time.Time{}, false, nil
}
