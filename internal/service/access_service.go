package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/internal/models"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

type progressEnsurer interface {
	EnsureProgress(ctx context.Context, studentID, assessmentID string, now time.Time) (*models.Progress, error)
}

type activeRescheduleReader interface {
	FindActiveForProgress(ctx context.Context, progressID string) (*models.Reschedule, error)
}

type submissionChecker interface {
	Exists(ctx context.Context, studentID, assessmentID string, instanceID *string) (bool, error)
	ExistsForAssessment(ctx context.Context, studentID, assessmentID string) (bool, error)
}

// AccessDecision is an access result together with the progress record it was computed from.
type AccessDecision struct {
	Result     models.AccessResult
	Progress   *models.Progress
	Reschedule *models.Reschedule
}

// AccessService decides whether a student may enter an assessment at a given instant.
type AccessService struct {
	progress    progressEnsurer
	reschedules activeRescheduleReader
	submissions submissionChecker
	calc        *WindowCalculator
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewAccessService constructs the evaluator.
func NewAccessService(progress progressEnsurer, reschedules activeRescheduleReader, submissions submissionChecker, calc *WindowCalculator, metrics *MetricsService, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{progress: progress, reschedules: reschedules, submissions: submissions, calc: calc, metrics: metrics, logger: logger}
}

// CanAccess evaluates access for the student at now.
func (s *AccessService) CanAccess(ctx context.Context, studentID, assessmentID string, now time.Time) (*models.AccessResult, error) {
	decision, err := s.Resolve(ctx, studentID, assessmentID, now)
	if err != nil {
		return nil, err
	}
	return &decision.Result, nil
}

// Resolve evaluates access and also returns the governing progress record.
func (s *AccessService) Resolve(ctx context.Context, studentID, assessmentID string, now time.Time) (*AccessDecision, error) {
	progress, err := s.progress.EnsureProgress(ctx, studentID, assessmentID, now)
	if err != nil {
		return nil, err
	}

	// Only a reschedule of this exact record may move its window; sibling periods of the
	// same topic share the assessment but keep their own windows.
	reschedule, err := s.reschedules.FindActiveForProgress(ctx, progress.ID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reschedule")
		}
		reschedule = nil
	}

	start, end, grace := s.effectiveWindow(progress, reschedule)
	result := models.AccessResult{
		ProgressID:  progress.ID,
		WindowStart: &start,
		WindowEnd:   &end,
		GraceEnd:    &grace,
		Rescheduled: reschedule != nil,
	}

	switch {
	case now.Before(start):
		result.Status = models.AccessNotYetOpen
		result.MinutesUntilOpen = int64(math.Ceil(start.Sub(now).Minutes()))
		result.Reason = fmt.Sprintf("assessment opens at %s", start.Format(time.RFC3339))
	case now.After(end):
		result.Status = models.AccessExpired
		result.InGracePeriod = !now.After(grace)
		if result.InGracePeriod {
			result.Reason = fmt.Sprintf("window closed at %s; late submissions accepted until %s", end.Format(time.RFC3339), grace.Format(time.RFC3339))
		} else {
			result.Reason = fmt.Sprintf("window closed at %s", end.Format(time.RFC3339))
		}
	default:
		submitted, err := s.hasSubmitted(ctx, studentID, assessmentID, progress)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check submissions")
		}
		if submitted {
			result.Status = models.AccessAlreadySubmitted
			result.Reason = "assessment already submitted"
		} else {
			result.Status = models.AccessAllowed
			result.MinutesRemaining = int64(end.Sub(now).Minutes())
		}
	}

	s.metrics.RecordAccessDecision(string(result.Status))
	s.logger.Debug("access evaluated",
		zap.String("student_id", studentID),
		zap.String("assessment_id", assessmentID),
		zap.String("progress_id", progress.ID),
		zap.String("status", string(result.Status)))

	return &AccessDecision{Result: result, Progress: progress, Reschedule: reschedule}, nil
}

// hasSubmitted checks the record's own instance when it has one. Records without an instance
// count any submission of the assessment.
func (s *AccessService) hasSubmitted(ctx context.Context, studentID, assessmentID string, progress *models.Progress) (bool, error) {
	if progress.Completed {
		return true, nil
	}
	if progress.AssessmentInstanceID == nil {
		return s.submissions.ExistsForAssessment(ctx, studentID, assessmentID)
	}
	return s.submissions.Exists(ctx, studentID, assessmentID, progress.AssessmentInstanceID)
}

func (s *AccessService) effectiveWindow(progress *models.Progress, reschedule *models.Reschedule) (start, end, grace time.Time) {
	if reschedule != nil {
		return reschedule.NewWindowStart, reschedule.NewWindowEnd, reschedule.NewGraceEnd
	}
	start, end = *progress.AssessmentWindowStart, *progress.AssessmentWindowEnd
	if progress.GracePeriodEnd != nil {
		return start, end, *progress.GracePeriodEnd
	}
	return start, end, s.calc.GraceEnd(end)
}
