package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/pkg/database"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type progressStore interface {
	FindByID(ctx context.Context, id string) (*models.Progress, error)
	ListOpenForAssessment(ctx context.Context, studentID, assessmentID string) ([]models.Progress, error)
	FindLatestCompleted(ctx context.Context, studentID, assessmentID string) (*models.Progress, error)
	FindByStudentTopicDate(ctx context.Context, studentID, topicID string, date time.Time) (*models.Progress, error)
	Create(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress) error
	UpdateWindow(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress) error
}

type scheduledPeriodReader interface {
	FindByID(ctx context.Context, id string) (*models.ScheduledPeriod, error)
}

// ProgressService resolves the progress record behind an assessment attempt and repairs
// records whose window was never configured.
type ProgressService struct {
	progress    progressStore
	periods     scheduledPeriodReader
	assessments assessmentReader
	calc        *WindowCalculator
	logger      *zap.Logger
}

// NewProgressService constructs the service.
func NewProgressService(progress progressStore, periods scheduledPeriodReader, assessments assessmentReader, calc *WindowCalculator, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{progress: progress, periods: periods, assessments: assessments, calc: calc, logger: logger}
}

// EnsureProgress finds (or creates) the record governing the student's attempt at the
// assessment and returns it with a configured, accessible window. When every record is
// completed the latest completed one is returned untouched. Repairs are persisted
// under the record's version; a failed repair is logged and the in-memory repair returned.
func (s *ProgressService) EnsureProgress(ctx context.Context, studentID, assessmentID string, now time.Time) (*models.Progress, error) {
	if studentID == "" || assessmentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student and assessment are required")
	}

	records, err := s.progress.ListOpenForAssessment(ctx, studentID, assessmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress")
	}
	if selected := selectProgress(records, now); selected != nil {
		return s.normalize(ctx, selected, assessmentID), nil
	}

	// A finished attempt is never replaced by a fresh record.
	completed, err := s.progress.FindLatestCompleted(ctx, studentID, assessmentID)
	switch {
	case err == nil:
		return completed, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed progress")
	}

	assessment, err := s.assessments.FindByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}

	today := s.calc.DateOf(now)
	if assessment.LessonTopicID != nil {
		progress, err := s.progress.FindByStudentTopicDate(ctx, studentID, *assessment.LessonTopicID, today)
		switch {
		case err == nil:
			return s.normalize(ctx, progress, assessmentID), nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress for topic")
		}
	}

	return s.create(ctx, studentID, assessment, today)
}

func (s *ProgressService) create(ctx context.Context, studentID string, assessment *models.Assessment, today time.Time) (*models.Progress, error) {
	window := s.calc.FullDay(today)
	assessmentID := assessment.ID
	progress := &models.Progress{
		StudentID:              studentID,
		SubjectID:              assessment.SubjectID,
		LessonTopicID:          assessment.LessonTopicID,
		AssessmentID:           &assessmentID,
		ScheduledDate:          today,
		PeriodSequence:         1,
		TotalPeriodsInSequence: 1,
		AssessmentWindowStart:  &window.Start,
		AssessmentWindowEnd:    &window.End,
		GracePeriodEnd:         &window.GraceEnd,
		AssessmentAccessible:   true,
	}
	if err := s.progress.Create(ctx, nil, progress); err != nil {
		if database.IsUniqueViolation(err) && assessment.LessonTopicID != nil {
			existing, findErr := s.progress.FindByStudentTopicDate(ctx, studentID, *assessment.LessonTopicID, today)
			if findErr == nil {
				return s.normalize(ctx, existing, assessmentID), nil
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create progress")
	}
	s.logger.Info("progress auto-created with full-day window",
		zap.String("student_id", studentID),
		zap.String("assessment_id", assessmentID),
		zap.String("progress_id", progress.ID))
	return progress, nil
}

func (s *ProgressService) normalize(ctx context.Context, progress *models.Progress, assessmentID string) *models.Progress {
	var repairs []string

	if progress.AssessmentID == nil || *progress.AssessmentID != assessmentID {
		id := assessmentID
		progress.AssessmentID = &id
		repairs = append(repairs, "assessment_link")
	}
	if !progress.WindowConfigured() {
		window := s.windowFor(ctx, progress)
		progress.AssessmentWindowStart = &window.Start
		progress.AssessmentWindowEnd = &window.End
		progress.GracePeriodEnd = &window.GraceEnd
		repairs = append(repairs, "window")
	}
	if progress.GracePeriodEnd == nil {
		grace := s.calc.GraceEnd(*progress.AssessmentWindowEnd)
		progress.GracePeriodEnd = &grace
		repairs = append(repairs, "grace")
	}
	if !progress.AssessmentAccessible {
		progress.AssessmentAccessible = true
		repairs = append(repairs, "accessible")
	}
	if len(repairs) == 0 {
		return progress
	}

	if err := s.progress.UpdateWindow(ctx, nil, progress); err != nil {
		if errors.Is(err, appErrors.ErrStaleProgress) {
			if fresh, findErr := s.progress.FindByID(ctx, progress.ID); findErr == nil && fresh.WindowConfigured() {
				s.logger.Info("progress repaired concurrently", zap.String("progress_id", progress.ID))
				return fresh
			}
		}
		s.logger.Warn("failed to persist progress repair",
			zap.String("progress_id", progress.ID),
			zap.Strings("repairs", repairs),
			zap.Error(err))
		return progress
	}
	s.logger.Info("progress repaired", zap.String("progress_id", progress.ID), zap.Strings("repairs", repairs))
	return progress
}

func (s *ProgressService) windowFor(ctx context.Context, progress *models.Progress) Window {
	if progress.ScheduledPeriodID != nil && s.periods != nil {
		period, err := s.periods.FindByID(ctx, *progress.ScheduledPeriodID)
		if err == nil {
			if period.AssessmentWindowStart != nil && period.AssessmentWindowEnd != nil {
				return Window{Start: *period.AssessmentWindowStart, End: *period.AssessmentWindowEnd, GraceEnd: s.calc.GraceEnd(*period.AssessmentWindowEnd)}
			}
			if w, err := s.calc.Window(period.ScheduledDate, period.StartTime, period.EndTime); err == nil {
				return w
			}
		} else if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load scheduled period for window repair", zap.String("progress_id", progress.ID), zap.Error(err))
		}
	}
	return s.calc.FullDay(progress.ScheduledDate)
}

// selectProgress picks the record whose window contains now, else the next upcoming one,
// else one still lacking a window, else the most recently ended one.
func selectProgress(records []models.Progress, now time.Time) *models.Progress {
	var upcoming, unconfigured, ended *models.Progress
	for i := range records {
		r := &records[i]
		if !r.WindowConfigured() {
			if unconfigured == nil {
				unconfigured = r
			}
			continue
		}
		start, end := *r.AssessmentWindowStart, *r.AssessmentWindowEnd
		switch {
		case !now.Before(start) && !now.After(end):
			return r
		case start.After(now):
			if upcoming == nil || start.Before(*upcoming.AssessmentWindowStart) {
				upcoming = r
			}
		default:
			if ended == nil || end.After(*ended.AssessmentWindowEnd) {
				ended = r
			}
		}
	}
	switch {
	case upcoming != nil:
		return upcoming
	case unconfigured != nil:
		return unconfigured
	default:
		return ended
	}
}
