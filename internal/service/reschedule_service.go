package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/internal/dto"
	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/pkg/config"
	"github.com/noah-isme/assessment-window-api/pkg/database"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

type rescheduleProgressStore interface {
	FindByID(ctx context.Context, id string) (*models.Progress, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Progress, error)
	UpdateWindow(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress) error
}

type rescheduleStore interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Reschedule, error)
	FindActiveByProgress(ctx context.Context, exec sqlx.ExtContext, progressID string) (*models.Reschedule, error)
	Create(ctx context.Context, exec sqlx.ExtContext, reschedule *models.Reschedule) error
	Deactivate(ctx context.Context, exec sqlx.ExtContext, id, cancelledBy, reason string, at time.Time) error
	ListByTeacher(ctx context.Context, teacherID, studentID string) ([]models.Reschedule, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Reschedule, error)
}

type rosterChecker interface {
	TeachesSubject(ctx context.Context, teacherID, subjectID string) (bool, error)
	IsEnrolled(ctx context.Context, studentID, subjectID string) (bool, error)
}

// RescheduleService lets a teacher move a student's window once, before it opens.
type RescheduleService struct {
	progress    rescheduleProgressStore
	reschedules rescheduleStore
	roster      rosterChecker
	events      eventPublisher
	tx          txProvider
	calc        *WindowCalculator
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         config.RescheduleConfig
}

// NewRescheduleService constructs the reschedule manager.
func NewRescheduleService(
	progress rescheduleProgressStore,
	reschedules rescheduleStore,
	roster rosterChecker,
	events eventPublisher,
	tx txProvider,
	calc *WindowCalculator,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.RescheduleConfig,
) *RescheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = time.Hour
	}
	if cfg.GraceExtension <= 0 {
		cfg.GraceExtension = 30 * time.Minute
	}
	if cfg.MinReasonLength <= 0 {
		cfg.MinReasonLength = 10
	}
	if cfg.MaxAhead <= 0 {
		cfg.MaxAhead = 90 * 24 * time.Hour
	}
	return &RescheduleService{
		progress:    progress,
		reschedules: reschedules,
		roster:      roster,
		events:      events,
		tx:          tx,
		calc:        calc,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// Reschedule replaces the progress record's window with [start, start+duration] and a
// fresh grace period. The original window is kept on the reschedule for cancellation.
func (s *RescheduleService) Reschedule(ctx context.Context, teacherID string, req dto.RescheduleRequest, now time.Time) (*models.Reschedule, error) {
	result, err := s.reschedule(ctx, teacherID, req, now)
	if err != nil {
		s.metrics.RecordReschedule("rejected")
		return nil, err
	}
	s.metrics.RecordReschedule("created")
	s.logger.Info("assessment window rescheduled",
		zap.String("reschedule_id", result.ID),
		zap.String("progress_id", result.ProgressID),
		zap.String("teacher_id", teacherID),
		zap.Time("new_window_start", result.NewWindowStart))
	s.publish(ctx, models.EventRescheduled, result, now)
	return result, nil
}

func (s *RescheduleService) reschedule(ctx context.Context, teacherID string, req dto.RescheduleRequest, now time.Time) (_ *models.Reschedule, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}

	progress, err := s.progress.FindByID(ctx, req.ProgressID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "progress record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress")
	}
	if err := s.checkRoster(ctx, teacherID, progress); err != nil {
		return nil, err
	}
	if err := checkReschedulable(progress, now); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if len([]rune(reason)) < s.cfg.MinReasonLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("reason must be at least %d characters", s.cfg.MinReasonLength))
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	locked, err := s.progress.FindByIDForUpdate(ctx, tx, progress.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock progress")
	}
	if err = checkReschedulable(locked, now); err != nil {
		return nil, err
	}
	if _, err = s.reschedules.FindActiveByProgress(ctx, tx, locked.ID); err == nil {
		err = appErrors.ErrDuplicateReschedule
		return nil, err
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing reschedule")
	}

	newStart := req.NewWindowStart.UTC()
	if !newStart.After(now) {
		err = appErrors.Clone(appErrors.ErrValidation, "new window must start in the future")
		return nil, err
	}
	if newStart.After(now.Add(s.cfg.MaxAhead)) {
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("new window must start within %s", s.cfg.MaxAhead))
		return nil, err
	}
	newEnd := newStart.Add(s.cfg.WindowDuration)
	newGrace := newEnd.Add(s.cfg.GraceExtension)

	reschedule := &models.Reschedule{
		ProgressID:          locked.ID,
		StudentID:           locked.StudentID,
		AssessmentID:        locked.AssessmentID,
		TeacherID:           teacherID,
		OriginalWindowStart: *locked.AssessmentWindowStart,
		OriginalWindowEnd:   *locked.AssessmentWindowEnd,
		OriginalGraceEnd:    locked.GracePeriodEnd,
		NewWindowStart:      newStart,
		NewWindowEnd:        newEnd,
		NewGraceEnd:         newGrace,
		Reason:              reason,
	}
	if err = s.reschedules.Create(ctx, tx, reschedule); err != nil {
		if database.IsUniqueViolation(err) {
			err = appErrors.ErrDuplicateReschedule
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reschedule")
	}

	locked.AssessmentWindowStart = &newStart
	locked.AssessmentWindowEnd = &newEnd
	locked.GracePeriodEnd = &newGrace
	locked.AssessmentAccessible = true
	locked.IncompleteReason = nil
	if err = s.progress.UpdateWindow(ctx, tx, locked); err != nil {
		if errors.Is(err, appErrors.ErrStaleProgress) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update progress window")
	}

	if err = tx.Commit(); err != nil {
		if database.IsUniqueViolation(err) {
			err = appErrors.ErrDuplicateReschedule
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit reschedule")
	}
	return reschedule, nil
}

// CancelReschedule restores the original window. Only the creating teacher may cancel and
// only before the new window starts.
func (s *RescheduleService) CancelReschedule(ctx context.Context, teacherID, rescheduleID string, req dto.CancelRescheduleRequest, now time.Time) (result *models.Reschedule, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	reschedule, err := s.reschedules.FindByIDForUpdate(ctx, tx, rescheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "reschedule not found")
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reschedule")
	}
	if reschedule.TeacherID != teacherID {
		err = appErrors.Clone(appErrors.ErrForbidden, "only the teacher who created the reschedule may cancel it")
		return nil, err
	}
	if !reschedule.Active {
		err = appErrors.ErrRescheduleInactive
		return nil, err
	}
	if !now.Before(reschedule.NewWindowStart) {
		err = appErrors.ErrRescheduleStarted
		return nil, err
	}

	progress, err := s.progress.FindByIDForUpdate(ctx, tx, reschedule.ProgressID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock progress")
	}
	start, end := reschedule.OriginalWindowStart, reschedule.OriginalWindowEnd
	grace := s.calc.GraceEnd(end)
	if reschedule.OriginalGraceEnd != nil {
		grace = *reschedule.OriginalGraceEnd
	}
	progress.AssessmentWindowStart = &start
	progress.AssessmentWindowEnd = &end
	progress.GracePeriodEnd = &grace
	if err = s.progress.UpdateWindow(ctx, tx, progress); err != nil {
		if errors.Is(err, appErrors.ErrStaleProgress) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore progress window")
	}

	reason := strings.TrimSpace(req.Reason)
	if err = s.reschedules.Deactivate(ctx, tx, reschedule.ID, teacherID, reason, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel reschedule")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit cancellation")
	}

	reschedule.Active = false
	reschedule.CancelledAt = &now
	reschedule.CancelledBy = &teacherID
	reschedule.CancellationReason = &reason

	s.metrics.RecordReschedule("cancelled")
	s.logger.Info("assessment reschedule cancelled", zap.String("reschedule_id", reschedule.ID), zap.String("teacher_id", teacherID))
	s.publish(ctx, models.EventRescheduleCancelled, reschedule, now)
	return reschedule, nil
}

// ListByTeacher lists the teacher's reschedules, optionally for one student.
func (s *RescheduleService) ListByTeacher(ctx context.Context, teacherID, studentID string) ([]models.Reschedule, error) {
	items, err := s.reschedules.ListByTeacher(ctx, teacherID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reschedules")
	}
	return items, nil
}

// ListByStudent lists every reschedule affecting the student.
func (s *RescheduleService) ListByStudent(ctx context.Context, studentID string) ([]models.Reschedule, error) {
	items, err := s.reschedules.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reschedules")
	}
	return items, nil
}

func (s *RescheduleService) checkRoster(ctx context.Context, teacherID string, progress *models.Progress) error {
	teaches, err := s.roster.TeachesSubject(ctx, teacherID, progress.SubjectID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify teacher subject")
	}
	if !teaches {
		return appErrors.Clone(appErrors.ErrForbidden, "teacher does not teach this subject")
	}
	enrolled, err := s.roster.IsEnrolled(ctx, progress.StudentID, progress.SubjectID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify student enrollment")
	}
	if !enrolled {
		return appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in this subject")
	}
	return nil
}

func checkReschedulable(progress *models.Progress, now time.Time) error {
	if !progress.WindowConfigured() {
		return appErrors.ErrWindowNotConfigured
	}
	if !now.Before(*progress.AssessmentWindowStart) {
		return appErrors.ErrWindowAlreadyOpen
	}
	if progress.Completed || progress.SubmissionID != nil {
		return appErrors.ErrAlreadyStarted
	}
	return nil
}

func (s *RescheduleService) publish(ctx context.Context, eventType models.EventType, reschedule *models.Reschedule, now time.Time) {
	if s.events == nil {
		return
	}
	data := map[string]interface{}{
		"progress_id":      reschedule.ProgressID,
		"new_window_start": reschedule.NewWindowStart,
		"new_window_end":   reschedule.NewWindowEnd,
		"new_grace_end":    reschedule.NewGraceEnd,
	}
	if reschedule.AssessmentID != nil {
		data["assessment_id"] = *reschedule.AssessmentID
	}
	s.events.Publish(ctx, models.Event{
		Type:       eventType,
		StudentID:  reschedule.StudentID,
		TeacherID:  reschedule.TeacherID,
		ResourceID: reschedule.ID,
		Data:       data,
		OccurredAt: now,
	})
}
