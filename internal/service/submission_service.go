package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/internal/dto"
	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/pkg/database"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

type accessResolver interface {
	Resolve(ctx context.Context, studentID, assessmentID string, now time.Time) (*AccessDecision, error)
}

type submissionWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, submission *models.Submission) error
}

type progressCompleter interface {
	MarkCompleted(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress, submissionID string, at time.Time) error
}

type inlineValidator interface {
	Validate(ctx context.Context, submission *models.Submission, now time.Time) (bool, error)
}

// SubmissionService accepts student submissions for the window that is currently open.
type SubmissionService struct {
	access      accessResolver
	submissions submissionWriter
	progress    progressCompleter
	checker     inlineValidator
	events      eventPublisher
	tx          txProvider
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSubmissionService constructs the intake service.
func NewSubmissionService(
	access accessResolver,
	submissions submissionWriter,
	progress progressCompleter,
	checker inlineValidator,
	events eventPublisher,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		access:      access,
		submissions: submissions,
		progress:    progress,
		checker:     checker,
		events:      events,
		tx:          tx,
		validator:   validate,
		logger:      logger,
	}
}

// SubmitAssessment records the student's answers and completes the governing progress record.
// Submissions during the grace period are accepted and flagged late. The submission is stamped
// with now and checked inline against its scheduled window; a violation is stored nullified.
func (s *SubmissionService) SubmitAssessment(ctx context.Context, studentID, assessmentID string, req dto.SubmitAssessmentRequest, now time.Time) (*models.SubmissionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	if !json.Valid(req.Answers) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "answers must be valid JSON")
	}
	decision, err := s.access.Resolve(ctx, studentID, assessmentID, now)
	if err != nil {
		return nil, err
	}
	if decision.Progress.Completed {
		return nil, appErrors.ErrDuplicateSubmission
	}
	late := false
	switch decision.Result.Status {
	case models.AccessAlreadySubmitted:
		return nil, appErrors.ErrDuplicateSubmission
	case models.AccessNotYetOpen:
		return nil, appErrors.Clone(appErrors.ErrWindowNotOpen, decision.Result.Reason)
	case models.AccessExpired:
		if !decision.Result.InGracePeriod {
			return nil, appErrors.Clone(appErrors.ErrWindowExpired, decision.Result.Reason)
		}
		late = true
	}

	progress := decision.Progress
	submission := &models.Submission{
		AssessmentID:         assessmentID,
		AssessmentInstanceID: progress.AssessmentInstanceID,
		StudentID:            studentID,
		Answers:              types.JSONText(req.Answers),
		StartedAt:            req.StartedAt,
		SubmittedAt:          now,
		Late:                 late,
		LessonTopicID:        progress.LessonTopicID,
	}

	if err := s.persist(ctx, submission, progress, now); err != nil {
		return nil, err
	}

	result := &models.SubmissionResult{Submission: submission, ProgressID: progress.ID, Accepted: true, Late: late}
	valid, err := s.checker.Validate(ctx, submission, now)
	if err != nil {
		s.logger.Warn("inline submission validation failed", zap.String("submission_id", submission.ID), zap.Error(err))
	}
	if !valid {
		result.Accepted = false
		if submission.NullifiedReason != nil {
			result.Message = *submission.NullifiedReason
		}
		return result, nil
	}

	if s.events != nil {
		s.events.Publish(ctx, models.Event{
			Type:       models.EventSubmissionReceived,
			StudentID:  studentID,
			ResourceID: submission.ID,
			Data:       map[string]interface{}{"assessment_id": assessmentID, "late": late},
			OccurredAt: now,
		})
	}
	return result, nil
}

func (s *SubmissionService) persist(ctx context.Context, submission *models.Submission, progress *models.Progress, now time.Time) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.submissions.Create(ctx, tx, submission); err != nil {
		if database.IsUniqueViolation(err) {
			return appErrors.ErrDuplicateSubmission
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store submission")
	}
	if err = s.progress.MarkCompleted(ctx, tx, progress, submission.ID, now); err != nil {
		if errors.Is(err, appErrors.ErrStaleProgress) {
			return appErrors.ErrStaleProgress
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete progress")
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit submission")
	}
	return nil
}
