package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/internal/dto"
	"github.com/noah-isme/assessment-window-api/internal/models"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
	"github.com/noah-isme/assessment-window-api/pkg/jobs"
)

// GenerationJobType tags weekly generation jobs on the queue.
const GenerationJobType = "weekly_generation"

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type weeklyGenerator interface {
	GenerateWeeklySchedules(ctx context.Context, week int, now time.Time) (*models.GenerationResult, error)
}

// GenerationJobService queues asynchronous generation runs, one per week at a time.
type GenerationJobService struct {
	queue  jobDispatcher
	logger *zap.Logger
}

// NewGenerationJobService constructs the dispatcher.
func NewGenerationJobService(queue jobDispatcher, logger *zap.Logger) *GenerationJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationJobService{queue: queue, logger: logger}
}

// GenerationJobID is the single-flight key for a week.
func GenerationJobID(week int) string {
	return fmt.Sprintf("generation-week-%d", week)
}

// EnqueueWeeklyGeneration queues the week. A run already in flight for the week is a conflict.
func (s *GenerationJobService) EnqueueWeeklyGeneration(week int, now time.Time) (*dto.GenerationJobResponse, error) {
	if week < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "week must be at least 1")
	}
	payload := models.GenerationJob{JobID: GenerationJobID(week), WeekNumber: week, QueuedAt: now}
	if err := s.queue.Enqueue(jobs.Job{ID: payload.JobID, Type: GenerationJobType, Payload: payload, Enqueued: now}); err != nil {
		if errors.Is(err, jobs.ErrDuplicateJob) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "generation for this week is already running")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation job")
	}
	s.logger.Info("weekly generation queued", zap.String("job_id", payload.JobID), zap.Int("week", week))
	return &dto.GenerationJobResponse{JobID: payload.JobID, WeekNumber: week, Status: "queued"}, nil
}

// GenerationWorker executes queued generation jobs.
type GenerationWorker struct {
	generator weeklyGenerator
	clock     func() time.Time
	logger    *zap.Logger
}

// NewGenerationWorker constructs a worker. A nil clock uses the wall clock.
func NewGenerationWorker(generator weeklyGenerator, clock func() time.Time, logger *zap.Logger) *GenerationWorker {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationWorker{generator: generator, clock: clock, logger: logger}
}

// Handle processes a queue job. Client errors are not retried.
func (w *GenerationWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(models.GenerationJob)
	if !ok {
		w.logger.Sugar().Errorw("unexpected generation payload", "job_id", job.ID, "type", job.Type)
		return nil
	}
	result, err := w.generator.GenerateWeeklySchedules(ctx, payload.WeekNumber, w.clock())
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Status < http.StatusInternalServerError {
			w.logger.Sugar().Warnw("generation job rejected", "job_id", job.ID, "week", payload.WeekNumber, "error", err)
			return nil
		}
		return err
	}
	w.logger.Sugar().Infow("generation job finished",
		"job_id", job.ID,
		"week", payload.WeekNumber,
		"students", result.StudentsProcessed,
		"failed_students", len(result.FailedStudents))
	return nil
}
