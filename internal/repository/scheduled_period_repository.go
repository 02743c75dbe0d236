package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-window-api/internal/models"
)

const scheduledPeriodColumns = `id, student_id, term_id, week_number, scheduled_date, day_of_week, period_number, start_time, end_time,
	subject_id, lesson_topic_id, assessment_instance_id, period_sequence, total_periods_for_topic, previous_period_id, next_period_id,
	assessment_window_start, assessment_window_end, completed, archived, archived_at, created_at, updated_at`

// ScheduledPeriodRepository persists generated per-student calendar slots.
type ScheduledPeriodRepository struct {
	db *sqlx.DB
}

// NewScheduledPeriodRepository constructs the repository.
func NewScheduledPeriodRepository(db *sqlx.DB) *ScheduledPeriodRepository {
	return &ScheduledPeriodRepository{db: db}
}

// FindByID loads a scheduled period.
func (r *ScheduledPeriodRepository) FindByID(ctx context.Context, id string) (*models.ScheduledPeriod, error) {
	query := `SELECT ` + scheduledPeriodColumns + ` FROM scheduled_periods WHERE id = $1`
	var period models.ScheduledPeriod
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// FindForSubmission locates the active period a submission was made against. A nil instance
// matches periods without an instance.
func (r *ScheduledPeriodRepository) FindForSubmission(ctx context.Context, topicID, studentID string, instanceID *string) (*models.ScheduledPeriod, error) {
	query := `SELECT ` + scheduledPeriodColumns + ` FROM scheduled_periods
WHERE lesson_topic_id = $1 AND student_id = $2 AND archived = FALSE
	AND COALESCE(assessment_instance_id, '') = COALESCE($3, '')
ORDER BY scheduled_date ASC, start_time ASC LIMIT 1`
	var period models.ScheduledPeriod
	if err := r.db.GetContext(ctx, &period, query, topicID, studentID, instanceID); err != nil {
		return nil, err
	}
	return &period, nil
}

// Create inserts one period.
func (r *ScheduledPeriodRepository) Create(ctx context.Context, exec sqlx.ExtContext, period *models.ScheduledPeriod) error {
	if exec == nil {
		exec = r.db
	}
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	period.CreatedAt = now
	period.UpdatedAt = now
	const query = `INSERT INTO scheduled_periods (
	id, student_id, term_id, week_number, scheduled_date, day_of_week, period_number, start_time, end_time,
	subject_id, lesson_topic_id, assessment_instance_id, period_sequence, total_periods_for_topic,
	assessment_window_start, assessment_window_end, completed, archived, created_at, updated_at
) VALUES (
	:id, :student_id, :term_id, :week_number, :scheduled_date, :day_of_week, :period_number, :start_time, :end_time,
	:subject_id, :lesson_topic_id, :assessment_instance_id, :period_sequence, :total_periods_for_topic,
	:assessment_window_start, :assessment_window_end, :completed, :archived, :created_at, :updated_at
)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, period); err != nil {
		return fmt.Errorf("create scheduled period: %w", err)
	}
	return nil
}

// LinkSequence stores the previous and next pointers of a multi-period topic.
func (r *ScheduledPeriodRepository) LinkSequence(ctx context.Context, exec sqlx.ExtContext, id string, previousID, nextID *string) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE scheduled_periods SET previous_period_id = $2, next_period_id = $3, updated_at = $4 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, previousID, nextID, time.Now().UTC()); err != nil {
		return fmt.Errorf("link scheduled period: %w", err)
	}
	return nil
}

// ArchiveWeek supersedes the given term week's periods and returns how many were archived.
func (r *ScheduledPeriodRepository) ArchiveWeek(ctx context.Context, exec sqlx.ExtContext, termID string, week int, at time.Time) (int64, error) {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE scheduled_periods SET archived = TRUE, archived_at = $3, updated_at = $3
WHERE term_id = $1 AND week_number = $2 AND archived = FALSE`
	res, err := exec.ExecContext(ctx, query, termID, week, at)
	if err != nil {
		return 0, fmt.Errorf("archive scheduled periods: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive scheduled periods rows affected: %w", err)
	}
	return affected, nil
}
