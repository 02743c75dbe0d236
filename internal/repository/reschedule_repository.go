package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-window-api/internal/models"
)

const rescheduleColumns = `id, progress_id, student_id, assessment_id, teacher_id,
	original_window_start, original_window_end, original_grace_end,
	new_window_start, new_window_end, new_grace_end, reason, active,
	cancelled_at, cancelled_by, cancellation_reason, created_at, updated_at`

// RescheduleRepository persists assessment window reschedules.
type RescheduleRepository struct {
	db *sqlx.DB
}

// NewRescheduleRepository constructs the repository.
func NewRescheduleRepository(db *sqlx.DB) *RescheduleRepository {
	return &RescheduleRepository{db: db}
}

// FindByIDForUpdate locks a reschedule row inside the caller's transaction.
func (r *RescheduleRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Reschedule, error) {
	query := `SELECT ` + rescheduleColumns + ` FROM assessment_window_reschedules WHERE id = $1 FOR UPDATE`
	var reschedule models.Reschedule
	if err := sqlx.GetContext(ctx, exec, &reschedule, query, id); err != nil {
		return nil, err
	}
	return &reschedule, nil
}

// FindActiveByProgress returns sql.ErrNoRows when the progress record has no active reschedule.
func (r *RescheduleRepository) FindActiveByProgress(ctx context.Context, exec sqlx.ExtContext, progressID string) (*models.Reschedule, error) {
	if exec == nil {
		exec = r.db
	}
	query := `SELECT ` + rescheduleColumns + ` FROM assessment_window_reschedules WHERE progress_id = $1 AND active = TRUE FOR UPDATE`
	var reschedule models.Reschedule
	if err := sqlx.GetContext(ctx, exec, &reschedule, query, progressID); err != nil {
		return nil, err
	}
	return &reschedule, nil
}

// FindActiveForProgress reads the active reschedule of a progress record without locking it.
func (r *RescheduleRepository) FindActiveForProgress(ctx context.Context, progressID string) (*models.Reschedule, error) {
	query := `SELECT ` + rescheduleColumns + ` FROM assessment_window_reschedules WHERE progress_id = $1 AND active = TRUE`
	var reschedule models.Reschedule
	if err := r.db.GetContext(ctx, &reschedule, query, progressID); err != nil {
		return nil, err
	}
	return &reschedule, nil
}

// Create inserts an active reschedule. A concurrent duplicate trips the partial unique index.
func (r *RescheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, reschedule *models.Reschedule) error {
	if exec == nil {
		exec = r.db
	}
	if reschedule.ID == "" {
		reschedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	reschedule.CreatedAt = now
	reschedule.UpdatedAt = now
	reschedule.Active = true
	const query = `INSERT INTO assessment_window_reschedules (
	id, progress_id, student_id, assessment_id, teacher_id,
	original_window_start, original_window_end, original_grace_end,
	new_window_start, new_window_end, new_grace_end, reason, active, created_at, updated_at
) VALUES (
	:id, :progress_id, :student_id, :assessment_id, :teacher_id,
	:original_window_start, :original_window_end, :original_grace_end,
	:new_window_start, :new_window_end, :new_grace_end, :reason, :active, :created_at, :updated_at
)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, reschedule); err != nil {
		return fmt.Errorf("create reschedule: %w", err)
	}
	return nil
}

// Deactivate marks the reschedule cancelled.
func (r *RescheduleRepository) Deactivate(ctx context.Context, exec sqlx.ExtContext, id, cancelledBy, reason string, at time.Time) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE assessment_window_reschedules
SET active = FALSE, cancelled_at = $2, cancelled_by = $3, cancellation_reason = $4, updated_at = $2
WHERE id = $1 AND active = TRUE`
	res, err := exec.ExecContext(ctx, query, id, at, cancelledBy, reason)
	if err != nil {
		return fmt.Errorf("cancel reschedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel reschedule rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("cancel reschedule %s: no active row", id)
	}
	return nil
}

// ListByTeacher lists reschedules created by a teacher, optionally for one student.
func (r *RescheduleRepository) ListByTeacher(ctx context.Context, teacherID, studentID string) ([]models.Reschedule, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + rescheduleColumns + ` FROM assessment_window_reschedules WHERE teacher_id = $1`)
	args := []interface{}{teacherID}
	if studentID != "" {
		args = append(args, studentID)
		fmt.Fprintf(&query, " AND student_id = $%d", len(args))
	}
	query.WriteString(" ORDER BY created_at DESC")

	var items []models.Reschedule
	if err := r.db.SelectContext(ctx, &items, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list reschedules by teacher: %w", err)
	}
	return items, nil
}

// ListByStudent lists every reschedule affecting a student.
func (r *RescheduleRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Reschedule, error) {
	query := `SELECT ` + rescheduleColumns + ` FROM assessment_window_reschedules WHERE student_id = $1 ORDER BY created_at DESC`
	var items []models.Reschedule
	if err := r.db.SelectContext(ctx, &items, query, studentID); err != nil {
		return nil, fmt.Errorf("list reschedules by student: %w", err)
	}
	return items, nil
}
