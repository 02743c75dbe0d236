package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-window-api/internal/models"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

const progressColumns = `id, student_id, subject_id, lesson_topic_id, assessment_id, assessment_instance_id, scheduled_period_id,
	scheduled_date, period_number, period_sequence, total_periods_in_sequence, previous_progress_id,
	assessment_window_start, assessment_window_end, grace_period_end, assessment_accessible,
	completed, completed_at, incomplete_reason, incomplete_marked_at, submission_id, requires_custom_assessment,
	archived, archived_at, version, created_at, updated_at`

// ProgressRepository persists student lesson progress with optimistic versioning.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// FindByID loads a progress record.
func (r *ProgressRepository) FindByID(ctx context.Context, id string) (*models.Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM student_lesson_progress WHERE id = $1`
	var progress models.Progress
	if err := r.db.GetContext(ctx, &progress, query, id); err != nil {
		return nil, err
	}
	return &progress, nil
}

// FindByIDForUpdate locks the record inside the caller's transaction.
func (r *ProgressRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM student_lesson_progress WHERE id = $1 FOR UPDATE`
	var progress models.Progress
	if err := sqlx.GetContext(ctx, exec, &progress, query, id); err != nil {
		return nil, err
	}
	return &progress, nil
}

// ListOpenForAssessment returns a student's non-completed, non-archived records bound to the assessment.
func (r *ProgressRepository) ListOpenForAssessment(ctx context.Context, studentID, assessmentID string) ([]models.Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM student_lesson_progress
WHERE student_id = $1 AND assessment_id = $2 AND completed = FALSE AND archived = FALSE
ORDER BY assessment_window_start ASC NULLS LAST, period_sequence ASC`
	var records []models.Progress
	if err := r.db.SelectContext(ctx, &records, query, studentID, assessmentID); err != nil {
		return nil, fmt.Errorf("list progress for assessment: %w", err)
	}
	return records, nil
}

// FindLatestCompleted returns the student's most recently completed record for the assessment,
// archived or not.
func (r *ProgressRepository) FindLatestCompleted(ctx context.Context, studentID, assessmentID string) (*models.Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM student_lesson_progress
WHERE student_id = $1 AND assessment_id = $2 AND completed = TRUE
ORDER BY completed_at DESC NULLS LAST LIMIT 1`
	var progress models.Progress
	if err := r.db.GetContext(ctx, &progress, query, studentID, assessmentID); err != nil {
		return nil, err
	}
	return &progress, nil
}

// FindByStudentTopicDate returns the first active record for the student's topic on the date.
func (r *ProgressRepository) FindByStudentTopicDate(ctx context.Context, studentID, topicID string, date time.Time) (*models.Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM student_lesson_progress
WHERE student_id = $1 AND lesson_topic_id = $2 AND scheduled_date = $3 AND archived = FALSE
ORDER BY period_number ASC LIMIT 1`
	var progress models.Progress
	if err := r.db.GetContext(ctx, &progress, query, studentID, topicID, date); err != nil {
		return nil, err
	}
	return &progress, nil
}

// FindBySubmission returns the record completed by the given submission.
func (r *ProgressRepository) FindBySubmission(ctx context.Context, submissionID string) (*models.Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM student_lesson_progress WHERE submission_id = $1 LIMIT 1`
	var progress models.Progress
	if err := r.db.GetContext(ctx, &progress, query, submissionID); err != nil {
		return nil, err
	}
	return &progress, nil
}

// FindByScheduledPeriod returns the record generated for a calendar slot.
func (r *ProgressRepository) FindByScheduledPeriod(ctx context.Context, periodID string) (*models.Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM student_lesson_progress WHERE scheduled_period_id = $1 AND archived = FALSE LIMIT 1`
	var progress models.Progress
	if err := r.db.GetContext(ctx, &progress, query, periodID); err != nil {
		return nil, err
	}
	return &progress, nil
}

// Create inserts a new record at version 1.
func (r *ProgressRepository) Create(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress) error {
	if exec == nil {
		exec = r.db
	}
	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if progress.CreatedAt.IsZero() {
		progress.CreatedAt = now
	}
	progress.UpdatedAt = now
	progress.Version = 1
	const query = `INSERT INTO student_lesson_progress (
	id, student_id, subject_id, lesson_topic_id, assessment_id, assessment_instance_id, scheduled_period_id,
	scheduled_date, period_number, period_sequence, total_periods_in_sequence, previous_progress_id,
	assessment_window_start, assessment_window_end, grace_period_end, assessment_accessible,
	completed, incomplete_reason, incomplete_marked_at, requires_custom_assessment, archived, version, created_at, updated_at
) VALUES (
	:id, :student_id, :subject_id, :lesson_topic_id, :assessment_id, :assessment_instance_id, :scheduled_period_id,
	:scheduled_date, :period_number, :period_sequence, :total_periods_in_sequence, :previous_progress_id,
	:assessment_window_start, :assessment_window_end, :grace_period_end, :assessment_accessible,
	:completed, :incomplete_reason, :incomplete_marked_at, :requires_custom_assessment, :archived, :version, :created_at, :updated_at
)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, progress); err != nil {
		return fmt.Errorf("create progress: %w", err)
	}
	return nil
}

// UpdateWindow writes the window, linkage and accessibility fields under a version check.
// The caller's copy is bumped to the new version on success.
func (r *ProgressRepository) UpdateWindow(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress) error {
	if exec == nil {
		exec = r.db
	}
	now := time.Now().UTC()
	const query = `UPDATE student_lesson_progress SET
	assessment_id = $3,
	assessment_window_start = $4,
	assessment_window_end = $5,
	grace_period_end = $6,
	assessment_accessible = $7,
	incomplete_reason = $8,
	version = version + 1,
	updated_at = $9
WHERE id = $1 AND version = $2`
	res, err := exec.ExecContext(ctx, query,
		progress.ID, progress.Version, progress.AssessmentID,
		progress.AssessmentWindowStart, progress.AssessmentWindowEnd, progress.GracePeriodEnd,
		progress.AssessmentAccessible, progress.IncompleteReason, now)
	if err != nil {
		return fmt.Errorf("update progress window: %w", err)
	}
	if err := expectVersionBump(res); err != nil {
		return err
	}
	progress.Version++
	progress.UpdatedAt = now
	return nil
}

// MarkCompleted records the submission that completed the record.
func (r *ProgressRepository) MarkCompleted(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress, submissionID string, at time.Time) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE student_lesson_progress SET
	completed = TRUE,
	completed_at = $3,
	submission_id = $4,
	incomplete_reason = NULL,
	version = version + 1,
	updated_at = $3
WHERE id = $1 AND version = $2`
	res, err := exec.ExecContext(ctx, query, progress.ID, progress.Version, at, submissionID)
	if err != nil {
		return fmt.Errorf("complete progress: %w", err)
	}
	if err := expectVersionBump(res); err != nil {
		return err
	}
	progress.Version++
	progress.Completed = true
	progress.CompletedAt = &at
	progress.SubmissionID = &submissionID
	progress.IncompleteReason = nil
	return nil
}

// ListOverdueUnmarked pages through uncompleted records without an incomplete reason whose
// grace period (or window, when no grace is stored) ended before cutoff. Archived records
// are included.
func (r *ProgressRepository) ListOverdueUnmarked(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]models.Progress, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + progressColumns + ` FROM student_lesson_progress
WHERE completed = FALSE AND incomplete_reason IS NULL AND assessment_window_end IS NOT NULL
	AND COALESCE(grace_period_end, assessment_window_end) < $1 AND id > $2
ORDER BY id ASC
LIMIT $3`
	var records []models.Progress
	if err := r.db.SelectContext(ctx, &records, query, cutoff, afterID, limit); err != nil {
		return nil, fmt.Errorf("list overdue progress: %w", err)
	}
	return records, nil
}

// MarkIncomplete stores the incomplete reason under the version check. Completed records
// are never marked.
func (r *ProgressRepository) MarkIncomplete(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress, reason models.IncompleteReason, at time.Time) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE student_lesson_progress SET
	incomplete_reason = $3,
	incomplete_marked_at = $4,
	version = version + 1,
	updated_at = $4
WHERE id = $1 AND version = $2 AND completed = FALSE`
	res, err := exec.ExecContext(ctx, query, progress.ID, progress.Version, reason, at)
	if err != nil {
		return fmt.Errorf("mark progress incomplete: %w", err)
	}
	if err := expectVersionBump(res); err != nil {
		return err
	}
	progress.Version++
	progress.IncompleteReason = &reason
	progress.IncompleteMarkedAt = &at
	return nil
}

// LinkPrevious points a record at its predecessor in a multi-period sequence.
func (r *ProgressRepository) LinkPrevious(ctx context.Context, exec sqlx.ExtContext, id, previousID string) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE student_lesson_progress SET previous_progress_id = $2, version = version + 1, updated_at = $3 WHERE id = $1`
	res, err := exec.ExecContext(ctx, query, id, previousID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("link progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("link progress rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ArchiveWeek archives every record generated from the term week's calendar.
func (r *ProgressRepository) ArchiveWeek(ctx context.Context, exec sqlx.ExtContext, termID string, week int, at time.Time) (int64, error) {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE student_lesson_progress p SET archived = TRUE, archived_at = $3, version = p.version + 1, updated_at = $3
FROM scheduled_periods sp
WHERE p.scheduled_period_id = sp.id AND sp.term_id = $1 AND sp.week_number = $2 AND p.archived = FALSE`
	res, err := exec.ExecContext(ctx, query, termID, week, at)
	if err != nil {
		return 0, fmt.Errorf("archive progress week: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive progress rows affected: %w", err)
	}
	return affected, nil
}

// ListForReport returns progress rows with subject and topic labels for incomplete reporting.
// Archived weeks stay reportable; the date range alone scopes the result.
func (r *ProgressRepository) ListForReport(ctx context.Context, filter models.ProgressFilter) ([]models.IncompleteRecord, error) {
	query := strings.Builder{}
	query.WriteString(`
SELECT
	p.id,
	p.student_id,
	p.subject_id,
	COALESCE(s.name, p.subject_id) AS subject_name,
	p.lesson_topic_id,
	lt.title AS lesson_topic_title,
	p.scheduled_date,
	p.period_number,
	p.period_sequence,
	p.total_periods_in_sequence,
	p.completed,
	p.incomplete_reason,
	p.assessment_window_end
FROM student_lesson_progress p
LEFT JOIN subjects s ON s.id = p.subject_id
LEFT JOIN lesson_topics lt ON lt.id = p.lesson_topic_id
WHERE p.scheduled_date BETWEEN $1 AND $2`)

	args := []interface{}{filter.From, filter.To}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		fmt.Fprintf(&query, " AND p.student_id = $%d", len(args))
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		fmt.Fprintf(&query, " AND p.subject_id = $%d", len(args))
	}
	query.WriteString("\nORDER BY p.scheduled_date ASC, p.period_number ASC")

	var records []models.IncompleteRecord
	if err := r.db.SelectContext(ctx, &records, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list progress for report: %w", err)
	}
	return records, nil
}

func expectVersionBump(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("progress rows affected: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrStaleProgress
	}
	return nil
}
