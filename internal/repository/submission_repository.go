package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-window-api/internal/models"
)

const submissionColumns = `s.id, s.assessment_id, s.assessment_instance_id, s.student_id, s.answers, s.started_at, s.submitted_at,
	s.score, s.percentage, s.passed, s.graded, s.late, s.submitted_before_window, s.original_submission_time,
	s.nullified_at, s.nullified_reason, s.created_at, a.lesson_topic_id`

// SubmissionRepository persists assessment submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// FindByID loads a submission joined with its assessment topic.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM assessment_submissions s
LEFT JOIN assessments a ON a.id = s.assessment_id
WHERE s.id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// Exists reports whether the student already submitted the assessment or the given instance.
func (r *SubmissionRepository) Exists(ctx context.Context, studentID, assessmentID string, instanceID *string) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM assessment_submissions
	WHERE student_id = $1 AND assessment_id = $2 AND COALESCE(assessment_instance_id, '') = COALESCE($3, '')
)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, assessmentID, instanceID); err != nil {
		return false, fmt.Errorf("check submission exists: %w", err)
	}
	return exists, nil
}

// ExistsForAssessment reports whether the student submitted the assessment through any instance.
func (r *SubmissionRepository) ExistsForAssessment(ctx context.Context, studentID, assessmentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM assessment_submissions WHERE student_id = $1 AND assessment_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, assessmentID); err != nil {
		return false, fmt.Errorf("check assessment submission exists: %w", err)
	}
	return exists, nil
}

// Create inserts a submission.
func (r *SubmissionRepository) Create(ctx context.Context, exec sqlx.ExtContext, submission *models.Submission) error {
	if exec == nil {
		exec = r.db
	}
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assessment_submissions (
	id, assessment_id, assessment_instance_id, student_id, answers, started_at, submitted_at,
	score, percentage, passed, graded, late, submitted_before_window, created_at
) VALUES (
	:id, :assessment_id, :assessment_instance_id, :student_id, :answers, :started_at, :submitted_at,
	:score, :percentage, :passed, :graded, :late, :submitted_before_window, :created_at
)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// ListPendingValidation pages through ungraded, non-nullified submissions in id order.
func (r *SubmissionRepository) ListPendingValidation(ctx context.Context, afterID string, limit int) ([]models.Submission, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + submissionColumns + ` FROM assessment_submissions s
LEFT JOIN assessments a ON a.id = s.assessment_id
WHERE s.graded = FALSE AND s.nullified_at IS NULL AND s.id > $1
ORDER BY s.id ASC
LIMIT $2`
	var items []models.Submission
	if err := r.db.SelectContext(ctx, &items, query, afterID, limit); err != nil {
		return nil, fmt.Errorf("list submissions pending validation: %w", err)
	}
	return items, nil
}

// Nullify invalidates a submission, keeping its answers. It reports false when the
// submission had already been nullified.
func (r *SubmissionRepository) Nullify(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	const query = `UPDATE assessment_submissions SET
	submitted_before_window = TRUE,
	original_submission_time = submitted_at,
	nullified_at = $2,
	nullified_reason = $3,
	score = 0,
	percentage = 0,
	graded = FALSE,
	passed = FALSE
WHERE id = $1 AND nullified_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, at, reason)
	if err != nil {
		return false, fmt.Errorf("nullify submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("nullify submission rows affected: %w", err)
	}
	return affected > 0, nil
}

// CountNullified counts nullified submissions for a student.
func (r *SubmissionRepository) CountNullified(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM assessment_submissions WHERE student_id = $1 AND nullified_at IS NOT NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID); err != nil {
		return 0, fmt.Errorf("count nullified submissions: %w", err)
	}
	return count, nil
}
