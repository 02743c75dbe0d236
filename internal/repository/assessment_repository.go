package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-window-api/internal/models"
)

// AssessmentRepository reads base assessments and their ordered question pools.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs the repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// FindByID loads an assessment without its questions.
func (r *AssessmentRepository) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	const query = `SELECT id, lesson_topic_id, subject_id, title FROM assessments WHERE id = $1`
	var assessment models.Assessment
	if err := r.db.GetContext(ctx, &assessment, query, id); err != nil {
		return nil, err
	}
	return &assessment, nil
}

// FindByTopic returns the base assessment of a lesson topic, or nil when none exists.
func (r *AssessmentRepository) FindByTopic(ctx context.Context, topicID string) (*models.Assessment, error) {
	const query = `SELECT id, lesson_topic_id, subject_id, title FROM assessments WHERE lesson_topic_id = $1 ORDER BY created_at ASC LIMIT 1`
	var assessment models.Assessment
	if err := r.db.GetContext(ctx, &assessment, query, topicID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find assessment by topic: %w", err)
	}
	return &assessment, nil
}

// QuestionIDs returns the assessment's questions in authored order.
func (r *AssessmentRepository) QuestionIDs(ctx context.Context, assessmentID string) ([]string, error) {
	const query = `SELECT question_id FROM assessment_questions WHERE assessment_id = $1 ORDER BY position ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, assessmentID); err != nil {
		return nil, fmt.Errorf("list assessment questions: %w", err)
	}
	return ids, nil
}
