package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-window-api/internal/models"
)

// LessonTopicRepository resolves the topic taught for a subject in a term week.
type LessonTopicRepository struct {
	db *sqlx.DB
}

// NewLessonTopicRepository constructs the repository.
func NewLessonTopicRepository(db *sqlx.DB) *LessonTopicRepository {
	return &LessonTopicRepository{db: db}
}

// FindForWeek returns nil when no topic has been planned for the week.
func (r *LessonTopicRepository) FindForWeek(ctx context.Context, subjectID, termID string, week int) (*models.LessonTopic, error) {
	const query = `SELECT id, subject_id, term_id, week_number, title FROM lesson_topics
WHERE subject_id = $1 AND term_id = $2 AND week_number = $3
ORDER BY created_at ASC LIMIT 1`
	var topic models.LessonTopic
	if err := r.db.GetContext(ctx, &topic, query, subjectID, termID, week); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find lesson topic: %w", err)
	}
	return &topic, nil
}
