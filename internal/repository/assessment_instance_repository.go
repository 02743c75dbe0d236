package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-window-api/internal/models"
)

const instanceColumns = `id, base_assessment_id, lesson_topic_id, suffix, period_sequence, total_periods, question_order, term_week, is_active, created_at`

// AssessmentInstanceRepository persists shuffled assessment variants.
type AssessmentInstanceRepository struct {
	db *sqlx.DB
}

// NewAssessmentInstanceRepository constructs the repository.
func NewAssessmentInstanceRepository(db *sqlx.DB) *AssessmentInstanceRepository {
	return &AssessmentInstanceRepository{db: db}
}

// FindByBaseAndSuffix returns sql.ErrNoRows when the variant has not been minted.
func (r *AssessmentInstanceRepository) FindByBaseAndSuffix(ctx context.Context, exec sqlx.ExtContext, baseID, suffix string) (*models.AssessmentInstance, error) {
	if exec == nil {
		exec = r.db
	}
	query := `SELECT ` + instanceColumns + ` FROM assessment_instances WHERE base_assessment_id = $1 AND suffix = $2`
	var instance models.AssessmentInstance
	if err := sqlx.GetContext(ctx, exec, &instance, query, baseID, suffix); err != nil {
		return nil, err
	}
	return &instance, nil
}

// FindByBaseAndSequence returns the variant bound to a 1-based period sequence.
func (r *AssessmentInstanceRepository) FindByBaseAndSequence(ctx context.Context, baseID string, sequence int) (*models.AssessmentInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM assessment_instances
WHERE base_assessment_id = $1 AND period_sequence = $2 AND is_active = TRUE
ORDER BY created_at DESC LIMIT 1`
	var instance models.AssessmentInstance
	if err := r.db.GetContext(ctx, &instance, query, baseID, sequence); err != nil {
		return nil, err
	}
	return &instance, nil
}

// ListByBase lists every variant of a base assessment ordered by sequence.
func (r *AssessmentInstanceRepository) ListByBase(ctx context.Context, baseID string) ([]models.AssessmentInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM assessment_instances WHERE base_assessment_id = $1 ORDER BY period_sequence ASC`
	var instances []models.AssessmentInstance
	if err := r.db.SelectContext(ctx, &instances, query, baseID); err != nil {
		return nil, fmt.Errorf("list assessment instances: %w", err)
	}
	return instances, nil
}

// Create inserts a variant.
func (r *AssessmentInstanceRepository) Create(ctx context.Context, exec sqlx.ExtContext, instance *models.AssessmentInstance) error {
	if exec == nil {
		exec = r.db
	}
	if instance.ID == "" {
		instance.ID = uuid.NewString()
	}
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assessment_instances (id, base_assessment_id, lesson_topic_id, suffix, period_sequence, total_periods, question_order, term_week, is_active, created_at)
VALUES (:id, :base_assessment_id, :lesson_topic_id, :suffix, :period_sequence, :total_periods, :question_order, :term_week, :is_active, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, instance); err != nil {
		return fmt.Errorf("create assessment instance: %w", err)
	}
	return nil
}

// DeleteByBase removes every variant so they can be regenerated.
func (r *AssessmentInstanceRepository) DeleteByBase(ctx context.Context, baseID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assessment_instances WHERE base_assessment_id = $1`, baseID)
	if err != nil {
		return 0, fmt.Errorf("delete assessment instances: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete assessment instances rows affected: %w", err)
	}
	return affected, nil
}
