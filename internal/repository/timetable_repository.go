package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-window-api/internal/models"
)

// TimetableRepository reads students' individual weekly timetables.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// ListEntries returns a student's timetable for a term ordered by day and period.
func (r *TimetableRepository) ListEntries(ctx context.Context, studentID, termID string) ([]models.TimetableEntry, error) {
	const query = `SELECT id, student_id, term_id, day_of_week, period_number, start_time, end_time, subject_id
FROM student_timetables
WHERE student_id = $1 AND term_id = $2
ORDER BY day_of_week ASC, period_number ASC`
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, studentID, termID); err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	return entries, nil
}

// ListEligibleStudents returns every student holding at least one timetable entry in the term.
func (r *TimetableRepository) ListEligibleStudents(ctx context.Context, termID string) ([]string, error) {
	const query = `SELECT DISTINCT student_id FROM student_timetables WHERE term_id = $1 ORDER BY student_id ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, termID); err != nil {
		return nil, fmt.Errorf("list eligible students: %w", err)
	}
	return ids, nil
}
