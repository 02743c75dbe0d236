package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RosterRepository answers teacher and student subject membership questions.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs the repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// TeachesSubject reports whether the teacher is assigned to the subject.
func (r *RosterRepository) TeachesSubject(ctx context.Context, teacherID, subjectID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM teacher_subjects WHERE teacher_id = $1 AND subject_id = $2)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, teacherID, subjectID); err != nil {
		return false, fmt.Errorf("check teacher subject: %w", err)
	}
	return ok, nil
}

// IsEnrolled reports whether the student takes the subject.
func (r *RosterRepository) IsEnrolled(ctx context.Context, studentID, subjectID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM student_subjects WHERE student_id = $1 AND subject_id = $2)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, studentID, subjectID); err != nil {
		return false, fmt.Errorf("check student enrollment: %w", err)
	}
	return ok, nil
}
