package models

import "time"

// Reschedule replaces one progress record's window before it opens.
type Reschedule struct {
	ID                  string     `db:"id" json:"id"`
	ProgressID          string     `db:"progress_id" json:"progress_id"`
	StudentID           string     `db:"student_id" json:"student_id"`
	AssessmentID        *string    `db:"assessment_id" json:"assessment_id,omitempty"`
	TeacherID           string     `db:"teacher_id" json:"teacher_id"`
	OriginalWindowStart time.Time  `db:"original_window_start" json:"original_window_start"`
	OriginalWindowEnd   time.Time  `db:"original_window_end" json:"original_window_end"`
	OriginalGraceEnd    *time.Time `db:"original_grace_end" json:"original_grace_end,omitempty"`
	NewWindowStart      time.Time  `db:"new_window_start" json:"new_window_start"`
	NewWindowEnd        time.Time  `db:"new_window_end" json:"new_window_end"`
	NewGraceEnd         time.Time  `db:"new_grace_end" json:"new_grace_end"`
	Reason              string     `db:"reason" json:"reason"`
	Active              bool       `db:"active" json:"active"`
	CancelledAt         *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy         *string    `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancellationReason  *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}
