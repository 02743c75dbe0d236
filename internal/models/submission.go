package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Submission is one student's attempt at an assessment (or one of its instances).
type Submission struct {
	ID                     string         `db:"id" json:"id"`
	AssessmentID           string         `db:"assessment_id" json:"assessment_id"`
	AssessmentInstanceID   *string        `db:"assessment_instance_id" json:"assessment_instance_id,omitempty"`
	StudentID              string         `db:"student_id" json:"student_id"`
	Answers                types.JSONText `db:"answers" json:"answers"`
	StartedAt              *time.Time     `db:"started_at" json:"started_at,omitempty"`
	SubmittedAt            time.Time      `db:"submitted_at" json:"submitted_at"`
	Score                  float64        `db:"score" json:"score"`
	Percentage             float64        `db:"percentage" json:"percentage"`
	Passed                 bool           `db:"passed" json:"passed"`
	Graded                 bool           `db:"graded" json:"graded"`
	Late                   bool           `db:"late" json:"late"`
	SubmittedBeforeWindow  bool           `db:"submitted_before_window" json:"submitted_before_window"`
	OriginalSubmissionTime *time.Time     `db:"original_submission_time" json:"original_submission_time,omitempty"`
	NullifiedAt            *time.Time     `db:"nullified_at" json:"nullified_at,omitempty"`
	NullifiedReason        *string        `db:"nullified_reason" json:"nullified_reason,omitempty"`
	CreatedAt              time.Time      `db:"created_at" json:"created_at"`

	// LessonTopicID is joined from the assessment when loading submissions for validation.
	LessonTopicID *string `db:"lesson_topic_id" json:"lesson_topic_id,omitempty"`
}

// IsNullified reports whether the submission has been invalidated.
func (s *Submission) IsNullified() bool {
	return s.NullifiedAt != nil
}

// SubmissionResult is returned to the grading subsystem after intake.
type SubmissionResult struct {
	Submission *Submission `json:"submission"`
	ProgressID string      `json:"progress_id,omitempty"`
	Accepted   bool        `json:"accepted"`
	Late       bool        `json:"late"`
	Message    string      `json:"message,omitempty"`
}

// SweepResult summarises one pass of the submission validator.
type SweepResult struct {
	Scanned   int       `json:"scanned"`
	Nullified int       `json:"nullified"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}
