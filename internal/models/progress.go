package models

import "time"

// IncompleteReason explains why a progress record was not completed.
type IncompleteReason string

const (
	IncompleteMissedGracePeriod IncompleteReason = "MISSED_GRACE_PERIOD"
	IncompleteNoSubmission      IncompleteReason = "NO_SUBMISSION"
	IncompleteTopicNotAssigned  IncompleteReason = "TOPIC_NOT_ASSIGNED"
	IncompleteAutoMarked        IncompleteReason = "AUTO_MARKED"
	IncompleteManuallyMarked    IncompleteReason = "MANUALLY_MARKED"
)

// Progress tracks one student's relationship to one scheduled period.
type Progress struct {
	ID                       string            `db:"id" json:"id"`
	StudentID                string            `db:"student_id" json:"student_id"`
	SubjectID                string            `db:"subject_id" json:"subject_id"`
	LessonTopicID            *string           `db:"lesson_topic_id" json:"lesson_topic_id,omitempty"`
	AssessmentID             *string           `db:"assessment_id" json:"assessment_id,omitempty"`
	AssessmentInstanceID     *string           `db:"assessment_instance_id" json:"assessment_instance_id,omitempty"`
	ScheduledPeriodID        *string           `db:"scheduled_period_id" json:"scheduled_period_id,omitempty"`
	ScheduledDate            time.Time         `db:"scheduled_date" json:"scheduled_date"`
	PeriodNumber             int               `db:"period_number" json:"period_number"`
	PeriodSequence           int               `db:"period_sequence" json:"period_sequence"`
	TotalPeriodsInSequence   int               `db:"total_periods_in_sequence" json:"total_periods_in_sequence"`
	PreviousProgressID       *string           `db:"previous_progress_id" json:"previous_progress_id,omitempty"`
	AssessmentWindowStart    *time.Time        `db:"assessment_window_start" json:"assessment_window_start,omitempty"`
	AssessmentWindowEnd      *time.Time        `db:"assessment_window_end" json:"assessment_window_end,omitempty"`
	GracePeriodEnd           *time.Time        `db:"grace_period_end" json:"grace_period_end,omitempty"`
	AssessmentAccessible     bool              `db:"assessment_accessible" json:"assessment_accessible"`
	Completed                bool              `db:"completed" json:"completed"`
	CompletedAt              *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	IncompleteReason         *IncompleteReason `db:"incomplete_reason" json:"incomplete_reason,omitempty"`
	IncompleteMarkedAt       *time.Time        `db:"incomplete_marked_at" json:"incomplete_marked_at,omitempty"`
	SubmissionID             *string           `db:"submission_id" json:"submission_id,omitempty"`
	RequiresCustomAssessment bool              `db:"requires_custom_assessment" json:"requires_custom_assessment"`
	Archived                 bool              `db:"archived" json:"archived"`
	ArchivedAt               *time.Time        `db:"archived_at" json:"archived_at,omitempty"`
	Version                  int               `db:"version" json:"version"`
	CreatedAt                time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time         `db:"updated_at" json:"updated_at"`
}

// WindowConfigured reports whether both window bounds are set.
func (p *Progress) WindowConfigured() bool {
	return p.AssessmentWindowStart != nil && p.AssessmentWindowEnd != nil
}

// IsIncomplete is true for records that were not completed and carry a reason.
func (p *Progress) IsIncomplete() bool {
	return !p.Completed && p.IncompleteReason != nil
}

// IsMultiPeriod reports whether the record belongs to a topic spanning several periods.
func (p *Progress) IsMultiPeriod() bool {
	return p.TotalPeriodsInSequence > 1
}

// ProgressFilter narrows progress queries used by reporting.
type ProgressFilter struct {
	StudentID string
	SubjectID string
	From      time.Time
	To        time.Time
}

// IncompleteMarkResult summarises one pass of the overdue marker.
type IncompleteMarkResult struct {
	Scanned   int       `json:"scanned"`
	Marked    int       `json:"marked"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}
