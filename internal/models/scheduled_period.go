package models

import "time"

// ScheduledPeriod is one calendar slot generated for one student in one week.
type ScheduledPeriod struct {
	ID                    string       `db:"id" json:"id"`
	StudentID             string       `db:"student_id" json:"student_id"`
	TermID                string       `db:"term_id" json:"term_id"`
	WeekNumber            int          `db:"week_number" json:"week_number"`
	ScheduledDate         time.Time    `db:"scheduled_date" json:"scheduled_date"`
	DayOfWeek             time.Weekday `db:"day_of_week" json:"day_of_week"`
	PeriodNumber          int          `db:"period_number" json:"period_number"`
	StartTime             string       `db:"start_time" json:"start_time"`
	EndTime               string       `db:"end_time" json:"end_time"`
	SubjectID             string       `db:"subject_id" json:"subject_id"`
	LessonTopicID         *string      `db:"lesson_topic_id" json:"lesson_topic_id,omitempty"`
	AssessmentInstanceID  *string      `db:"assessment_instance_id" json:"assessment_instance_id,omitempty"`
	PeriodSequence        int          `db:"period_sequence" json:"period_sequence"`
	TotalPeriodsForTopic  int          `db:"total_periods_for_topic" json:"total_periods_for_topic"`
	PreviousPeriodID      *string      `db:"previous_period_id" json:"previous_period_id,omitempty"`
	NextPeriodID          *string      `db:"next_period_id" json:"next_period_id,omitempty"`
	AssessmentWindowStart *time.Time   `db:"assessment_window_start" json:"assessment_window_start,omitempty"`
	AssessmentWindowEnd   *time.Time   `db:"assessment_window_end" json:"assessment_window_end,omitempty"`
	Completed             bool         `db:"completed" json:"completed"`
	Archived              bool         `db:"archived" json:"archived"`
	ArchivedAt            *time.Time   `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt             time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time    `db:"updated_at" json:"updated_at"`
}

// TopicKey returns the lesson topic identity used for grouping, empty when unresolved.
func (p ScheduledPeriod) TopicKey() string {
	if p.LessonTopicID == nil {
		return ""
	}
	return *p.LessonTopicID
}
