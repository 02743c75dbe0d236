package models

import "time"

// IncompleteScope selects the population an incomplete report covers.
type IncompleteScope string

const (
	ScopeStudent IncompleteScope = "student"
	ScopeSubject IncompleteScope = "subject"
	ScopeSystem  IncompleteScope = "system"
)

// Urgency buckets incomplete records by days overdue.
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// IncompleteRecord is a flattened progress row enriched with labels for reporting.
type IncompleteRecord struct {
	ProgressID             string     `db:"id" json:"progress_id"`
	StudentID              string     `db:"student_id" json:"student_id"`
	SubjectID              string     `db:"subject_id" json:"subject_id"`
	SubjectName            string     `db:"subject_name" json:"subject_name"`
	LessonTopicID          *string    `db:"lesson_topic_id" json:"lesson_topic_id,omitempty"`
	LessonTopicTitle       *string    `db:"lesson_topic_title" json:"lesson_topic_title,omitempty"`
	ScheduledDate          time.Time  `db:"scheduled_date" json:"scheduled_date"`
	PeriodNumber           int        `db:"period_number" json:"period_number"`
	PeriodSequence         int        `db:"period_sequence" json:"period_sequence"`
	TotalPeriodsInSequence int        `db:"total_periods_in_sequence" json:"total_periods_in_sequence"`
	Completed              bool       `db:"completed" json:"completed"`
	IncompleteReason       *string    `db:"incomplete_reason" json:"incomplete_reason,omitempty"`
	AssessmentWindowEnd    *time.Time `db:"assessment_window_end" json:"assessment_window_end,omitempty"`
	DaysOverdue            int        `db:"-" json:"days_overdue"`
	Urgency                Urgency    `db:"-" json:"urgency,omitempty"`
}

// IncompleteStatistics is the aggregate view over a scope and date range.
type IncompleteStatistics struct {
	Scope                  IncompleteScope `json:"scope"`
	ScopeID                string          `json:"scope_id,omitempty"`
	From                   time.Time       `json:"from"`
	To                     time.Time       `json:"to"`
	TotalLessons           int             `json:"total_lessons"`
	TotalCompleted         int             `json:"total_completed"`
	TotalIncomplete        int             `json:"total_incomplete"`
	IncompleteByReason     map[string]int  `json:"incomplete_by_reason"`
	ByUrgency              map[Urgency]int `json:"by_urgency"`
	MultiPeriodIncomplete  int             `json:"multi_period_incomplete"`
	SinglePeriodIncomplete int             `json:"single_period_incomplete"`
	MissedDeadlines        int             `json:"missed_deadlines"`
	NoSubmissions          int             `json:"no_submissions"`
	TopicNotAssigned       int             `json:"topic_not_assigned"`
	AffectedSubjects       int             `json:"affected_subjects"`
	AffectedStudents       int             `json:"affected_students"`
	CompletionRate         float64         `json:"completion_rate"`
	IncompleteRate         float64         `json:"incomplete_rate"`
	GeneratedAt            time.Time       `json:"generated_at"`
}

// IncompleteBreakdown counts incomplete records for one student or subject.
type IncompleteBreakdown struct {
	Key             string         `json:"key"`
	Label           string         `json:"label,omitempty"`
	IncompleteCount int            `json:"incomplete_count"`
	ByReason        map[string]int `json:"by_reason"`
}

// IncompleteReport bundles statistics, records and ranked breakdowns.
type IncompleteReport struct {
	Statistics           IncompleteStatistics           `json:"statistics"`
	Records              []IncompleteRecord             `json:"records"`
	BySubject            map[string]IncompleteBreakdown `json:"by_subject,omitempty"`
	ByStudent            map[string]IncompleteBreakdown `json:"by_student,omitempty"`
	MostAffectedStudents []IncompleteBreakdown          `json:"most_affected_students,omitempty"`
	MostAffectedSubjects []IncompleteBreakdown          `json:"most_affected_subjects,omitempty"`
}

// ExportArtifact points at a rendered report stored for download.
type ExportArtifact struct {
	ID          string    `json:"id"`
	Format      string    `json:"format"`
	Path        string    `json:"-"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	RowCount    int       `json:"row_count"`
}
