package models

import "time"

// GenerationResult aggregates one weekly generation run.
type GenerationResult struct {
	Success                    bool                `json:"success"`
	ErrorMessage               string              `json:"error_message,omitempty"`
	WeekNumber                 int                 `json:"week_number"`
	TermID                     string              `json:"term_id,omitempty"`
	TermName                   string              `json:"term_name,omitempty"`
	WeekStart                  *time.Time          `json:"week_start,omitempty"`
	WeekEnd                    *time.Time          `json:"week_end,omitempty"`
	StudentsProcessed          int                 `json:"students_processed"`
	SchedulesCreated           int                 `json:"schedules_created"`
	ProgressRecordsCreated     int                 `json:"progress_records_created"`
	AssessmentInstancesCreated int                 `json:"assessment_instances_created"`
	SchedulesArchived          int                 `json:"schedules_archived"`
	ProgressRecordsArchived    int                 `json:"progress_records_archived"`
	SaturdayHoliday            bool                `json:"saturday_holiday"`
	HolidayName                string              `json:"holiday_name,omitempty"`
	MissingTopicsBySubject     map[string][]string `json:"missing_topics_by_subject,omitempty"`
	FailedStudents             map[string]string   `json:"failed_students,omitempty"`
	StartedAt                  time.Time           `json:"started_at"`
	FinishedAt                 time.Time           `json:"finished_at"`
	DurationSeconds            float64             `json:"duration_seconds"`
}

// StudentGeneration is the per-student slice of a generation run.
type StudentGeneration struct {
	StudentID                  string
	Periods                    []ScheduledPeriod
	ProgressRecordsCreated     int
	AssessmentInstancesCreated int
	MissingTopics              map[string][]string
}

// GenerationJob is the payload queued for asynchronous generation.
type GenerationJob struct {
	JobID      string    `json:"job_id"`
	WeekNumber int       `json:"week_number"`
	QueuedAt   time.Time `json:"queued_at"`
}
