package models

import "time"

// EventType names a domain event emitted to the notification sink.
type EventType string

const (
	EventAssessmentPublished  EventType = "assessment.published"
	EventSubmissionReceived   EventType = "submission.received"
	EventSubmissionNullified  EventType = "submission.nullified"
	EventGradeReleased        EventType = "grade.released"
	EventRescheduled          EventType = "assessment.rescheduled"
	EventRescheduleCancelled  EventType = "assessment.reschedule_cancelled"
	EventWeeklyScheduleReady  EventType = "schedule.week_generated"
)

// Event is the JSON envelope published on redis and NATS.
type Event struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	StudentID  string                 `json:"student_id,omitempty"`
	TeacherID  string                 `json:"teacher_id,omitempty"`
	ResourceID string                 `json:"resource_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}
