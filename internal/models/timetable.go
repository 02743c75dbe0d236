package models

import "time"

// TimetableEntry is one recurring weekly slot on a student's individual timetable.
type TimetableEntry struct {
	ID           string       `db:"id" json:"id"`
	StudentID    string       `db:"student_id" json:"student_id"`
	TermID       string       `db:"term_id" json:"term_id"`
	DayOfWeek    time.Weekday `db:"day_of_week" json:"day_of_week"`
	PeriodNumber int          `db:"period_number" json:"period_number"`
	StartTime    string       `db:"start_time" json:"start_time"`
	EndTime      string       `db:"end_time" json:"end_time"`
	SubjectID    string       `db:"subject_id" json:"subject_id"`
}

// Subject is the read model used for reporting labels.
type Subject struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// LessonTopic is the unit of content taught for a subject in a given week.
type LessonTopic struct {
	ID         string `db:"id" json:"id"`
	SubjectID  string `db:"subject_id" json:"subject_id"`
	TermID     string `db:"term_id" json:"term_id"`
	WeekNumber int    `db:"week_number" json:"week_number"`
	Title      string `db:"title" json:"title"`
}

// Assessment is a base assessment whose question pool may be shuffled into instances.
type Assessment struct {
	ID            string   `db:"id" json:"id"`
	LessonTopicID *string  `db:"lesson_topic_id" json:"lesson_topic_id,omitempty"`
	SubjectID     string   `db:"subject_id" json:"subject_id"`
	Title         string   `db:"title" json:"title"`
	QuestionIDs   []string `db:"-" json:"question_ids,omitempty"`
}
