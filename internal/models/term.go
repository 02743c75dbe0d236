package models

import "time"

// Term models an academic term and the number of teaching weeks it spans.
type Term struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
	EndDate      time.Time `db:"end_date" json:"end_date"`
	WeekCount    int       `db:"week_count" json:"week_count"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// TermWeek is the Monday..Sunday date range of one teaching week.
type TermWeek struct {
	TermID     string    `json:"term_id"`
	WeekNumber int       `json:"week_number"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
}

// PublicHoliday marks a date on which no lessons are generated.
type PublicHoliday struct {
	ID                 string    `db:"id" json:"id"`
	HolidayDate        time.Time `db:"holiday_date" json:"holiday_date"`
	Name               string    `db:"name" json:"name"`
	RequiresReschedule bool      `db:"requires_reschedule" json:"requires_reschedule"`
}
