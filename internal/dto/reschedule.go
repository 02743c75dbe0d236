package dto

import "time"

// RescheduleRequest moves one progress record's window before it opens.
type RescheduleRequest struct {
	ProgressID     string    `json:"progressId" validate:"required"`
	NewWindowStart time.Time `json:"newWindowStart" validate:"required"`
	Reason         string    `json:"reason" validate:"required"`
}

// CancelRescheduleRequest restores the original window.
type CancelRescheduleRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// RescheduleListQuery filters teacher reschedule listings.
type RescheduleListQuery struct {
	StudentID string `form:"student_id"`
}
