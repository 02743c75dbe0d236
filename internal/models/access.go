package models

import "time"

// AccessStatus is the outcome of an access check.
type AccessStatus string

const (
	AccessAllowed          AccessStatus = "ALLOWED"
	AccessNotYetOpen       AccessStatus = "NOT_YET_OPEN"
	AccessExpired          AccessStatus = "EXPIRED"
	AccessAlreadySubmitted AccessStatus = "ALREADY_SUBMITTED"
)

// AccessResult describes whether a student may enter an assessment right now.
type AccessResult struct {
	Status           AccessStatus `json:"status"`
	Reason           string       `json:"reason,omitempty"`
	ProgressID       string       `json:"progress_id,omitempty"`
	WindowStart      *time.Time   `json:"window_start,omitempty"`
	WindowEnd        *time.Time   `json:"window_end,omitempty"`
	GraceEnd         *time.Time   `json:"grace_end,omitempty"`
	MinutesUntilOpen int64        `json:"minutes_until_open,omitempty"`
	MinutesRemaining int64        `json:"minutes_remaining,omitempty"`
	InGracePeriod    bool         `json:"in_grace_period"`
	Rescheduled      bool         `json:"rescheduled"`
}

// Allowed is a convenience accessor.
func (r AccessResult) Allowed() bool {
	return r.Status == AccessAllowed
}
