package dto

import (
	"encoding/json"
	"time"
)

// SubmitAssessmentRequest carries a student's answers. The submission time is always the
// server's clock; StartedAt is informational.
type SubmitAssessmentRequest struct {
	Answers   json.RawMessage `json:"answers" validate:"required"`
	StartedAt *time.Time      `json:"startedAt"`
}
