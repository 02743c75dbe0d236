package dto

// GenerationJobResponse acknowledges a queued weekly generation run.
type GenerationJobResponse struct {
	JobID      string `json:"jobId"`
	WeekNumber int    `json:"weekNumber"`
	Status     string `json:"status"`
}
