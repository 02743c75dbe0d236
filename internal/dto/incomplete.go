package dto

import "time"

// IncompleteQuery selects the population and date range for incomplete statistics.
type IncompleteQuery struct {
	Scope string    `form:"scope" json:"scope" validate:"required,oneof=student subject system"`
	ID    string    `form:"id" json:"id" validate:"required_unless=Scope system"`
	From  time.Time `form:"from" json:"from" time_format:"2006-01-02" validate:"required"`
	To    time.Time `form:"to" json:"to" time_format:"2006-01-02" validate:"required,gtefield=From"`
}

// IncompleteExportRequest renders the incomplete records of a query to a file.
type IncompleteExportRequest struct {
	IncompleteQuery
	Format string `form:"format" json:"format" validate:"required,oneof=csv pdf"`
}
