package models

import (
	"time"

	"github.com/lib/pq"
)

// AssessmentInstance is one shuffled variant of a base assessment bound to one period
// of a multi-period topic.
type AssessmentInstance struct {
	ID               string         `db:"id" json:"id"`
	BaseAssessmentID string         `db:"base_assessment_id" json:"base_assessment_id"`
	LessonTopicID    string         `db:"lesson_topic_id" json:"lesson_topic_id"`
	Suffix           string         `db:"suffix" json:"suffix"`
	PeriodSequence   int            `db:"period_sequence" json:"period_sequence"`
	TotalPeriods     int            `db:"total_periods" json:"total_periods"`
	QuestionOrder    pq.StringArray `db:"question_order" json:"question_order"`
	TermWeek         int            `db:"term_week" json:"term_week"`
	IsActive         bool           `db:"is_active" json:"is_active"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// ShuffleClassification grades how well a question pool supports distinct orderings.
type ShuffleClassification string

const (
	ShuffleInsufficient ShuffleClassification = "insufficient"
	ShuffleAcceptable   ShuffleClassification = "acceptable"
	ShuffleOptimal      ShuffleClassification = "optimal"
)

// ShuffleValidation describes whether a pool can be shuffled across a number of periods.
type ShuffleValidation struct {
	QuestionCount  int                   `json:"question_count"`
	PeriodCount    int                   `json:"period_count"`
	Sufficient     bool                  `json:"sufficient"`
	Classification ShuffleClassification `json:"classification"`
	Message        string                `json:"message"`
}
