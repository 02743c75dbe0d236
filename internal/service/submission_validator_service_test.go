package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/pkg/config"
)

type periodLookupStub struct {
	period *models.ScheduledPeriod
}

func (s *periodLookupStub) FindForSubmission(ctx context.Context, topicID, studentID string, instanceID *string) (*models.ScheduledPeriod, error) {
	if s.period == nil {
		return nil, sql.ErrNoRows
	}
	return s.period, nil
}

func TestSweepNullifiesEarlySubmissionsOnce(t *testing.T) {
	progress := newProgressMem(
		models.Progress{ID: "progress-1", StudentID: "student-1", SubmissionID: ptrString("sub-early"), AssessmentWindowStart: ptrTime(ts(t, "2024-03-04 09:00"))},
		models.Progress{ID: "progress-2", StudentID: "student-1", SubmissionID: ptrString("sub-ok"), AssessmentWindowStart: ptrTime(ts(t, "2024-03-04 09:00"))},
	)
	submissions := newSubmissionMem(
		models.Submission{ID: "sub-early", StudentID: "student-1", AssessmentID: "assessment-1", SubmittedAt: ts(t, "2024-03-04 08:50"), Score: 87, Percentage: 87, Graded: false, Passed: true},
		models.Submission{ID: "sub-ok", StudentID: "student-1", AssessmentID: "assessment-2", SubmittedAt: ts(t, "2024-03-04 09:20"), Score: 60},
		models.Submission{ID: "sub-orphan", StudentID: "student-2", AssessmentID: "assessment-3", SubmittedAt: ts(t, "2024-03-04 07:00")},
	)
	events := &eventRecorder{}
	svc := NewSubmissionValidatorService(submissions, progress, &periodLookupStub{}, events, NewMetricsService(), nil, config.ValidatorConfig{BatchSize: 2})
	now := ts(t, "2024-03-04 12:00")

	result, err := svc.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 1, result.Nullified)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Failed)

	early := submissions.get("sub-early")
	require.NotNil(t, early.NullifiedAt)
	assert.True(t, early.SubmittedBeforeWindow)
	assert.Equal(t, ts(t, "2024-03-04 08:50"), *early.OriginalSubmissionTime)
	assert.Zero(t, early.Score)
	assert.Zero(t, early.Percentage)
	assert.False(t, early.Passed)
	assert.Equal(t, "Submitted at 2024-03-04T08:50:00Z before assessment window opened at 2024-03-04T09:00:00Z", *early.NullifiedReason)
	assert.Nil(t, submissions.get("sub-ok").NullifiedAt)
	assert.Equal(t, []models.EventType{models.EventSubmissionNullified}, events.types())

	again, err := svc.Sweep(context.Background(), now.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, again.Nullified)
	assert.Equal(t, now, *submissions.get("sub-early").NullifiedAt)

	count, err := svc.NullifiedCount(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestValidateFallsBackToScheduledPeriod(t *testing.T) {
	progress := newProgressMem()
	periods := &periodLookupStub{period: &models.ScheduledPeriod{ID: "period-1", AssessmentWindowStart: ptrTime(ts(t, "2024-03-04 09:00"))}}
	submissions := newSubmissionMem(models.Submission{
		ID: "sub-1", StudentID: "student-1", AssessmentID: "assessment-1", LessonTopicID: ptrString("topic-1"), SubmittedAt: ts(t, "2024-03-04 08:30"),
	})
	svc := NewSubmissionValidatorService(submissions, progress, periods, nil, nil, nil, config.ValidatorConfig{})

	sub := submissions.get("sub-1")
	valid, err := svc.Validate(context.Background(), &sub, ts(t, "2024-03-04 08:31"))

	require.NoError(t, err)
	assert.False(t, valid)
	assert.True(t, sub.IsNullified())
	assert.True(t, submissions.get("sub-1").SubmittedBeforeWindow)
}

func TestValidateAcceptsOnTimeSubmission(t *testing.T) {
	progress := newProgressMem(models.Progress{ID: "progress-1", SubmissionID: ptrString("sub-1"), AssessmentWindowStart: ptrTime(ts(t, "2024-03-04 09:00"))})
	submissions := newSubmissionMem(models.Submission{ID: "sub-1", SubmittedAt: ts(t, "2024-03-04 09:00")})
	svc := NewSubmissionValidatorService(submissions, progress, &periodLookupStub{}, nil, nil, nil, config.ValidatorConfig{})

	sub := submissions.get("sub-1")
	valid, err := svc.Validate(context.Background(), &sub, ts(t, "2024-03-04 09:01"))

	require.NoError(t, err)
	assert.True(t, valid)
	assert.False(t, sub.IsNullified())
}
