package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/pkg/config"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

type accessFixture struct {
	progress    *progressMem
	reschedules *rescheduleMem
	submissions *submissionMem
	access      *AccessService
}

func newAccessFixture(t *testing.T, records ...models.Progress) *accessFixture {
	t.Helper()
	calc := newTestCalculator(t)
	progress := newProgressMem(records...)
	reschedules := newRescheduleMem()
	submissions := newSubmissionMem()
	progressSvc := NewProgressService(progress, nil, &assessmentStub{}, calc, nil)
	return &accessFixture{
		progress:    progress,
		reschedules: reschedules,
		submissions: submissions,
		access:      NewAccessService(progressSvc, reschedules, submissions, calc, NewMetricsService(), nil),
	}
}

func windowedProgress(t *testing.T, id, start, end string) models.Progress {
	t.Helper()
	s, e := ts(t, start), ts(t, end)
	return models.Progress{
		ID:                    id,
		StudentID:             "student-1",
		SubjectID:             "math",
		AssessmentID:          ptrString("assessment-1"),
		ScheduledDate:         time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC),
		AssessmentWindowStart: &s,
		AssessmentWindowEnd:   &e,
		GracePeriodEnd:        ptrTime(e.Add(30 * time.Minute)),
		AssessmentAccessible:  true,
	}
}

func TestCanAccessStatuses(t *testing.T) {
	fx := newAccessFixture(t, windowedProgress(t, "progress-1", "2024-03-04 09:00", "2024-03-04 10:00"))
	ctx := context.Background()

	cases := []struct {
		name   string
		now    string
		status models.AccessStatus
		grace  bool
	}{
		{name: "before", now: "2024-03-04 08:58", status: models.AccessNotYetOpen},
		{name: "at start", now: "2024-03-04 09:00", status: models.AccessAllowed},
		{name: "inside", now: "2024-03-04 09:30", status: models.AccessAllowed},
		{name: "at end", now: "2024-03-04 10:00", status: models.AccessAllowed},
		{name: "grace", now: "2024-03-04 10:15", status: models.AccessExpired, grace: true},
		{name: "after grace", now: "2024-03-04 10:31", status: models.AccessExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := fx.access.CanAccess(ctx, "student-1", "assessment-1", ts(t, tc.now))
			require.NoError(t, err)
			assert.Equal(t, tc.status, result.Status)
			assert.Equal(t, tc.grace, result.InGracePeriod)
			assert.Equal(t, tc.status == models.AccessAllowed, result.Allowed())
			assert.Equal(t, "progress-1", result.ProgressID)
		})
	}
}

func TestCanAccessMinutes(t *testing.T) {
	fx := newAccessFixture(t, windowedProgress(t, "progress-1", "2024-03-04 09:00", "2024-03-04 10:00"))

	before, err := fx.access.CanAccess(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-04 08:58").Add(30*time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 2, before.MinutesUntilOpen)

	inside, err := fx.access.CanAccess(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-04 09:15").Add(30*time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 44, inside.MinutesRemaining)
}

func TestCanAccessAlreadySubmitted(t *testing.T) {
	fx := newAccessFixture(t, windowedProgress(t, "progress-1", "2024-03-04 09:00", "2024-03-04 10:00"))
	require.NoError(t, fx.submissions.Create(context.Background(), nil, &models.Submission{
		StudentID: "student-1", AssessmentID: "assessment-1", SubmittedAt: ts(t, "2024-03-04 09:10"),
	}))

	result, err := fx.access.CanAccess(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-04 09:30"))

	require.NoError(t, err)
	assert.Equal(t, models.AccessAlreadySubmitted, result.Status)
	assert.False(t, result.Allowed())
}

func TestCanAccessUsesRescheduledWindow(t *testing.T) {
	fx := newAccessFixture(t, windowedProgress(t, "progress-1", "2024-03-04 09:00", "2024-03-04 10:00"))
	require.NoError(t, fx.reschedules.Create(context.Background(), nil, &models.Reschedule{
		ProgressID:          "progress-1",
		StudentID:           "student-1",
		AssessmentID:        ptrString("assessment-1"),
		TeacherID:           "teacher-1",
		OriginalWindowStart: ts(t, "2024-03-04 09:00"),
		OriginalWindowEnd:   ts(t, "2024-03-04 10:00"),
		NewWindowStart:      ts(t, "2024-03-04 14:00"),
		NewWindowEnd:        ts(t, "2024-03-04 15:00"),
		NewGraceEnd:         ts(t, "2024-03-04 15:30"),
	}))

	result, err := fx.access.CanAccess(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-04 09:30"))
	require.NoError(t, err)
	assert.Equal(t, models.AccessNotYetOpen, result.Status)
	assert.True(t, result.Rescheduled)
	assert.Equal(t, ts(t, "2024-03-04 15:30"), *result.GraceEnd)

	result, err = fx.access.CanAccess(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-04 14:05"))
	require.NoError(t, err)
	assert.Equal(t, models.AccessAllowed, result.Status)
}

func TestCanAccessFallsBackToCalculatorGrace(t *testing.T) {
	record := windowedProgress(t, "progress-1", "2024-03-04 09:00", "2024-03-04 10:00")
	record.GracePeriodEnd = nil
	record.Version = 1
	fx := newAccessFixture(t, record)

	result, err := fx.access.CanAccess(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-04 10:20"))

	require.NoError(t, err)
	assert.Equal(t, models.AccessExpired, result.Status)
	assert.True(t, result.InGracePeriod)
	assert.Equal(t, ts(t, "2024-03-04 10:30"), *result.GraceEnd)
}

func TestCanAccessIgnoresRescheduleOfSiblingPeriod(t *testing.T) {
	first := windowedProgress(t, "progress-1", "2024-03-04 09:00", "2024-03-04 10:00")
	third := windowedProgress(t, "progress-3", "2024-03-09 14:00", "2024-03-09 15:00")
	third.PeriodSequence, third.TotalPeriodsInSequence = 3, 3
	first.PeriodSequence, first.TotalPeriodsInSequence = 1, 3
	fx := newAccessFixture(t, first, third)
	require.NoError(t, fx.reschedules.Create(context.Background(), nil, &models.Reschedule{
		ProgressID:          "progress-3",
		StudentID:           "student-1",
		AssessmentID:        ptrString("assessment-1"),
		TeacherID:           "teacher-1",
		OriginalWindowStart: ts(t, "2024-03-08 09:00"),
		OriginalWindowEnd:   ts(t, "2024-03-08 10:00"),
		NewWindowStart:      ts(t, "2024-03-09 14:00"),
		NewWindowEnd:        ts(t, "2024-03-09 15:00"),
		NewGraceEnd:         ts(t, "2024-03-09 15:30"),
	}))

	result, err := fx.access.CanAccess(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-04 09:30"))
	require.NoError(t, err)
	assert.Equal(t, models.AccessAllowed, result.Status)
	assert.Equal(t, "progress-1", result.ProgressID)
	assert.False(t, result.Rescheduled)
	assert.Equal(t, ts(t, "2024-03-04 09:00"), *result.WindowStart)

	result, err = fx.access.CanAccess(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-09 14:10"))
	require.NoError(t, err)
	assert.Equal(t, models.AccessAllowed, result.Status)
	assert.Equal(t, "progress-3", result.ProgressID)
	assert.True(t, result.Rescheduled)
}

func TestCanAccessNeverReopensCompletedAssessment(t *testing.T) {
	record := windowedProgress(t, "progress-1", "2024-03-04 09:00", "2024-03-04 10:00")
	record.AssessmentInstanceID = ptrString("instance-A")
	calc := newTestCalculator(t)
	store := newProgressMem(record)
	submissions := newSubmissionMem()
	assessments := &assessmentStub{assessments: map[string]models.Assessment{
		"assessment-1": {ID: "assessment-1", SubjectID: "math"},
	}}
	access := NewAccessService(NewProgressService(store, nil, assessments, calc, nil), newRescheduleMem(), submissions, calc, NewMetricsService(), nil)
	tx, mock := newTxProviderMock(t)
	checker := NewSubmissionValidatorService(submissions, store, &periodLookupStub{}, nil, nil, nil, config.ValidatorConfig{})
	svc := NewSubmissionService(access, submissions, store, checker, nil, tx, nil, nil)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()
	first, err := svc.SubmitAssessment(ctx, "student-1", "assessment-1", answers(), ts(t, "2024-03-04 09:30"))
	require.NoError(t, err)
	assert.Equal(t, "instance-A", *first.Submission.AssessmentInstanceID)

	result, err := access.CanAccess(ctx, "student-1", "assessment-1", ts(t, "2024-03-05 11:00"))
	require.NoError(t, err)
	assert.NotEqual(t, models.AccessAllowed, result.Status)
	assert.Equal(t, "progress-1", result.ProgressID)

	_, err = svc.SubmitAssessment(ctx, "student-1", "assessment-1", answers(), ts(t, "2024-03-05 11:00"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrDuplicateSubmission.Code))
	assert.Len(t, store.all(), 1)
	assert.Len(t, submissions.items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCanAccessRecordWithoutInstanceSeesInstanceSubmission(t *testing.T) {
	fx := newAccessFixture(t, windowedProgress(t, "progress-2", "2024-03-05 07:00", "2024-03-05 18:00"))
	require.NoError(t, fx.submissions.Create(context.Background(), nil, &models.Submission{
		StudentID: "student-1", AssessmentID: "assessment-1", AssessmentInstanceID: ptrString("instance-A"), SubmittedAt: ts(t, "2024-03-04 09:30"),
	}))

	result, err := fx.access.CanAccess(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-05 11:00"))

	require.NoError(t, err)
	assert.Equal(t, models.AccessAlreadySubmitted, result.Status)
}

func TestCanAccessInstanceRecordIgnoresOtherInstances(t *testing.T) {
	record := windowedProgress(t, "progress-3", "2024-03-08 09:00", "2024-03-08 10:00")
	record.AssessmentInstanceID = ptrString("instance-C")
	fx := newAccessFixture(t, record)
	require.NoError(t, fx.submissions.Create(context.Background(), nil, &models.Submission{
		StudentID: "student-1", AssessmentID: "assessment-1", AssessmentInstanceID: ptrString("instance-A"), SubmittedAt: ts(t, "2024-03-04 09:30"),
	}))

	result, err := fx.access.CanAccess(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-08 09:30"))

	require.NoError(t, err)
	assert.Equal(t, models.AccessAllowed, result.Status)
}
