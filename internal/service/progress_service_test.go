package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/assessment-window-api/internal/models"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

type periodStub struct {
	periods map[string]models.ScheduledPeriod
}

func (s *periodStub) FindByID(ctx context.Context, id string) (*models.ScheduledPeriod, error) {
	p, ok := s.periods[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &p, nil
}

func TestSelectProgressPreference(t *testing.T) {
	now := ts(t, "2024-03-04 09:30")
	ended := models.Progress{ID: "ended", AssessmentWindowStart: ptrTime(ts(t, "2024-03-01 09:00")), AssessmentWindowEnd: ptrTime(ts(t, "2024-03-01 10:00"))}
	later := models.Progress{ID: "later", AssessmentWindowStart: ptrTime(ts(t, "2024-03-08 09:00")), AssessmentWindowEnd: ptrTime(ts(t, "2024-03-08 10:00"))}
	sooner := models.Progress{ID: "sooner", AssessmentWindowStart: ptrTime(ts(t, "2024-03-06 09:00")), AssessmentWindowEnd: ptrTime(ts(t, "2024-03-06 10:00"))}
	open := models.Progress{ID: "open", AssessmentWindowStart: ptrTime(ts(t, "2024-03-04 09:00")), AssessmentWindowEnd: ptrTime(ts(t, "2024-03-04 10:00"))}
	bare := models.Progress{ID: "bare"}

	assert.Equal(t, "open", selectProgress([]models.Progress{ended, later, open, sooner}, now).ID)
	assert.Equal(t, "sooner", selectProgress([]models.Progress{ended, later, sooner, bare}, now).ID)
	assert.Equal(t, "bare", selectProgress([]models.Progress{ended, bare}, now).ID)
	assert.Equal(t, "ended", selectProgress([]models.Progress{ended}, now).ID)
	assert.Nil(t, selectProgress(nil, now))
}

func TestEnsureProgressRepairsWindowFromScheduledPeriod(t *testing.T) {
	calc := newTestCalculator(t)
	store := newProgressMem(models.Progress{
		ID:                "progress-1",
		StudentID:         "student-1",
		AssessmentID:      ptrString("assessment-1"),
		ScheduledPeriodID: ptrString("period-1"),
		ScheduledDate:     ts(t, "2024-03-04 00:00"),
	})
	periods := &periodStub{periods: map[string]models.ScheduledPeriod{
		"period-1": {ID: "period-1", ScheduledDate: ts(t, "2024-03-04 00:00"), StartTime: "09:00", EndTime: "10:00"},
	}}
	core, logs := observer.New(zap.InfoLevel)
	svc := NewProgressService(store, periods, &assessmentStub{}, calc, zap.New(core))

	progress, err := svc.EnsureProgress(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-04 08:00"))
	require.NoError(t, err)

	assert.Equal(t, ts(t, "2024-03-04 09:00"), *progress.AssessmentWindowStart)
	assert.Equal(t, ts(t, "2024-03-04 10:00"), *progress.AssessmentWindowEnd)
	assert.Equal(t, ts(t, "2024-03-04 10:30"), *progress.GracePeriodEnd)
	assert.True(t, progress.AssessmentAccessible)

	stored := store.get("progress-1")
	assert.Equal(t, 2, stored.Version)
	assert.True(t, stored.WindowConfigured())
	assert.Equal(t, 1, logs.FilterMessage("progress repaired").Len())
}

func TestEnsureProgressFallsBackToFullDay(t *testing.T) {
	calc := newTestCalculator(t)
	store := newProgressMem(models.Progress{
		ID:            "progress-1",
		StudentID:     "student-1",
		AssessmentID:  ptrString("assessment-1"),
		ScheduledDate: ts(t, "2024-03-04 00:00"),
	})
	svc := NewProgressService(store, nil, &assessmentStub{}, calc, nil)

	progress, err := svc.EnsureProgress(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-04 08:00"))
	require.NoError(t, err)

	assert.Equal(t, ts(t, "2024-03-04 00:00"), *progress.AssessmentWindowStart)
	assert.Equal(t, "23:59:59", progress.AssessmentWindowEnd.Format("15:04:05"))
}

func TestEnsureProgressLinksTopicRecordForToday(t *testing.T) {
	calc := newTestCalculator(t)
	store := newProgressMem(models.Progress{
		ID:                    "progress-topic",
		StudentID:             "student-1",
		LessonTopicID:         ptrString("topic-1"),
		ScheduledDate:         ts(t, "2024-03-04 00:00"),
		AssessmentWindowStart: ptrTime(ts(t, "2024-03-04 11:00")),
		AssessmentWindowEnd:   ptrTime(ts(t, "2024-03-04 12:00")),
		GracePeriodEnd:        ptrTime(ts(t, "2024-03-04 12:30")),
		AssessmentAccessible:  true,
	})
	assessments := &assessmentStub{assessments: map[string]models.Assessment{
		"assessment-1": {ID: "assessment-1", LessonTopicID: ptrString("topic-1"), SubjectID: "math"},
	}}
	svc := NewProgressService(store, nil, assessments, calc, nil)

	progress, err := svc.EnsureProgress(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-04 10:00"))
	require.NoError(t, err)

	assert.Equal(t, "progress-topic", progress.ID)
	require.NotNil(t, store.get("progress-topic").AssessmentID)
	assert.Equal(t, "assessment-1", *store.get("progress-topic").AssessmentID)
}

func TestEnsureProgressAutoCreatesFullDayRecord(t *testing.T) {
	calc := newTestCalculator(t)
	store := newProgressMem()
	assessments := &assessmentStub{assessments: map[string]models.Assessment{
		"assessment-1": {ID: "assessment-1", SubjectID: "math"},
	}}
	svc := NewProgressService(store, nil, assessments, calc, nil)

	progress, err := svc.EnsureProgress(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-04 10:00"))
	require.NoError(t, err)

	assert.NotEmpty(t, progress.ID)
	assert.Equal(t, "math", progress.SubjectID)
	assert.True(t, progress.AssessmentAccessible)
	assert.Equal(t, ts(t, "2024-03-04 00:00"), *progress.AssessmentWindowStart)
	assert.Len(t, store.all(), 1)
}

func TestEnsureProgressUnknownAssessment(t *testing.T) {
	svc := NewProgressService(newProgressMem(), nil, &assessmentStub{}, newTestCalculator(t), nil)

	_, err := svc.EnsureProgress(context.Background(), "student-1", "missing", ts(t, "2024-03-04 10:00"))

	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestEnsureProgressKeepsRepairWhenPersistFails(t *testing.T) {
	store := newProgressMem(models.Progress{
		ID:            "progress-1",
		StudentID:     "student-1",
		AssessmentID:  ptrString("assessment-1"),
		ScheduledDate: ts(t, "2024-03-04 00:00"),
	})
	store.updateErr = errors.New("db down")
	core, logs := observer.New(zap.WarnLevel)
	svc := NewProgressService(store, nil, &assessmentStub{}, newTestCalculator(t), zap.New(core))

	progress, err := svc.EnsureProgress(context.Background(), "student-1", "assessment-1", ts(t, "2024-03-04 08:00"))

	require.NoError(t, err)
	assert.True(t, progress.WindowConfigured())
	stored := store.get("progress-1")
	assert.False(t, stored.WindowConfigured())
	assert.Equal(t, 1, logs.FilterMessage("failed to persist progress repair").Len())
}

func TestGeneratedWindowsAreOrdered(t *testing.T) {
	calc := newTestCalculator(t)
	for _, slot := range [][2]string{{"07:00", "07:45"}, {"09:00", "10:00"}, {"13:30", "15:00"}} {
		window, err := calc.Window(ts(t, "2024-03-05 00:00"), slot[0], slot[1])
		require.NoError(t, err)
		assert.False(t, window.End.Before(window.Start))
		assert.False(t, window.GraceEnd.Before(window.End))
	}
}
