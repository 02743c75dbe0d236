package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-window-api/internal/models"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func ptrString(s string) *string {
	return &s
}

// ts parses "2006-01-02 15:04" as UTC.
func ts(t *testing.T, raw string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04", raw)
	require.NoError(t, err)
	return parsed
}

// progressMem is an in-memory progress store enforcing the optimistic version check.
type progressMem struct {
	mu        sync.Mutex
	records   map[string]models.Progress
	order     []string
	seq       int
	updateErr error
	archived  int64
}

func newProgressMem(records ...models.Progress) *progressMem {
	m := &progressMem{records: map[string]models.Progress{}}
	for _, r := range records {
		if r.Version == 0 {
			r.Version = 1
		}
		m.records[r.ID] = r
		m.order = append(m.order, r.ID)
	}
	return m
}

func (m *progressMem) get(id string) models.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

func (m *progressMem) all() []models.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Progress, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id])
	}
	return out
}

func (m *progressMem) FindByID(ctx context.Context, id string) (*models.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &record, nil
}

func (m *progressMem) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Progress, error) {
	return m.FindByID(ctx, id)
}

func (m *progressMem) ListOpenForAssessment(ctx context.Context, studentID, assessmentID string) ([]models.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Progress
	for _, id := range m.order {
		r := m.records[id]
		if r.StudentID == studentID && r.AssessmentID != nil && *r.AssessmentID == assessmentID && !r.Completed && !r.Archived {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *progressMem) FindLatestCompleted(ctx context.Context, studentID, assessmentID string) (*models.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Progress
	for _, id := range m.order {
		r := m.records[id]
		if r.StudentID != studentID || r.AssessmentID == nil || *r.AssessmentID != assessmentID || !r.Completed {
			continue
		}
		if latest == nil || (r.CompletedAt != nil && (latest.CompletedAt == nil || r.CompletedAt.After(*latest.CompletedAt))) {
			found := r
			latest = &found
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	return latest, nil
}

func (m *progressMem) FindByStudentTopicDate(ctx context.Context, studentID, topicID string, date time.Time) (*models.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		r := m.records[id]
		if r.StudentID == studentID && r.LessonTopicID != nil && *r.LessonTopicID == topicID && r.ScheduledDate.Equal(date) {
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *progressMem) FindBySubmission(ctx context.Context, submissionID string) (*models.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		r := m.records[id]
		if r.SubmissionID != nil && *r.SubmissionID == submissionID {
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *progressMem) FindByScheduledPeriod(ctx context.Context, periodID string) (*models.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		r := m.records[id]
		if r.ScheduledPeriodID != nil && *r.ScheduledPeriodID == periodID {
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *progressMem) Create(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if progress.ID == "" {
		m.seq++
		progress.ID = fmt.Sprintf("progress-%d", m.seq)
	}
	progress.Version = 1
	m.records[progress.ID] = *progress
	m.order = append(m.order, progress.ID)
	return nil
}

func (m *progressMem) UpdateWindow(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.records[progress.ID]
	if !ok || stored.Version != progress.Version {
		return appErrors.ErrStaleProgress
	}
	progress.Version++
	stored.AssessmentID = progress.AssessmentID
	stored.AssessmentWindowStart = progress.AssessmentWindowStart
	stored.AssessmentWindowEnd = progress.AssessmentWindowEnd
	stored.GracePeriodEnd = progress.GracePeriodEnd
	stored.AssessmentAccessible = progress.AssessmentAccessible
	stored.IncompleteReason = progress.IncompleteReason
	stored.Version = progress.Version
	m.records[progress.ID] = stored
	return nil
}

func (m *progressMem) MarkCompleted(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress, submissionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[progress.ID]
	if !ok || stored.Version != progress.Version {
		return appErrors.ErrStaleProgress
	}
	progress.Version++
	progress.Completed = true
	progress.CompletedAt = &at
	progress.SubmissionID = &submissionID
	stored.Completed = true
	stored.CompletedAt = &at
	stored.SubmissionID = &submissionID
	stored.Version = progress.Version
	m.records[progress.ID] = stored
	return nil
}

func (m *progressMem) ListOverdueUnmarked(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]models.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]string(nil), m.order...)
	sort.Strings(ids)
	var out []models.Progress
	for _, id := range ids {
		r := m.records[id]
		if id <= afterID || r.Completed || r.IncompleteReason != nil || r.AssessmentWindowEnd == nil {
			continue
		}
		deadline := *r.AssessmentWindowEnd
		if r.GracePeriodEnd != nil {
			deadline = *r.GracePeriodEnd
		}
		if !deadline.Before(cutoff) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *progressMem) MarkIncomplete(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress, reason models.IncompleteReason, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[progress.ID]
	if !ok || stored.Version != progress.Version || stored.Completed {
		return appErrors.ErrStaleProgress
	}
	progress.Version++
	progress.IncompleteReason = &reason
	progress.IncompleteMarkedAt = &at
	stored.IncompleteReason = &reason
	stored.IncompleteMarkedAt = &at
	stored.Version = progress.Version
	m.records[progress.ID] = stored
	return nil
}

func (m *progressMem) LinkPrevious(ctx context.Context, exec sqlx.ExtContext, id, previousID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[id]
	if !ok {
		return sql.ErrNoRows
	}
	stored.PreviousProgressID = &previousID
	stored.Version++
	m.records[id] = stored
	return nil
}

func (m *progressMem) ArchiveWeek(ctx context.Context, exec sqlx.ExtContext, termID string, week int, at time.Time) (int64, error) {
	return m.archived, nil
}

// rescheduleMem stores reschedules and enforces one active reschedule per progress record.
type rescheduleMem struct {
	mu    sync.Mutex
	items map[string]models.Reschedule
	seq   int
}

func newRescheduleMem() *rescheduleMem {
	return &rescheduleMem{items: map[string]models.Reschedule{}}
}

func (m *rescheduleMem) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Reschedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (m *rescheduleMem) FindActiveByProgress(ctx context.Context, exec sqlx.ExtContext, progressID string) (*models.Reschedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.ProgressID == progressID && item.Active {
			return &item, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *rescheduleMem) FindActiveForProgress(ctx context.Context, progressID string) (*models.Reschedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.ProgressID == progressID && item.Active {
			return &item, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *rescheduleMem) Create(ctx context.Context, exec sqlx.ExtContext, reschedule *models.Reschedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	reschedule.ID = fmt.Sprintf("reschedule-%d", m.seq)
	reschedule.Active = true
	m.items[reschedule.ID] = *reschedule
	return nil
}

func (m *rescheduleMem) Deactivate(ctx context.Context, exec sqlx.ExtContext, id, cancelledBy, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || !item.Active {
		return sql.ErrNoRows
	}
	item.Active = false
	item.CancelledAt = &at
	item.CancelledBy = &cancelledBy
	item.CancellationReason = &reason
	m.items[id] = item
	return nil
}

func (m *rescheduleMem) ListByTeacher(ctx context.Context, teacherID, studentID string) ([]models.Reschedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reschedule
	for _, item := range m.items {
		if item.TeacherID == teacherID && (studentID == "" || item.StudentID == studentID) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *rescheduleMem) ListByStudent(ctx context.Context, studentID string) ([]models.Reschedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reschedule
	for _, item := range m.items {
		if item.StudentID == studentID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// submissionMem stores submissions; Nullify only touches rows that are not nullified yet.
type submissionMem struct {
	mu        sync.Mutex
	items     map[string]models.Submission
	order     []string
	seq       int
	createErr error
}

func newSubmissionMem(items ...models.Submission) *submissionMem {
	m := &submissionMem{items: map[string]models.Submission{}}
	for _, item := range items {
		m.items[item.ID] = item
		m.order = append(m.order, item.ID)
	}
	sort.Strings(m.order)
	return m
}

func (m *submissionMem) get(id string) models.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

// Exists compares instances the way the SQL does: COALESCE(instance, '') equality.
func (m *submissionMem) Exists(ctx context.Context, studentID, assessmentID string, instanceID *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.StudentID == studentID && item.AssessmentID == assessmentID && coalesce(item.AssessmentInstanceID) == coalesce(instanceID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *submissionMem) ExistsForAssessment(ctx context.Context, studentID, assessmentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.StudentID == studentID && item.AssessmentID == assessmentID {
			return true, nil
		}
	}
	return false, nil
}

func coalesce(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (m *submissionMem) Create(ctx context.Context, exec sqlx.ExtContext, submission *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.seq++
	submission.ID = fmt.Sprintf("submission-%03d", m.seq)
	m.items[submission.ID] = *submission
	m.order = append(m.order, submission.ID)
	sort.Strings(m.order)
	return nil
}

func (m *submissionMem) ListPendingValidation(ctx context.Context, afterID string, limit int) ([]models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Submission
	for _, id := range m.order {
		item := m.items[id]
		if id <= afterID || item.Graded || item.NullifiedAt != nil {
			continue
		}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *submissionMem) Nullify(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.NullifiedAt != nil {
		return false, nil
	}
	original := item.SubmittedAt
	item.SubmittedBeforeWindow = true
	item.OriginalSubmissionTime = &original
	item.NullifiedAt = &at
	item.NullifiedReason = &reason
	item.Score, item.Percentage = 0, 0
	item.Graded, item.Passed = false, false
	m.items[id] = item
	return true, nil
}

func (m *submissionMem) CountNullified(ctx context.Context, studentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, item := range m.items {
		if item.StudentID == studentID && item.NullifiedAt != nil {
			count++
		}
	}
	return count, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *eventRecorder) Publish(ctx context.Context, event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type assessmentStub struct {
	assessments map[string]models.Assessment
	questions   map[string][]string
}

func (s *assessmentStub) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	a, ok := s.assessments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (s *assessmentStub) FindByTopic(ctx context.Context, topicID string) (*models.Assessment, error) {
	for _, a := range s.assessments {
		if a.LessonTopicID != nil && *a.LessonTopicID == topicID {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

func (s *assessmentStub) QuestionIDs(ctx context.Context, assessmentID string) ([]string, error) {
	return s.questions[assessmentID], nil
}

// instanceMem stores assessment instances keyed by base and suffix.
type instanceMem struct {
	mu    sync.Mutex
	items []models.AssessmentInstance
	seq   int
}

func (m *instanceMem) FindByBaseAndSuffix(ctx context.Context, exec sqlx.ExtContext, baseID, suffix string) (*models.AssessmentInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.BaseAssessmentID == baseID && item.Suffix == suffix {
			found := item
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *instanceMem) FindByBaseAndSequence(ctx context.Context, baseID string, sequence int) (*models.AssessmentInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.BaseAssessmentID == baseID && item.PeriodSequence == sequence {
			found := item
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *instanceMem) ListByBase(ctx context.Context, baseID string) ([]models.AssessmentInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AssessmentInstance
	for _, item := range m.items {
		if item.BaseAssessmentID == baseID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *instanceMem) Create(ctx context.Context, exec sqlx.ExtContext, instance *models.AssessmentInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	instance.ID = fmt.Sprintf("instance-%d", m.seq)
	m.items = append(m.items, *instance)
	return nil
}

func (m *instanceMem) DeleteByBase(ctx context.Context, baseID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.items[:0]
	var deleted int64
	for _, item := range m.items {
		if item.BaseAssessmentID == baseID {
			deleted++
			continue
		}
		kept = append(kept, item)
	}
	m.items = kept
	return deleted, nil
}
