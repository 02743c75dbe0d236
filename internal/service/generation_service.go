package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/internal/models"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

type termSource interface {
	FindActive(ctx context.Context) (*models.Term, error)
	FindHoliday(ctx context.Context, date time.Time) (*models.PublicHoliday, error)
	WeekRange(term *models.Term, week int) (models.TermWeek, error)
}

type timetableSource interface {
	ListEntries(ctx context.Context, studentID, termID string) ([]models.TimetableEntry, error)
	ListEligibleStudents(ctx context.Context, termID string) ([]string, error)
}

type lessonTopicFinder interface {
	FindForWeek(ctx context.Context, subjectID, termID string, week int) (*models.LessonTopic, error)
}

type scheduledPeriodWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, period *models.ScheduledPeriod) error
	LinkSequence(ctx context.Context, exec sqlx.ExtContext, id string, previousID, nextID *string) error
	ArchiveWeek(ctx context.Context, exec sqlx.ExtContext, termID string, week int, at time.Time) (int64, error)
}

type progressWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, progress *models.Progress) error
	LinkPrevious(ctx context.Context, exec sqlx.ExtContext, id, previousID string) error
	ArchiveWeek(ctx context.Context, exec sqlx.ExtContext, termID string, week int, at time.Time) (int64, error)
}

type topicAssessmentReader interface {
	FindByTopic(ctx context.Context, topicID string) (*models.Assessment, error)
	QuestionIDs(ctx context.Context, assessmentID string) ([]string, error)
}

type instanceMinter interface {
	CreateInstances(ctx context.Context, exec sqlx.ExtContext, req ShuffleRequest) ([]models.AssessmentInstance, int, error)
}

// GenerationService builds every eligible student's calendar for one term week.
type GenerationService struct {
	terms       termSource
	timetable   timetableSource
	topics      lessonTopicFinder
	periods     scheduledPeriodWriter
	progress    progressWriter
	assessments topicAssessmentReader
	shuffler    instanceMinter
	tx          txProvider
	calc        *WindowCalculator
	events      eventPublisher
	metrics     *MetricsService
	logger      *zap.Logger
}

// GenerationDeps groups the collaborators of the weekly generation run.
type GenerationDeps struct {
	Terms       termSource
	Timetable   timetableSource
	Topics      lessonTopicFinder
	Periods     scheduledPeriodWriter
	Progress    progressWriter
	Assessments topicAssessmentReader
	Shuffler    instanceMinter
	Tx          txProvider
	Calculator  *WindowCalculator
	Events      eventPublisher
	Metrics     *MetricsService
	Logger      *zap.Logger
}

// NewGenerationService constructs the orchestrator.
func NewGenerationService(deps GenerationDeps) *GenerationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{
		terms:       deps.Terms,
		timetable:   deps.Timetable,
		topics:      deps.Topics,
		periods:     deps.Periods,
		progress:    deps.Progress,
		assessments: deps.Assessments,
		shuffler:    deps.Shuffler,
		tx:          deps.Tx,
		calc:        deps.Calculator,
		events:      deps.Events,
		metrics:     deps.Metrics,
		logger:      logger,
	}
}

// GenerateWeeklySchedules runs the full pipeline for a term week. Per student failures are
// recorded on the result; only term validation and archiving abort the run.
func (s *GenerationService) GenerateWeeklySchedules(ctx context.Context, week int, now time.Time) (*models.GenerationResult, error) {
	result := &models.GenerationResult{
		WeekNumber:             week,
		StartedAt:              now,
		MissingTopicsBySubject: map[string][]string{},
		FailedStudents:         map[string]string{},
	}
	started := time.Now()
	err := s.run(ctx, week, now, result)
	elapsed := time.Since(started)

	result.FinishedAt = now.Add(elapsed)
	result.DurationSeconds = elapsed.Seconds()
	result.Success = err == nil
	s.metrics.ObserveGeneration(result.Success, elapsed)

	if err != nil {
		result.ErrorMessage = err.Error()
		s.logger.Error("weekly generation failed", zap.Int("week", week), zap.Error(err))
		return result, err
	}

	s.logger.Info("weekly generation finished",
		zap.Int("week", week),
		zap.String("term_id", result.TermID),
		zap.Int("students", result.StudentsProcessed),
		zap.Int("schedules", result.SchedulesCreated),
		zap.Int("progress_records", result.ProgressRecordsCreated),
		zap.Int("instances", result.AssessmentInstancesCreated),
		zap.Int("failed_students", len(result.FailedStudents)))
	if s.events != nil {
		s.events.Publish(ctx, models.Event{
			Type:       models.EventWeeklyScheduleReady,
			ResourceID: result.TermID,
			Data: map[string]interface{}{
				"week_number":       week,
				"schedules_created": result.SchedulesCreated,
				"failed_students":   len(result.FailedStudents),
			},
			OccurredAt: now,
		})
	}
	return result, nil
}

func (s *GenerationService) run(ctx context.Context, week int, now time.Time, result *models.GenerationResult) error {
	term, err := s.terms.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "no active term")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active term")
	}
	result.TermID = term.ID
	result.TermName = term.Name
	if week < 1 || week > term.WeekCount {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("week must be between 1 and %d", term.WeekCount))
	}
	termWeek, err := s.terms.WeekRange(term, week)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term week")
	}
	result.WeekStart = &termWeek.StartDate
	result.WeekEnd = &termWeek.EndDate

	if week > 1 {
		if err := s.archiveWeek(ctx, term.ID, week-1, now, result); err != nil {
			return err
		}
	}

	saturday := termWeek.StartDate.AddDate(0, 0, 5)
	holiday, err := s.terms.FindHoliday(ctx, saturday)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check saturday holiday")
	}
	if holiday != nil {
		result.SaturdayHoliday = true
		result.HolidayName = holiday.Name
		s.logger.Info("saturday is a public holiday, skipping saturday periods",
			zap.Time("date", saturday), zap.String("holiday", holiday.Name))
	}

	students, err := s.timetable.ListEligibleStudents(ctx, term.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	for _, studentID := range students {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		gen, err := s.generateForStudent(ctx, term, termWeek, studentID, result.SaturdayHoliday, now)
		if err != nil {
			result.FailedStudents[studentID] = err.Error()
			s.logger.Warn("schedule generation failed for student", zap.String("student_id", studentID), zap.Error(err))
			continue
		}
		result.StudentsProcessed++
		result.SchedulesCreated += len(gen.Periods)
		result.ProgressRecordsCreated += gen.ProgressRecordsCreated
		result.AssessmentInstancesCreated += gen.AssessmentInstancesCreated
		for subjectID, periodIDs := range gen.MissingTopics {
			result.MissingTopicsBySubject[subjectID] = append(result.MissingTopicsBySubject[subjectID], periodIDs...)
		}
	}
	return nil
}

func (s *GenerationService) archiveWeek(ctx context.Context, termID string, week int, now time.Time, result *models.GenerationResult) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	progressArchived, err := s.progress.ArchiveWeek(ctx, tx, termID, week, now)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive progress")
	}
	periodsArchived, err := s.periods.ArchiveWeek(ctx, tx, termID, week, now)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive scheduled periods")
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit archive")
	}
	result.SchedulesArchived = int(periodsArchived)
	result.ProgressRecordsArchived = int(progressArchived)
	s.logger.Info("previous week archived",
		zap.Int("week", week),
		zap.Int64("periods", periodsArchived),
		zap.Int64("progress_records", progressArchived))
	return nil
}

func (s *GenerationService) generateForStudent(ctx context.Context, term *models.Term, week models.TermWeek, studentID string, saturdayHoliday bool, now time.Time) (gen *models.StudentGeneration, err error) {
	entries, err := s.timetable.ListEntries(ctx, studentID, term.ID)
	if err != nil {
		return nil, fmt.Errorf("list timetable: %w", err)
	}
	periods, err := s.buildPeriods(ctx, term, week, studentID, entries, saturdayHoliday)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	gen, err = s.assembleTopics(ctx, tx, week, studentID, periods, now)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit student schedule: %w", err)
	}
	return gen, nil
}

// buildPeriods expands timetable entries into dated periods for Monday..Saturday with
// their windows and topics resolved. Nothing is persisted here.
func (s *GenerationService) buildPeriods(ctx context.Context, term *models.Term, week models.TermWeek, studentID string, entries []models.TimetableEntry, saturdayHoliday bool) ([]models.ScheduledPeriod, error) {
	topics := map[string]*models.LessonTopic{}
	periods := make([]models.ScheduledPeriod, 0, len(entries))
	for _, entry := range entries {
		if entry.DayOfWeek == time.Sunday {
			continue
		}
		if entry.DayOfWeek == time.Saturday && saturdayHoliday {
			continue
		}
		date := week.StartDate.AddDate(0, 0, (int(entry.DayOfWeek)+6)%7)
		if !s.calc.IsAllowedSlot(date, entry.StartTime, entry.EndTime) {
			s.logger.Debug("timetable entry outside allowed hours",
				zap.String("student_id", studentID),
				zap.String("entry_id", entry.ID),
				zap.String("day", entry.DayOfWeek.String()),
				zap.String("start", entry.StartTime),
				zap.String("end", entry.EndTime))
			continue
		}
		window, err := s.calc.Window(date, entry.StartTime, entry.EndTime)
		if err != nil {
			return nil, fmt.Errorf("compute window for entry %s: %w", entry.ID, err)
		}

		topic, seen := topics[entry.SubjectID]
		if !seen {
			topic, err = s.topics.FindForWeek(ctx, entry.SubjectID, term.ID, week.WeekNumber)
			if err != nil {
				return nil, fmt.Errorf("resolve topic for subject %s: %w", entry.SubjectID, err)
			}
			topics[entry.SubjectID] = topic
		}

		start, end := window.Start, window.End
		period := models.ScheduledPeriod{
			StudentID:             studentID,
			TermID:                term.ID,
			WeekNumber:            week.WeekNumber,
			ScheduledDate:         date,
			DayOfWeek:             entry.DayOfWeek,
			PeriodNumber:          entry.PeriodNumber,
			StartTime:             entry.StartTime,
			EndTime:               entry.EndTime,
			SubjectID:             entry.SubjectID,
			PeriodSequence:        1,
			TotalPeriodsForTopic:  1,
			AssessmentWindowStart: &start,
			AssessmentWindowEnd:   &end,
		}
		if topic != nil {
			topicID := topic.ID
			period.LessonTopicID = &topicID
		}
		periods = append(periods, period)
	}

	sort.SliceStable(periods, func(i, j int) bool {
		if !periods[i].ScheduledDate.Equal(periods[j].ScheduledDate) {
			return periods[i].ScheduledDate.Before(periods[j].ScheduledDate)
		}
		return periods[i].AssessmentWindowStart.Before(*periods[j].AssessmentWindowStart)
	})
	return periods, nil
}

// assembleTopics groups the periods by topic, mints instances for multi-period topics and
// persists periods, progress records and their sequence links inside tx. Periods without a
// topic still get a progress record, already marked TOPIC_NOT_ASSIGNED.
func (s *GenerationService) assembleTopics(ctx context.Context, tx sqlx.ExtContext, week models.TermWeek, studentID string, periods []models.ScheduledPeriod, now time.Time) (*models.StudentGeneration, error) {
	gen := &models.StudentGeneration{StudentID: studentID, MissingTopics: map[string][]string{}}

	order := make([]string, 0)
	groups := map[string][]int{}
	for i := range periods {
		key := periods[i].TopicKey()
		if key == "" {
			periods[i].PeriodSequence, periods[i].TotalPeriodsForTopic = 1, 1
			if err := s.periods.Create(ctx, tx, &periods[i]); err != nil {
				return nil, err
			}
			if err := s.progress.Create(ctx, tx, s.unassignedProgress(&periods[i], now)); err != nil {
				return nil, err
			}
			gen.ProgressRecordsCreated++
			gen.MissingTopics[periods[i].SubjectID] = append(gen.MissingTopics[periods[i].SubjectID], periods[i].ID)
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	for _, topicID := range order {
		indexes := groups[topicID]
		assessment, err := s.assessments.FindByTopic(ctx, topicID)
		if err != nil {
			return nil, fmt.Errorf("find assessment for topic %s: %w", topicID, err)
		}

		var instances []models.AssessmentInstance
		if len(indexes) > 1 {
			instances, err = s.mintInstances(ctx, tx, assessment, topicID, len(indexes), week.WeekNumber, gen)
			if err != nil {
				return nil, err
			}
		}

		var previousProgress *string
		for seq, idx := range indexes {
			period := &periods[idx]
			period.PeriodSequence = seq + 1
			period.TotalPeriodsForTopic = len(indexes)
			if seq < len(instances) {
				instanceID := instances[seq].ID
				period.AssessmentInstanceID = &instanceID
			}
			if err := s.periods.Create(ctx, tx, period); err != nil {
				return nil, err
			}

			progress := s.progressFor(period, assessment)
			if err := s.progress.Create(ctx, tx, progress); err != nil {
				return nil, err
			}
			gen.ProgressRecordsCreated++
			if previousProgress != nil {
				if err := s.progress.LinkPrevious(ctx, tx, progress.ID, *previousProgress); err != nil {
					return nil, err
				}
				progress.PreviousProgressID = previousProgress
			}
			progressID := progress.ID
			previousProgress = &progressID
		}
		if len(indexes) > 1 {
			if err := s.linkPeriods(ctx, tx, periods, indexes); err != nil {
				return nil, err
			}
		}
	}

	gen.Periods = periods
	return gen, nil
}

func (s *GenerationService) linkPeriods(ctx context.Context, tx sqlx.ExtContext, periods []models.ScheduledPeriod, indexes []int) error {
	for seq, idx := range indexes {
		period := &periods[idx]
		if seq > 0 {
			prev := periods[indexes[seq-1]].ID
			period.PreviousPeriodID = &prev
		}
		if seq < len(indexes)-1 {
			next := periods[indexes[seq+1]].ID
			period.NextPeriodID = &next
		}
		if err := s.periods.LinkSequence(ctx, tx, period.ID, period.PreviousPeriodID, period.NextPeriodID); err != nil {
			return err
		}
	}
	return nil
}

func (s *GenerationService) mintInstances(ctx context.Context, tx sqlx.ExtContext, assessment *models.Assessment, topicID string, count, termWeek int, gen *models.StudentGeneration) ([]models.AssessmentInstance, error) {
	if assessment == nil {
		s.logger.Warn("multi-period topic has no base assessment, skipping instances",
			zap.String("student_id", gen.StudentID), zap.String("lesson_topic_id", topicID), zap.Int("periods", count))
		return nil, nil
	}
	questions, err := s.assessments.QuestionIDs(ctx, assessment.ID)
	if err != nil {
		return nil, fmt.Errorf("load questions for %s: %w", assessment.ID, err)
	}
	if len(questions) == 0 {
		s.logger.Warn("base assessment has no questions, skipping instances",
			zap.String("assessment_id", assessment.ID), zap.String("lesson_topic_id", topicID))
		return nil, nil
	}
	instances, created, err := s.shuffler.CreateInstances(ctx, tx, ShuffleRequest{
		BaseAssessmentID: assessment.ID,
		LessonTopicID:    topicID,
		Questions:        questions,
		Periods:          count,
		TermWeek:         termWeek,
	})
	if err != nil {
		return nil, err
	}
	gen.AssessmentInstancesCreated += created
	return instances, nil
}

// unassignedProgress records a period nobody can be assessed on. It is never accessible.
func (s *GenerationService) unassignedProgress(period *models.ScheduledPeriod, now time.Time) *models.Progress {
	periodID := period.ID
	reason := models.IncompleteTopicNotAssigned
	marked := now
	return &models.Progress{
		StudentID:              period.StudentID,
		SubjectID:              period.SubjectID,
		ScheduledPeriodID:      &periodID,
		ScheduledDate:          period.ScheduledDate,
		PeriodNumber:           period.PeriodNumber,
		PeriodSequence:         1,
		TotalPeriodsInSequence: 1,
		AssessmentWindowStart:  period.AssessmentWindowStart,
		AssessmentWindowEnd:    period.AssessmentWindowEnd,
		IncompleteReason:       &reason,
		IncompleteMarkedAt:     &marked,
	}
}

func (s *GenerationService) progressFor(period *models.ScheduledPeriod, assessment *models.Assessment) *models.Progress {
	periodID := period.ID
	start, end := *period.AssessmentWindowStart, *period.AssessmentWindowEnd
	grace := s.calc.GraceEnd(end)
	progress := &models.Progress{
		StudentID:                period.StudentID,
		SubjectID:                period.SubjectID,
		LessonTopicID:            period.LessonTopicID,
		AssessmentInstanceID:     period.AssessmentInstanceID,
		ScheduledPeriodID:        &periodID,
		ScheduledDate:            period.ScheduledDate,
		PeriodNumber:             period.PeriodNumber,
		PeriodSequence:           period.PeriodSequence,
		TotalPeriodsInSequence:   period.TotalPeriodsForTopic,
		AssessmentWindowStart:    &start,
		AssessmentWindowEnd:      &end,
		GracePeriodEnd:           &grace,
		AssessmentAccessible:     true,
		RequiresCustomAssessment: assessment == nil,
	}
	if assessment != nil {
		assessmentID := assessment.ID
		progress.AssessmentID = &assessmentID
	}
	return progress
}
