package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/internal/dto"
	"github.com/noah-isme/assessment-window-api/internal/models"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

const mostAffectedLimit = 10

type incompleteSource interface {
	ListForReport(ctx context.Context, filter models.ProgressFilter) ([]models.IncompleteRecord, error)
}

// IncompleteService aggregates progress records into incomplete statistics and reports.
type IncompleteService struct {
	source    incompleteSource
	cache     *CacheService
	calc      *WindowCalculator
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewIncompleteService constructs the tracker. A nil cache disables caching.
func NewIncompleteService(source incompleteSource, cache *CacheService, calc *WindowCalculator, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *IncompleteService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IncompleteService{source: source, cache: cache, calc: calc, validator: validate, logger: logger, cacheTTL: cacheTTL}
}

// GetStatistics aggregates the scope over the date range, served from cache when warm.
func (s *IncompleteService) GetStatistics(ctx context.Context, query dto.IncompleteQuery, now time.Time) (*models.IncompleteStatistics, error) {
	if err := s.validate(query); err != nil {
		return nil, err
	}
	key := s.cacheKey(query, now)
	var cached models.IncompleteStatistics
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	records, err := s.load(ctx, query)
	if err != nil {
		return nil, err
	}
	stats := s.summarize(query, records, now)
	if err := s.cache.Set(ctx, key, stats, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache incomplete statistics", zap.String("key", key), zap.Error(err))
	}
	return &stats, nil
}

// GetReport returns the statistics plus the incomplete records and ranked breakdowns.
func (s *IncompleteService) GetReport(ctx context.Context, query dto.IncompleteQuery, now time.Time) (*models.IncompleteReport, error) {
	if err := s.validate(query); err != nil {
		return nil, err
	}
	records, err := s.load(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.buildReport(query, records, now), nil
}

// Invalidate drops cached statistics after progress changes.
func (s *IncompleteService) Invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, CacheKey("incomplete", "*")); err != nil {
		s.logger.Warn("failed to invalidate incomplete cache", zap.Error(err))
	}
}

// ProgressEventInvalidator forwards domain events and drops cached incomplete statistics
// whenever an event means a progress record changed.
type ProgressEventInvalidator struct {
	next  eventPublisher
	stats statisticsInvalidator
}

// NewProgressEventInvalidator wraps next; next may be nil.
func NewProgressEventInvalidator(next eventPublisher, stats statisticsInvalidator) *ProgressEventInvalidator {
	return &ProgressEventInvalidator{next: next, stats: stats}
}

// Publish invalidates on submission and reschedule events, then forwards the event.
func (p *ProgressEventInvalidator) Publish(ctx context.Context, event models.Event) {
	switch event.Type {
	case models.EventSubmissionReceived, models.EventSubmissionNullified, models.EventRescheduled, models.EventRescheduleCancelled:
		p.stats.Invalidate(ctx)
	}
	if p.next != nil {
		p.next.Publish(ctx, event)
	}
}

// UrgencyFor buckets days overdue: 0 low, 1-3 medium, 4-7 high, above 7 critical.
func UrgencyFor(daysOverdue int) models.Urgency {
	switch {
	case daysOverdue <= 0:
		return models.UrgencyLow
	case daysOverdue <= 3:
		return models.UrgencyMedium
	case daysOverdue <= 7:
		return models.UrgencyHigh
	default:
		return models.UrgencyCritical
	}
}

func (s *IncompleteService) validate(query dto.IncompleteQuery) error {
	if err := s.validator.Struct(query); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid incomplete query")
	}
	return nil
}

func (s *IncompleteService) load(ctx context.Context, query dto.IncompleteQuery) ([]models.IncompleteRecord, error) {
	filter := models.ProgressFilter{From: query.From, To: query.To}
	switch models.IncompleteScope(query.Scope) {
	case models.ScopeStudent:
		filter.StudentID = query.ID
	case models.ScopeSubject:
		filter.SubjectID = query.ID
	}
	records, err := s.source.ListForReport(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress records")
	}
	return records, nil
}

// cacheKey includes the evaluation day because urgency buckets move with it.
func (s *IncompleteService) cacheKey(query dto.IncompleteQuery, now time.Time) string {
	today := now.UTC()
	if s.calc != nil {
		today = s.calc.DateOf(now)
	}
	return CacheKey("incomplete", "stats", query.Scope, query.ID,
		query.From.Format("20060102"), query.To.Format("20060102"), today.Format("20060102"))
}

func (s *IncompleteService) daysOverdue(record models.IncompleteRecord, now time.Time) int {
	today := now.UTC()
	if s.calc != nil {
		today = s.calc.DateOf(now)
	}
	y, m, d := record.ScheduledDate.Date()
	scheduled := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	days := int(today.Sub(scheduled).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func isIncomplete(record models.IncompleteRecord) bool {
	return !record.Completed && record.IncompleteReason != nil
}

func (s *IncompleteService) summarize(query dto.IncompleteQuery, records []models.IncompleteRecord, now time.Time) models.IncompleteStatistics {
	stats := models.IncompleteStatistics{
		Scope:              models.IncompleteScope(query.Scope),
		ScopeID:            query.ID,
		From:               query.From,
		To:                 query.To,
		IncompleteByReason: map[string]int{},
		ByUrgency: map[models.Urgency]int{
			models.UrgencyLow:      0,
			models.UrgencyMedium:   0,
			models.UrgencyHigh:     0,
			models.UrgencyCritical: 0,
		},
		GeneratedAt: now,
	}
	subjects := map[string]struct{}{}
	students := map[string]struct{}{}

	for _, record := range records {
		stats.TotalLessons++
		if record.Completed {
			stats.TotalCompleted++
			continue
		}
		if !isIncomplete(record) {
			continue
		}
		stats.TotalIncomplete++
		reason := *record.IncompleteReason
		stats.IncompleteByReason[reason]++
		stats.ByUrgency[UrgencyFor(s.daysOverdue(record, now))]++
		if record.TotalPeriodsInSequence > 1 {
			stats.MultiPeriodIncomplete++
		} else {
			stats.SinglePeriodIncomplete++
		}
		switch models.IncompleteReason(reason) {
		case models.IncompleteMissedGracePeriod:
			stats.MissedDeadlines++
		case models.IncompleteNoSubmission:
			stats.NoSubmissions++
		case models.IncompleteTopicNotAssigned:
			stats.TopicNotAssigned++
		}
		subjects[record.SubjectID] = struct{}{}
		students[record.StudentID] = struct{}{}
	}

	stats.AffectedSubjects = len(subjects)
	stats.AffectedStudents = len(students)
	if stats.TotalLessons > 0 {
		stats.CompletionRate = percentage(stats.TotalCompleted, stats.TotalLessons)
		stats.IncompleteRate = percentage(stats.TotalIncomplete, stats.TotalLessons)
	}
	return stats
}

func (s *IncompleteService) buildReport(query dto.IncompleteQuery, records []models.IncompleteRecord, now time.Time) *models.IncompleteReport {
	report := &models.IncompleteReport{
		Statistics: s.summarize(query, records, now),
		Records:    make([]models.IncompleteRecord, 0),
		BySubject:  map[string]models.IncompleteBreakdown{},
		ByStudent:  map[string]models.IncompleteBreakdown{},
	}
	for _, record := range records {
		if !isIncomplete(record) {
			continue
		}
		record.DaysOverdue = s.daysOverdue(record, now)
		record.Urgency = UrgencyFor(record.DaysOverdue)
		report.Records = append(report.Records, record)

		reason := *record.IncompleteReason
		addBreakdown(report.BySubject, record.SubjectID, record.SubjectName, reason)
		addBreakdown(report.ByStudent, record.StudentID, record.StudentID, reason)
	}
	report.MostAffectedSubjects = rankBreakdowns(report.BySubject, mostAffectedLimit)
	report.MostAffectedStudents = rankBreakdowns(report.ByStudent, mostAffectedLimit)
	return report
}

func addBreakdown(target map[string]models.IncompleteBreakdown, key, label, reason string) {
	entry, ok := target[key]
	if !ok {
		entry = models.IncompleteBreakdown{Key: key, Label: label, ByReason: map[string]int{}}
	}
	entry.IncompleteCount++
	entry.ByReason[reason]++
	target[key] = entry
}

func rankBreakdowns(source map[string]models.IncompleteBreakdown, limit int) []models.IncompleteBreakdown {
	ranked := make([]models.IncompleteBreakdown, 0, len(source))
	for _, entry := range source {
		ranked = append(ranked, entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].IncompleteCount != ranked[j].IncompleteCount {
			return ranked[i].IncompleteCount > ranked[j].IncompleteCount
		}
		return ranked[i].Key < ranked[j].Key
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}
