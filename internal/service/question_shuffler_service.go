package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/internal/models"
	appErrors "github.com/noah-isme/assessment-window-api/pkg/errors"
)

type assessmentInstanceStore interface {
	FindByBaseAndSuffix(ctx context.Context, exec sqlx.ExtContext, baseID, suffix string) (*models.AssessmentInstance, error)
	FindByBaseAndSequence(ctx context.Context, baseID string, sequence int) (*models.AssessmentInstance, error)
	ListByBase(ctx context.Context, baseID string) ([]models.AssessmentInstance, error)
	Create(ctx context.Context, exec sqlx.ExtContext, instance *models.AssessmentInstance) error
	DeleteByBase(ctx context.Context, baseID string) (int64, error)
}

type assessmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	FindByTopic(ctx context.Context, topicID string) (*models.Assessment, error)
	QuestionIDs(ctx context.Context, assessmentID string) ([]string, error)
}

// ShuffleRequest describes the variants to mint for one multi-period topic.
type ShuffleRequest struct {
	BaseAssessmentID string
	LessonTopicID    string
	Questions        []string
	Periods          int
	TermWeek         int
}

// QuestionShufflerService mints reproducible per-period orderings of a base assessment.
type QuestionShufflerService struct {
	instances   assessmentInstanceStore
	assessments assessmentReader
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewQuestionShufflerService constructs the shuffler.
func NewQuestionShufflerService(instances assessmentInstanceStore, assessments assessmentReader, metrics *MetricsService, logger *zap.Logger) *QuestionShufflerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionShufflerService{instances: instances, assessments: assessments, metrics: metrics, logger: logger}
}

// InstanceSuffix labels the 0-based period index: A..J, then the 1-based number.
func InstanceSuffix(index int) string {
	if index >= 0 && index < 10 {
		return string(rune('A' + index))
	}
	return strconv.Itoa(index + 1)
}

// ShuffleQuestions returns a permutation of questions determined by seed. The input is not modified.
func ShuffleQuestions(questions []string, seed int64) []string {
	out := make([]string, len(questions))
	copy(out, questions)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// PeriodOrderings returns the question ordering for each of periods periods. Orderings
// only repeat once every permutation of the pool has been used.
func PeriodOrderings(questions []string, periods int) [][]string {
	out := make([][]string, 0, periods)
	for i := 0; i < periods; i++ {
		out = append(out, periodOrdering(questions, i, out))
	}
	return out
}

const maxReseeds = 64

// periodOrdering shuffles with the period's seed and moves on to other permutations
// while the result collides with an earlier period and an unused permutation remains.
func periodOrdering(questions []string, index int, previous [][]string) []string {
	seed := int64(index * 1000)
	candidate := ShuffleQuestions(questions, seed)
	if !permutationsLeft(len(questions), len(previous)) {
		return candidate
	}
	for attempt := 1; attempt <= maxReseeds && containsOrdering(previous, candidate); attempt++ {
		candidate = ShuffleQuestions(questions, seed+int64(attempt))
	}
	for step := 0; step <= len(previous) && containsOrdering(previous, candidate); step++ {
		nextPermutation(candidate)
	}
	return candidate
}

// permutationsLeft reports whether n items have more than used distinct orderings.
func permutationsLeft(n, used int) bool {
	total := 1
	for i := 2; i <= n; i++ {
		total *= i
		if total > used {
			return true
		}
	}
	return total > used
}

func containsOrdering(orderings [][]string, candidate []string) bool {
	for _, ordering := range orderings {
		if equalOrdering(ordering, candidate) {
			return true
		}
	}
	return false
}

func equalOrdering(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// nextPermutation advances s to its lexicographic successor in place, wrapping from the
// last permutation to the first.
func nextPermutation(s []string) {
	i := len(s) - 2
	for i >= 0 && s[i] >= s[i+1] {
		i--
	}
	if i >= 0 {
		j := len(s) - 1
		for s[j] <= s[i] {
			j--
		}
		s[i], s[j] = s[j], s[i]
	}
	for l, r := i+1, len(s)-1; l < r; l, r = l+1, r-1 {
		s[l], s[r] = s[r], s[l]
	}
}

// CreateInstances returns one variant per period, creating the missing ones. It also
// reports how many were newly created.
func (s *QuestionShufflerService) CreateInstances(ctx context.Context, exec sqlx.ExtContext, req ShuffleRequest) ([]models.AssessmentInstance, int, error) {
	if req.BaseAssessmentID == "" || req.Periods < 1 {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "base assessment and period count are required")
	}
	if len(req.Questions) == 0 {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "assessment has no questions to shuffle")
	}
	if len(req.Questions) < req.Periods {
		s.logger.Warn("question pool smaller than period count",
			zap.String("assessment_id", req.BaseAssessmentID),
			zap.Int("questions", len(req.Questions)),
			zap.Int("periods", req.Periods))
	}

	instances := make([]models.AssessmentInstance, 0, req.Periods)
	orderings := make([][]string, 0, req.Periods)
	created := 0
	for i := 0; i < req.Periods; i++ {
		suffix := InstanceSuffix(i)
		existing, err := s.instances.FindByBaseAndSuffix(ctx, exec, req.BaseAssessmentID, suffix)
		if err == nil {
			instances = append(instances, *existing)
			orderings = append(orderings, []string(existing.QuestionOrder))
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment instance")
		}

		instance := models.AssessmentInstance{
			BaseAssessmentID: req.BaseAssessmentID,
			LessonTopicID:    req.LessonTopicID,
			Suffix:           suffix,
			PeriodSequence:   i + 1,
			TotalPeriods:     req.Periods,
			QuestionOrder:    periodOrdering(req.Questions, i, orderings),
			TermWeek:         req.TermWeek,
			IsActive:         true,
		}
		if err := s.instances.Create(ctx, exec, &instance); err != nil {
			return nil, created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assessment instance")
		}
		created++
		instances = append(instances, instance)
		orderings = append(orderings, []string(instance.QuestionOrder))
	}

	if created > 0 {
		s.metrics.RecordInstancesCreated(created)
		s.logger.Info("assessment instances created",
			zap.String("assessment_id", req.BaseAssessmentID),
			zap.Int("created", created),
			zap.Int("periods", req.Periods))
	}
	return instances, created, nil
}

// ValidatePool grades whether questionCount questions can be spread over periods.
func (s *QuestionShufflerService) ValidatePool(questionCount, periods int) (models.ShuffleValidation, error) {
	if periods < 1 {
		return models.ShuffleValidation{}, appErrors.Clone(appErrors.ErrValidation, "periods must be at least 1")
	}
	result := models.ShuffleValidation{QuestionCount: questionCount, PeriodCount: periods}
	switch {
	case questionCount >= 2*periods:
		result.Sufficient = true
		result.Classification = models.ShuffleOptimal
		result.Message = fmt.Sprintf("%d questions give well separated orderings across %d periods", questionCount, periods)
	case questionCount >= periods:
		result.Sufficient = true
		result.Classification = models.ShuffleAcceptable
		result.Message = fmt.Sprintf("%d questions cover %d periods; add more for stronger variation", questionCount, periods)
	default:
		result.Classification = models.ShuffleInsufficient
		result.Message = fmt.Sprintf("%d questions are fewer than %d periods; orderings will repeat", questionCount, periods)
	}
	return result, nil
}

// ValidateAssessment loads the assessment's pool and grades it.
func (s *QuestionShufflerService) ValidateAssessment(ctx context.Context, assessmentID string, periods int) (models.ShuffleValidation, error) {
	if _, err := s.loadAssessment(ctx, assessmentID); err != nil {
		return models.ShuffleValidation{}, err
	}
	questions, err := s.assessments.QuestionIDs(ctx, assessmentID)
	if err != nil {
		return models.ShuffleValidation{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	return s.ValidatePool(len(questions), periods)
}

// InstanceForPeriod returns the variant bound to a 1-based period sequence.
func (s *QuestionShufflerService) InstanceForPeriod(ctx context.Context, baseID string, sequence int) (*models.AssessmentInstance, error) {
	instance, err := s.instances.FindByBaseAndSequence(ctx, baseID, sequence)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment instance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment instance")
	}
	return instance, nil
}

// ListInstances lists the variants of an assessment.
func (s *QuestionShufflerService) ListInstances(ctx context.Context, baseID string) ([]models.AssessmentInstance, error) {
	if _, err := s.loadAssessment(ctx, baseID); err != nil {
		return nil, err
	}
	instances, err := s.instances.ListByBase(ctx, baseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessment instances")
	}
	return instances, nil
}

// DeleteInstances removes every variant so the next generation run re-mints them.
func (s *QuestionShufflerService) DeleteInstances(ctx context.Context, baseID string) (int64, error) {
	if _, err := s.loadAssessment(ctx, baseID); err != nil {
		return 0, err
	}
	count, err := s.instances.DeleteByBase(ctx, baseID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assessment instances")
	}
	s.logger.Info("assessment instances deleted", zap.String("assessment_id", baseID), zap.Int64("count", count))
	return count, nil
}

func (s *QuestionShufflerService) loadAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	assessment, err := s.assessments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}
	return assessment, nil
}
