package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/internal/models"
	"github.com/noah-isme/assessment-window-api/pkg/config"
)

// NotificationService fans domain events out to Redis pub/sub and NATS. Delivery is
// best effort: failures are logged and never returned to the caller.
type NotificationService struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       *zap.Logger
}

// NewNotificationService wires the publisher. Either transport may be nil.
func NewNotificationService(redisClient *redis.Client, natsConn *nats.Conn, cfg config.NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		redis:        redisClient,
		redisChannel: cfg.RedisChannel,
		nats:         natsConn,
		natsSubject:  cfg.NATSSubject,
		logger:       logger,
	}
}

// Publish sends the event on every configured transport.
func (s *NotificationService) Publish(ctx context.Context, event models.Event) {
	if s == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to encode notification event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			s.logger.Warn("failed to publish notification to redis", zap.String("type", string(event.Type)), zap.Error(err))
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			s.logger.Warn("failed to publish notification to nats", zap.String("type", string(event.Type)), zap.Error(err))
		}
	}
}
