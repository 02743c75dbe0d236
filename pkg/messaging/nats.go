package messaging

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-window-api/pkg/config"
)

// NewNATS connects to the configured NATS server. An empty URL returns a nil
// connection so publishing degrades to a no-op.
func NewNATS(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", conn.ConnectedUrl()))
		}),
	}

	return nats.Connect(cfg.URL, opts...)
}
