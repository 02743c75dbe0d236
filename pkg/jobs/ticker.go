package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TickFunc runs on every tick with the tick time in UTC.
type TickFunc func(ctx context.Context, now time.Time) error

// Every runs fn on a fixed interval until ctx is cancelled. When runImmediately is set
// the first run happens before the first tick. Errors are logged and never stop the loop.
func Every(ctx context.Context, name string, interval time.Duration, runImmediately bool, logger *zap.Logger, fn TickFunc) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	run := func(now time.Time) {
		if err := fn(ctx, now.UTC()); err != nil {
			logger.Warn("periodic job failed", zap.String("job", name), zap.Error(err))
		}
	}

	go func() {
		if runImmediately {
			run(time.Now())
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("periodic job stopped", zap.String("job", name))
				return
			case tick := <-ticker.C:
				run(tick)
			}
		}
	}()
}
