package cache

import (
	"context"
	"time"

	"github.com/bassista/go_pantry/internal/logger"
)

// StartExpirationSweeper periodically purges expired entries from sweeper.
// On ctx.Done it runs a final sweep before returning.
// The returned channel is closed once the sweeper has stopped.
func StartExpirationSweeper(ctx context.Context, sweeper Sweeper, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	logger.WithComponent("sweep").Debugf("starting expiration sweeper with interval: %v", interval)
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.WithComponent("sweep").Debugf("expiration sweeper received context cancellation, performing final sweep")
				// Final sweep on shutdown - use a fresh context so it completes
				sweep(context.Background(), sweeper)
				logger.WithComponent("sweep").Info("expiration sweeper stopped after final sweep")
				return
			case <-ticker.C:
				logger.WithComponent("sweep").Tracef("expiration sweeper tick")
				sweep(ctx, sweeper)
			}
		}
	}()
	return done
}

func sweep(ctx context.Context, sweeper Sweeper) {
	n, err := sweeper.Sweep(ctx)
	if err != nil {
		logger.WithComponent("sweep").Errorf("sweep error: %v", err)
		return
	}
	if n > 0 {
		logger.WithComponent("sweep").Infof("expired %d cache entries", n)
	}
}
