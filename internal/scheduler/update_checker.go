package scheduler

import (
	"context"
	"time"

	"github.com/bassista/go_pantry/internal/logger"
)

// Updater checks the manifest source and installs a new version if one is available.
type Updater interface {
	CheckForUpdate(ctx context.Context) error
}

// UpdateChecker triggers an update check on a fixed interval.
//
// A failed install is not retried on its own; the next tick simply tries again.
type UpdateChecker struct {
	updater Updater
	poll    time.Duration
}

func NewUpdateChecker(updater Updater, poll time.Duration) *UpdateChecker {
	return &UpdateChecker{updater: updater, poll: poll}
}

// Start runs the checker until ctx is cancelled.
func (s *UpdateChecker) Start(ctx context.Context) {
	logger.WithComponent("sched").Debugf("starting update checker with interval: %v", s.poll)
	ticker := time.NewTicker(s.poll)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.WithComponent("sched").Info("update checker stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *UpdateChecker) tick(ctx context.Context) {
	logger.WithComponent("sched").Tracef("update check tick")
	if err := s.updater.CheckForUpdate(ctx); err != nil {
		logger.WithComponent("sched").Errorf("update check failed: %v", err)
	}
}
