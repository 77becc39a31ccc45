package app

import (
	"context"
	"log"
	"time"

	"github.com/five82/fleetdash/internal/cache"
	"github.com/five82/fleetdash/internal/retry"
)

const (
	defaultPollInterval = 30 * time.Second
	maxBackoff          = 5 * time.Minute
)

// Refresher is the part of the workspace manager the poller drives.
type Refresher interface {
	RefreshAll(ctx context.Context) error
	Sweep() []cache.Key
}

// StartPoller launches a background goroutine that refreshes every open
// workspace at a fixed cadence, backing off while refreshes fail, and evicts
// idle cached collections after each pass. The returned channel closes once the
// goroutine exits.
func StartPoller(ctx context.Context, r Refresher, interval time.Duration, logger *log.Logger) <-chan struct{} {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		failures := 0
		for {
			timer := time.NewTimer(calculateBackoff(failures, interval))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			if err := r.RefreshAll(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				logger.Printf("refresh failed (%d in a row): %v", failures, err)
			} else {
				failures = 0
			}
			r.Sweep()
		}
	}()
	return done
}

// calculateBackoff returns the wait before the next refresh given the number of
// consecutive failures.
func calculateBackoff(failures int, interval time.Duration) time.Duration {
	if failures <= 0 {
		return interval
	}
	return retry.Delay(failures, interval, maxBackoff)
}
