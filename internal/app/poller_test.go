package app

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/five82/fleetdash/internal/cache"
)

func TestCalculateBackoff(t *testing.T) {
	baseInterval := 30 * time.Second

	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"zero failures", 0, 30 * time.Second},
		{"negative failures", -1, 30 * time.Second},
		{"one failure", 1, time.Minute},
		{"two failures", 2, 2 * time.Minute},
		{"three failures", 3, 4 * time.Minute},
		{"four failures capped", 4, 5 * time.Minute},
		{"many failures capped", 10, 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.failures, baseInterval)
			if got != tt.want {
				t.Errorf("calculateBackoff(%d, %v) = %v, want %v", tt.failures, baseInterval, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_MaxCap(t *testing.T) {
	baseInterval := 2 * time.Second
	for failures := 0; failures <= 20; failures++ {
		got := calculateBackoff(failures, baseInterval)
		if got > maxBackoff {
			t.Errorf("calculateBackoff(%d, %v) = %v, exceeds maxBackoff %v", failures, baseInterval, got, maxBackoff)
		}
	}
}

type countingRefresher struct {
	mu       sync.Mutex
	refresh  int
	sweeps   int
	err      error
	reported chan struct{}
}

func (c *countingRefresher) RefreshAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh++
	return c.err
}

func (c *countingRefresher) Sweep() []cache.Key {
	c.mu.Lock()
	c.sweeps++
	c.mu.Unlock()
	select {
	case c.reported <- struct{}{}:
	default:
	}
	return nil
}

func TestStartPoller_RefreshesUntilCancelled(t *testing.T) {
	r := &countingRefresher{reported: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartPoller(ctx, r, 5*time.Millisecond, log.New(io.Discard, "", 0))

	for i := 0; i < 3; i++ {
		select {
		case <-r.reported:
		case <-time.After(2 * time.Second):
			t.Fatal("poller did not refresh")
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refresh < 3 || r.sweeps != r.refresh {
		t.Fatalf("refresh = %d sweeps = %d", r.refresh, r.sweeps)
	}
}

func TestStartPoller_KeepsGoingAfterFailure(t *testing.T) {
	r := &countingRefresher{reported: make(chan struct{}, 1), err: errors.New("offline")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := StartPoller(ctx, r, time.Millisecond, log.New(io.Discard, "", 0))

	for i := 0; i < 2; i++ {
		select {
		case <-r.reported:
		case <-time.After(2 * time.Second):
			t.Fatal("poller stopped after a failed refresh")
		}
	}
	cancel()
	<-done
}
