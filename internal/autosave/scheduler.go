// Package autosave coalesces bursts of local mutations into debounced
// persistence cycles, one workspace at a time.
package autosave

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/five82/fleetdash/internal/retry"
	"github.com/five82/fleetdash/internal/state"
	"github.com/five82/fleetdash/internal/syncerr"
)

// Config holds configuration for a Scheduler.
type Config struct {
	// Debounce is how long to wait after the last mutation before saving.
	Debounce time.Duration

	// RetryBase and RetryMax bound the backoff between automatic retries.
	RetryBase time.Duration
	RetryMax  time.Duration

	// MaxRetries is how many automatic retries follow a failed cycle before the
	// scheduler waits for a manual save. Zero disables automatic retry.
	MaxRetries int

	// OnChange is called after every save-state transition, outside any lock.
	OnChange func(state.SaveState)

	// Logger for scheduler activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce:   2 * time.Second,
		RetryBase:  2 * time.Second,
		RetryMax:   30 * time.Second,
		MaxRetries: 5,
		Logger:     log.New(os.Stderr, "[autosave] ", log.LstdFlags),
	}
}

// PersistFunc sends every pending change of the workspace. It returns nil only
// when nothing is left unsent.
type PersistFunc func(ctx context.Context) error

// Scheduler drives the save state of one workspace.
type Scheduler struct {
	persist PersistFunc
	store   *state.Store
	config  *Config

	mu         sync.Mutex
	debounce   *time.Timer
	retryTimer *time.Timer
	closed     bool
	cycles     int

	// runMu serializes persistence cycles.
	runMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler that persists through fn and records transitions in
// store. A nil config uses DefaultConfig.
func New(store *state.Store, fn PersistFunc, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		persist: fn,
		store:   store,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Notify records a mutation: the workspace becomes Dirty (or stays Saving, with
// the change queued for the next cycle) and the debounce window restarts.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.store.MarkDirty()
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.debounce == nil {
		s.debounce = time.AfterFunc(s.config.Debounce, s.fire)
	} else {
		s.debounce.Reset(s.config.Debounce)
	}
	s.mu.Unlock()

	s.emit()
}

// SaveNow runs a cycle immediately, bypassing the debounce window. It waits for
// any in-flight cycle first.
func (s *Scheduler) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return syncerr.ErrWorkspaceClosed
	}
	s.stopTimersLocked()
	s.mu.Unlock()

	return s.run(ctx)
}

// Cycles returns how many persistence cycles have started.
func (s *Scheduler) Cycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// State returns the current save state.
func (s *Scheduler) State() state.SaveState {
	return s.store.SaveState()
}

// Close cancels pending timers and in-flight timer-driven cycles and waits for
// them to return. Results that arrive afterwards are not applied.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTimersLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) stopTimersLocked() {
	if s.debounce != nil {
		s.debounce.Stop()
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// fire runs on timer expiry.
func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if s.store.SaveState().Settled() {
		return
	}
	_ = s.run(s.ctx)
}

func (s *Scheduler) run(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.isClosed() {
		return syncerr.ErrWorkspaceClosed
	}
	if !s.store.BeginSave() {
		return nil
	}
	s.mu.Lock()
	s.cycles++
	cycle := s.cycles
	s.mu.Unlock()
	s.emit()

	err := s.persist(ctx)

	if s.isClosed() {
		s.config.Logger.Printf("cycle %d finished after close; result dropped", cycle)
		return syncerr.ErrWorkspaceClosed
	}
	st := s.store.FinishSave(err)
	s.emit()

	if err != nil {
		s.config.Logger.Printf("cycle %d failed (attempt %d): %v", cycle, st.Failures, err)
		s.scheduleRetry(st.Failures)
		return err
	}
	return nil
}

func (s *Scheduler) scheduleRetry(failures int) {
	if failures > s.config.MaxRetries {
		s.config.Logger.Printf("giving up after %d failed cycles; waiting for manual save", failures)
		return
	}
	delay := retry.Delay(failures, s.config.RetryBase, s.config.RetryMax)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryTimer = time.AfterFunc(delay, s.fire)
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scheduler) emit() {
	if s.config.OnChange != nil {
		s.config.OnChange(s.store.SaveState())
	}
}
