package autosave

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/five82/fleetdash/internal/state"
	"github.com/five82/fleetdash/internal/syncerr"
)

func testConfig(debounce time.Duration) *Config {
	return &Config{
		Debounce:   debounce,
		RetryBase:  10 * time.Millisecond,
		RetryMax:   40 * time.Millisecond,
		MaxRetries: 0,
		Logger:     log.New(io.Discard, "", 0),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestScheduler_CoalescesBurstIntoOneCycle(t *testing.T) {
	var calls atomic.Int32
	store := &state.Store{}
	s := New(store, func(context.Context) error {
		calls.Add(1)
		return nil
	}, testConfig(50*time.Millisecond))
	t.Cleanup(s.Close)

	for range 5 {
		s.Notify()
		time.Sleep(5 * time.Millisecond)
	}
	if got := store.SaveState().Phase; got != state.Dirty {
		t.Fatalf("phase during burst = %v, want dirty", got)
	}

	waitFor(t, "saved", func() bool { return store.SaveState().Phase == state.Saved })
	time.Sleep(80 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("persist calls = %d, want 1", got)
	}
	if got := s.Cycles(); got != 1 {
		t.Fatalf("Cycles = %d, want 1", got)
	}
}

func TestScheduler_SaveNowBypassesDebounce(t *testing.T) {
	var calls atomic.Int32
	store := &state.Store{}
	s := New(store, func(context.Context) error {
		calls.Add(1)
		return nil
	}, testConfig(time.Hour))
	t.Cleanup(s.Close)

	s.Notify()
	if err := s.SaveNow(context.Background()); err != nil {
		t.Fatalf("SaveNow: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("persist calls = %d, want 1", got)
	}
	if got := store.SaveState().Phase; got != state.Saved {
		t.Fatalf("phase = %v, want saved", got)
	}
}

func TestScheduler_FailureEntersErrorAndRetries(t *testing.T) {
	var calls atomic.Int32
	store := &state.Store{}
	cfg := testConfig(10 * time.Millisecond)
	cfg.MaxRetries = 3
	s := New(store, func(context.Context) error {
		if calls.Add(1) == 1 {
			return syncerr.ErrNetworkUnavailable
		}
		return nil
	}, cfg)
	t.Cleanup(s.Close)

	s.Notify()
	waitFor(t, "retry to succeed", func() bool { return store.SaveState().Phase == state.Saved })
	if got := calls.Load(); got != 2 {
		t.Fatalf("persist calls = %d, want 2", got)
	}
}

func TestScheduler_StaysInErrorWithoutRetries(t *testing.T) {
	store := &state.Store{}
	s := New(store, func(context.Context) error {
		return syncerr.Rejected("/api/rigs/a", 500)
	}, testConfig(time.Hour))
	t.Cleanup(s.Close)

	s.Notify()
	err := s.SaveNow(context.Background())
	if !errors.Is(err, syncerr.ErrRemoteRejected) {
		t.Fatalf("SaveNow error = %v, want RemoteRejected", err)
	}
	st := store.SaveState()
	if st.Phase != state.Error || !st.NeedsUnloadWarning() {
		t.Fatalf("state = %+v, want error", st)
	}
}

func TestScheduler_MutationDuringSaveTriggersNextCycle(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 4)
	var calls atomic.Int32
	store := &state.Store{}
	s := New(store, func(context.Context) error {
		if calls.Add(1) == 1 {
			entered <- struct{}{}
			<-release
		}
		return nil
	}, testConfig(20*time.Millisecond))
	t.Cleanup(s.Close)

	s.Notify()
	<-entered
	s.Notify()
	if got := store.SaveState().Phase; got != state.Saving {
		t.Fatalf("phase while in flight = %v, want saving", got)
	}
	close(release)

	waitFor(t, "second cycle", func() bool { return calls.Load() == 2 })
	waitFor(t, "saved", func() bool { return store.SaveState().Phase == state.Saved })
}

func TestScheduler_CyclesAreSerialized(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	store := &state.Store{}
	s := New(store, func(context.Context) error {
		n := inFlight.Add(1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}, testConfig(time.Hour))
	t.Cleanup(s.Close)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Notify()
			_ = s.SaveNow(context.Background())
		}()
	}
	wg.Wait()
	if got := maxInFlight.Load(); got != 1 {
		t.Fatalf("max concurrent cycles = %d, want 1", got)
	}
}

func TestScheduler_CloseDropsLateResult(t *testing.T) {
	entered := make(chan struct{})
	store := &state.Store{}
	s := New(store, func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}, testConfig(5*time.Millisecond))

	s.Notify()
	<-entered
	s.Close()

	if got := store.SaveState().Phase; got != state.Saving {
		t.Fatalf("phase after close = %v, want saving left untouched", got)
	}
	s.Notify()
	if err := s.SaveNow(context.Background()); !errors.Is(err, syncerr.ErrWorkspaceClosed) {
		t.Fatalf("SaveNow after close = %v, want WorkspaceClosed", err)
	}
}

func TestScheduler_OnChangeSeesTransitions(t *testing.T) {
	var mu sync.Mutex
	var phases []state.Phase
	cfg := testConfig(time.Hour)
	cfg.OnChange = func(st state.SaveState) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, st.Phase)
	}
	s := New(&state.Store{}, func(context.Context) error { return nil }, cfg)
	t.Cleanup(s.Close)

	s.Notify()
	_ = s.SaveNow(context.Background())

	mu.Lock()
	defer mu.Unlock()
	want := []state.Phase{state.Dirty, state.Saving, state.Saved}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
}
