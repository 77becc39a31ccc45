package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/fleetdash/internal/syncerr"
)

// Phase is the save lifecycle of a workspace.
type Phase int

const (
	Idle Phase = iota
	Dirty
	Saving
	Saved
	Error
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Dirty:
		return "dirty"
	case Saving:
		return "saving"
	case Saved:
		return "saved"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// SaveState is the save indicator shown to the user.
type SaveState struct {
	Phase    Phase
	SavedAt  time.Time // last successful cycle, kept across later phases
	Reason   string    // short failure reason while Phase == Error
	Err      error
	Failures int // consecutive failed cycles
}

// Settled reports whether nothing is waiting to be saved.
func (s SaveState) Settled() bool {
	return s.Phase == Idle || s.Phase == Saved
}

// NeedsUnloadWarning reports whether closing now would lose unsaved or failed work.
func (s SaveState) NeedsUnloadWarning() bool {
	return s.Phase == Dirty || s.Phase == Error
}

// Label renders the state for a status line.
func (s SaveState) Label() string {
	switch s.Phase {
	case Dirty:
		return "Unsaved changes"
	case Saving:
		return "Saving..."
	case Saved:
		return "Saved " + s.SavedAt.Local().Format("15:04:05")
	case Error:
		if s.Reason == "" {
			return "Save failed"
		}
		return "Save failed: " + s.Reason
	default:
		if !s.SavedAt.IsZero() {
			return "Saved " + s.SavedAt.Local().Format("15:04:05")
		}
		return "Up to date"
	}
}

// Snapshot represents the latest sync status available to the UI.
type Snapshot struct {
	Save                SaveState
	LastRefresh         time.Time
	LastRefreshError    error
	ConsecutiveFailures int // Number of consecutive refresh failures
}

// IsOffline returns true when the API has been unreachable for multiple refreshes.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Store coordinates concurrent save-state transitions. The zero value is ready
// to use.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot

	// editedWhileSaving records mutations that arrived during the in-flight cycle.
	editedWhileSaving bool

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// MarkDirty records a local mutation and returns the resulting phase. While a
// cycle is in flight the phase stays Saving and the mutation is remembered for
// the next cycle.
func (s *Store) MarkDirty() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.snapshot.Save.Phase {
	case Saving:
		s.editedWhileSaving = true
	default:
		s.snapshot.Save.Phase = Dirty
		s.snapshot.Save.Reason = ""
		s.snapshot.Save.Err = nil
	}
	return s.snapshot.Save.Phase
}

// BeginSave enters Saving. It returns false when a cycle is already in flight.
func (s *Store) BeginSave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot.Save.Phase == Saving {
		return false
	}
	s.snapshot.Save.Phase = Saving
	s.editedWhileSaving = false
	return true
}

// FinishSave ends the in-flight cycle. On success the state becomes Saved, or
// Dirty when mutations arrived mid-flight; on failure it becomes Error and the
// failure counter grows. The resulting state is returned.
func (s *Store) FinishSave(err error) SaveState {
	s.mu.Lock()
	defer s.mu.Unlock()

	save := &s.snapshot.Save
	if save.Phase != Saving {
		return *save
	}
	if err != nil {
		save.Phase = Error
		save.Err = err
		save.Reason = syncerr.Reason(err)
		save.Failures++
		return *save
	}
	save.SavedAt = s.now()
	save.Err = nil
	save.Reason = ""
	save.Failures = 0
	if s.editedWhileSaving {
		save.Phase = Dirty
	} else {
		save.Phase = Saved
	}
	s.editedWhileSaving = false
	return *save
}

// Reset returns to Idle, for instance after unsynced changes were discarded.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Save.Phase = Idle
	s.snapshot.Save.Err = nil
	s.snapshot.Save.Reason = ""
	s.snapshot.Save.Failures = 0
	s.editedWhileSaving = false
}

// RecordRefresh notes the outcome of a background list refresh. When err is
// non-nil the failure counter grows; success resets it.
func (s *Store) RecordRefresh(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastRefresh = s.now()
	if err != nil {
		s.snapshot.LastRefreshError = err
		s.snapshot.ConsecutiveFailures++
		return
	}
	s.snapshot.LastRefreshError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// SaveState returns the current save state.
func (s *Store) SaveState() SaveState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Save
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	if s.snapshot.LastRefreshError != nil {
		snap.LastRefreshError = fmt.Errorf("%w", s.snapshot.LastRefreshError)
	}
	return snap
}
