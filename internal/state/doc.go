// Package state tracks the save lifecycle of a workspace.
//
// # Phases
//
//	Idle ──mutation──→ Dirty ──debounce──→ Saving ──ok──→ Saved
//	                     ↑                   │
//	                     └──mutation── Error ←┘ failure
//
// Saved is settled: it behaves like Idle for transitions and unload checks but
// keeps its timestamp for the status line. A mutation arriving while Saving
// leaves the phase at Saving and is remembered, so FinishSave lands in Dirty
// instead of Saved and the next cycle picks the change up.
//
// # Concurrency
//
// Store is guarded by a readers-writer lock. The scheduler is the only writer
// of the Saving transitions; BeginSave refuses to start a second cycle while
// one is in flight. Readers get values, never pointers into the store.
//
// # Refresh health
//
// Background refreshes report through RecordRefresh. Two consecutive failures
// mark the workspace offline, which the UI shows next to the save indicator.
package state
