// Package ui renders the fleetdash dashboard with Bubble Tea.
//
// One tab per configured collection shows the filtered, sorted entities of
// that collection's workspace. The header carries the save indicator
// ("Unsaved changes", "Saving...", "Saved 15:04:05", "Save failed: ...") and
// flags snapshot or default data and an offline remote. Rows with unsaved
// edits are marked with a dot; overdue rows are drawn in the danger color.
//
// The model re-reads its workspace on every tick, so edits, background saves
// and poller refreshes show up without explicit wiring. Mutations go through
// the workspace: marking an item completed is applied optimistically and saved
// by the debounced scheduler, while save, refresh and delete run as commands
// off the UI goroutine.
//
// Quitting with unsaved or failed changes requires a second press; the warning
// names the affected collections.
package ui
