// Package app is the composition root for fleetdash.
//
// Build turns a config.Config into a Runtime: the HTTP remote client, the
// configured fallback store (file, sqlite or memory), the shared entity cache
// and the workspace manager with its auto-save settings. Run loads config and
// preferences, routes the process log to a rotating file, opens one workspace
// per configured collection, starts the background poller and hands control to
// the TUI. When the TUI exits, Run stops the poller and flushes unsaved work
// before returning.
//
// The poller refreshes every open workspace at the configured interval. After a
// failed pass the interval doubles per consecutive failure, capped at five
// minutes, and resets on the next success. Each pass also sweeps idle cached
// collections whose workspaces are closed.
//
// PrintSummary and ClearSnapshot back the non-interactive CLI commands.
package app
