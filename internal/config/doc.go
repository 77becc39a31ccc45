// Package config loads fleetdash settings.
//
// Settings are read from ~/.config/fleetdash/config.toml (or the --config
// path), then overridden by FLEETDASH_* environment variables. A missing file is
// not an error; built-in defaults apply.
//
// Example config.toml:
//
//	api_bind = "127.0.0.1:8080"
//	api_token = ""
//	debounce = "2s"
//	refresh_interval = "30s"
//	retention = "10m"
//	snapshot_horizon = "168h"
//	max_save_retries = 5
//	fallback_backend = "file"   # file, sqlite or memory
//	fallback_dir = "~/.local/share/fleetdash/snapshots"
//	log_file = "~/.local/share/fleetdash/fleetdash.log"
//	retired_labels = ["legacy-*"]
//	collections = ["rigs", "actions"]
//
// Durations use Go duration syntax. Paths support tilde expansion. The matching
// environment variable for a key is its upper-cased name with a FLEETDASH_
// prefix; list values are comma separated.
package config
