package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/five82/fleetdash/internal/entity"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIBind != defaultAPIBind {
		t.Fatalf("APIBind = %q, want %q", cfg.APIBind, defaultAPIBind)
	}
	if cfg.Debounce != defaultDebounce || cfg.MaxSaveRetries != defaultMaxSaveRetries {
		t.Fatalf("Debounce = %v MaxSaveRetries = %d", cfg.Debounce, cfg.MaxSaveRetries)
	}
	if cfg.FallbackBackend != BackendFile {
		t.Fatalf("FallbackBackend = %q, want file", cfg.FallbackBackend)
	}
	if !strings.HasPrefix(cfg.FallbackDir, home) || !strings.HasPrefix(cfg.LogFile, home) {
		t.Fatalf("paths not under HOME: %q %q", cfg.FallbackDir, cfg.LogFile)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, `
api_bind = "  10.0.0.5:9999  "
api_token = " secret "
debounce = "500ms"
refresh_interval = "1m"
retention = "0s"
snapshot_horizon = "24h"
max_save_retries = 0
fallback_backend = " SQLite "
fallback_dir = "~/fd"
retired_labels = ["legacy-*", " "]
collections = ["rigs", "work-orders", "rig"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := Config{
		APIBind:         "10.0.0.5:9999",
		APIToken:        "secret",
		Debounce:        500 * time.Millisecond,
		RefreshInterval: time.Minute,
		Retention:       0,
		SnapshotHorizon: 24 * time.Hour,
		MaxSaveRetries:  0,
		FallbackBackend: BackendSQLite,
		FallbackDir:     filepath.Join(home, "fd"),
		LogFile:         filepath.Join(home, ".local/share/fleetdash/fleetdash.log"),
		RetiredLabels:   []string{"legacy-*"},
		Collections:     []string{"rigs", "work-orders", "rig"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	kinds, err := cfg.Kinds()
	if err != nil {
		t.Fatalf("Kinds: %v", err)
	}
	if diff := cmp.Diff([]entity.Kind{entity.KindRig, entity.KindWorkOrder}, kinds); diff != "" {
		t.Fatalf("kinds mismatch (-want +got):\n%s", diff)
	}
	if cfg.SQLitePath() != filepath.Join(home, "fd", "fallback.db") {
		t.Fatalf("SQLitePath = %q", cfg.SQLitePath())
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLEETDASH_API_BIND", "api.internal:443")
	t.Setenv("FLEETDASH_DEBOUNCE", "3s")
	t.Setenv("FLEETDASH_FALLBACK_BACKEND", "memory")
	t.Setenv("FLEETDASH_COLLECTIONS", "tasks,notes")

	path := writeConfig(t, `
api_bind = "10.0.0.5:9999"
debounce = "500ms"
max_save_retries = 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIBind != "api.internal:443" {
		t.Fatalf("APIBind = %q", cfg.APIBind)
	}
	if cfg.Debounce != 3*time.Second {
		t.Fatalf("Debounce = %v, want 3s", cfg.Debounce)
	}
	if cfg.MaxSaveRetries != 2 {
		t.Fatalf("MaxSaveRetries = %d, want file value 2", cfg.MaxSaveRetries)
	}
	if cfg.FallbackBackend != BackendMemory {
		t.Fatalf("FallbackBackend = %q", cfg.FallbackBackend)
	}
	if diff := cmp.Diff([]string{"tasks", "notes"}, cfg.Collections); diff != "" {
		t.Fatalf("collections mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad toml", `api_bind = [`, "parse config"},
		{"bad duration", `debounce = "soon"`, "debounce"},
		{"negative duration", `retention = "-1s"`, "retention"},
		{"unknown backend", `fallback_backend = "redis"`, "fallback_backend"},
		{"negative retries", `max_save_retries = -1`, "max_save_retries"},
		{"unknown collection", `collections = ["rigs", "boats"]`, "boats"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Load returned nil error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_BadEnvFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLEETDASH_MAX_SAVE_RETRIES", "many")

	if _, err := Load(writeConfig(t, "")); err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("Load error = %v, want parse env", err)
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}
