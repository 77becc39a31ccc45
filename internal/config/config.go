package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/fleetdash/internal/entity"
)

// Fallback backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds fleetdash settings. Values come from the TOML file first and are
// then overridden by FLEETDASH_* environment variables.
type Config struct {
	APIBind         string        `env:"FLEETDASH_API_BIND"`
	APIToken        string        `env:"FLEETDASH_API_TOKEN"`
	Debounce        time.Duration `env:"FLEETDASH_DEBOUNCE"`
	RefreshInterval time.Duration `env:"FLEETDASH_REFRESH_INTERVAL"`
	Retention       time.Duration `env:"FLEETDASH_RETENTION"`
	SnapshotHorizon time.Duration `env:"FLEETDASH_SNAPSHOT_HORIZON"`
	MaxSaveRetries  int           `env:"FLEETDASH_MAX_SAVE_RETRIES"`
	FallbackBackend string        `env:"FLEETDASH_FALLBACK_BACKEND"`
	FallbackDir     string        `env:"FLEETDASH_FALLBACK_DIR"`
	LogFile         string        `env:"FLEETDASH_LOG_FILE"`
	RetiredLabels   []string      `env:"FLEETDASH_RETIRED_LABELS" envSeparator:","`
	Collections     []string      `env:"FLEETDASH_COLLECTIONS" envSeparator:","`
}

const (
	defaultConfigPath      = "~/.config/fleetdash/config.toml"
	defaultDataDir         = "~/.local/share/fleetdash"
	defaultAPIBind         = "127.0.0.1:8080"
	defaultDebounce        = 2 * time.Second
	defaultRefreshInterval = 30 * time.Second
	defaultRetention       = 10 * time.Minute
	defaultSnapshotHorizon = 7 * 24 * time.Hour
	defaultMaxSaveRetries  = 5
)

// Default returns the built-in configuration with paths expanded.
func Default() Config {
	return Config{
		APIBind:         defaultAPIBind,
		Debounce:        defaultDebounce,
		RefreshInterval: defaultRefreshInterval,
		Retention:       defaultRetention,
		SnapshotHorizon: defaultSnapshotHorizon,
		MaxSaveRetries:  defaultMaxSaveRetries,
		FallbackBackend: BackendFile,
		FallbackDir:     mustExpand(defaultDataDir + "/snapshots"),
		LogFile:         mustExpand(defaultDataDir + "/fleetdash.log"),
		Collections:     []string{string(entity.KindRig), string(entity.KindAction)},
	}
}

type fileConfig struct {
	APIBind         string   `toml:"api_bind"`
	APIToken        string   `toml:"api_token"`
	Debounce        string   `toml:"debounce"`
	RefreshInterval string   `toml:"refresh_interval"`
	Retention       string   `toml:"retention"`
	SnapshotHorizon string   `toml:"snapshot_horizon"`
	MaxSaveRetries  *int     `toml:"max_save_retries"`
	FallbackBackend string   `toml:"fallback_backend"`
	FallbackDir     string   `toml:"fallback_dir"`
	LogFile         string   `toml:"log_file"`
	RetiredLabels   []string `toml:"retired_labels"`
	Collections     []string `toml:"collections"`
}

// Load reads the config file at path (the default location when empty), applies
// environment overrides and validates the result. A missing file yields defaults.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := cfg.readFile(resolved); err != nil {
		return Config{}, err
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	setString(&c.APIBind, raw.APIBind)
	setString(&c.APIToken, raw.APIToken)
	setString(&c.FallbackBackend, raw.FallbackBackend)
	setString(&c.FallbackDir, raw.FallbackDir)
	setString(&c.LogFile, raw.LogFile)
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"debounce", raw.Debounce, &c.Debounce},
		{"refresh_interval", raw.RefreshInterval, &c.RefreshInterval},
		{"retention", raw.Retention, &c.Retention},
		{"snapshot_horizon", raw.SnapshotHorizon, &c.SnapshotHorizon},
	} {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse config: %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	if raw.MaxSaveRetries != nil {
		c.MaxSaveRetries = *raw.MaxSaveRetries
	}
	if raw.RetiredLabels != nil {
		c.RetiredLabels = raw.RetiredLabels
	}
	if len(raw.Collections) > 0 {
		c.Collections = raw.Collections
	}
	return nil
}

func setString(dst *string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*dst = trimmed
	}
}

func (c *Config) normalize() {
	c.APIBind = strings.TrimSpace(c.APIBind)
	c.APIToken = strings.TrimSpace(c.APIToken)
	c.FallbackBackend = strings.ToLower(strings.TrimSpace(c.FallbackBackend))
	if c.FallbackBackend == "" {
		c.FallbackBackend = BackendFile
	}
	c.FallbackDir = mustExpand(c.FallbackDir)
	c.LogFile = mustExpand(c.LogFile)
	c.RetiredLabels = trimAll(c.RetiredLabels)
	c.Collections = trimAll(c.Collections)
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.APIBind == "" {
		return fmt.Errorf("api_bind is empty")
	}
	switch c.FallbackBackend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("fallback_backend %q: want file, sqlite or memory", c.FallbackBackend)
	}
	for name, d := range map[string]time.Duration{
		"debounce":         c.Debounce,
		"refresh_interval": c.RefreshInterval,
		"retention":        c.Retention,
		"snapshot_horizon": c.SnapshotHorizon,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.MaxSaveRetries < 0 {
		return fmt.Errorf("max_save_retries must not be negative")
	}
	if _, err := c.Kinds(); err != nil {
		return err
	}
	return nil
}

// Kinds returns the configured collections in order, without duplicates.
func (c Config) Kinds() ([]entity.Kind, error) {
	seen := make(map[entity.Kind]bool)
	var kinds []entity.Kind
	for _, raw := range c.Collections {
		kind, ok := entity.ParseKind(raw)
		if !ok {
			return nil, fmt.Errorf("unknown collection %q", raw)
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("no collections configured")
	}
	return kinds, nil
}

// SQLitePath returns the database file used by the sqlite fallback backend.
func (c Config) SQLitePath() string {
	if strings.TrimSpace(c.FallbackDir) == "" {
		return mustExpand(defaultDataDir + "/snapshots/fallback.db")
	}
	return filepath.Join(c.FallbackDir, "fallback.db")
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
