// Package prefs remembers dashboard choices between runs: the color theme and
// the list sort order. The file lives at ~/.config/fleetdash/prefs.toml.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/fleetdash/internal/filter"
)

const (
	defaultPath  = "~/.config/fleetdash/prefs.toml"
	defaultTheme = "Nightfox"
)

// Prefs is the persisted dashboard state.
type Prefs struct {
	Theme string           `toml:"theme"`
	Sort  filter.SortOrder `toml:"sort,omitempty"`
}

// DefaultPath returns the preferences file used when no path is given.
func DefaultPath() string {
	return defaultPath
}

// Load reads preferences from path. Preferences never block startup: a missing,
// unreadable or malformed file yields the defaults, and unknown values are
// replaced field by field.
func Load(path string) Prefs {
	var p Prefs
	if resolved, err := resolve(path); err == nil {
		if data, err := os.ReadFile(resolved); err == nil {
			if toml.Unmarshal(data, &p) != nil {
				p = Prefs{}
			}
		}
	}

	if strings.TrimSpace(p.Theme) == "" {
		p.Theme = defaultTheme
	}
	p.Sort, _ = filter.ParseSortOrder(string(p.Sort))
	return p
}

// Save writes p to path through a temp file and rename, creating parent
// directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolve(path)
	if err != nil {
		return err
	}
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.toml")
	if err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), resolved); err != nil {
		return fmt.Errorf("commit prefs: %w", err)
	}
	return nil
}

// resolve expands a leading ~ and makes path absolute; empty means the default.
func resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultPath
	}
	if rest, ok := strings.CutPrefix(path, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, rest)
	}
	return filepath.Abs(path)
}
