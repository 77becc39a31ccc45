package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/five82/fleetdash/internal/filter"
)

func writePrefs(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoad_DefaultPathUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if p := Load(""); p.Theme != defaultTheme || p.Sort != filter.SortInsertion {
		t.Fatalf("missing file: got %+v, want defaults", p)
	}

	writePrefs(t, filepath.Join(home, ".config", "fleetdash", "prefs.toml"), "theme = \"Slate\"\nsort = \"due\"\n")
	p := Load("")
	if p.Theme != "Slate" || p.Sort != filter.SortDueAsc {
		t.Fatalf("got %+v, want Slate sorted by due date", p)
	}
}

func TestLoad_Degrades(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Prefs
	}{
		{"empty theme", "theme = \"\"\n", Prefs{Theme: defaultTheme}},
		{"invalid toml", "not valid toml {{{\n", Prefs{Theme: defaultTheme}},
		{"unknown sort keeps theme", "theme = \"Kanagawa\"\nsort = \"sideways\"\n", Prefs{Theme: "Kanagawa"}},
		{"known sort", "sort = \"name-desc\"\n", Prefs{Theme: defaultTheme, Sort: filter.SortNameDesc}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prefs.toml")
			writePrefs(t, path, tt.content)
			if got := Load(path); got != tt.want {
				t.Fatalf("Load = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSave_CreatesDirsAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.toml")
	want := Prefs{Theme: "Slate", Sort: filter.SortStatus}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := Load(path); got != want {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only prefs.toml, found %d entries", len(entries))
	}
}
