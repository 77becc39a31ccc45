package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/five82/fleetdash/internal/config"
	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/remote"
	"github.com/five82/fleetdash/internal/workspace"
)

func rigServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/rigs" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(remote.ListResponse{Items: []remote.Record{
			{ID: "r1", Name: "Rig 1", Status: "open", Severity: "critical"},
			{ID: "r2", Name: "Rig 2", Status: "completed"},
		}})
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, apiBind, backend string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.APIBind = apiBind
	cfg.FallbackBackend = backend
	cfg.FallbackDir = filepath.Join(t.TempDir(), "snapshots")
	cfg.Debounce = 0
	return cfg
}

func TestBuild_SeedsFromRemoteThenFallback(t *testing.T) {
	for _, backend := range []string{config.BackendFile, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			server := rigServer(t)
			cfg := testConfig(t, server.URL, backend)
			logger := log.New(io.Discard, "", 0)

			rt, err := Build(ctx, cfg, logger)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			ws, err := rt.Manager.Open(ctx, entity.KindRig, "")
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if ws.Source() != workspace.SourceRemote || len(ws.Entities()) != 2 {
				t.Fatalf("source = %v entities = %d", ws.Source(), len(ws.Entities()))
			}
			if err := rt.Flush(); err != nil {
				t.Fatalf("Flush: %v", err)
			}
			if err := rt.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			server.Close()
			rt, err = Build(ctx, cfg, logger)
			if err != nil {
				t.Fatalf("second Build: %v", err)
			}
			defer rt.Close()
			ws, err = rt.Manager.Open(ctx, entity.KindRig, "")
			if err != nil {
				t.Fatalf("second Open: %v", err)
			}
			if ws.Source() != workspace.SourceFallback || len(ws.Entities()) != 2 {
				t.Fatalf("offline source = %v entities = %d", ws.Source(), len(ws.Entities()))
			}
			rt.Manager.CloseAll()
		})
	}
}

func TestBuild_RejectsBadAPIBind(t *testing.T) {
	cfg := testConfig(t, "http://[::1", config.BackendMemory)
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for malformed api_bind")
	}
}

func TestPrintSummary(t *testing.T) {
	ctx := context.Background()
	server := rigServer(t)
	rt, err := Build(ctx, testConfig(t, server.URL, config.BackendMemory), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Close()

	var buf bytes.Buffer
	if err := PrintSummary(ctx, rt, entity.KindRig, "", &buf); err != nil {
		t.Fatalf("PrintSummary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`source\s+remote`, `total\s+2\n`, `critical\s+1\n`, `status open\s+1\n`, `status completed\s+1\n`} {
		if !regexp.MustCompile(want).MatchString(out) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
	if _, open := rt.Manager.Get(entity.KindRig, ""); open {
		t.Fatal("PrintSummary left the workspace open")
	}
}

func TestClearSnapshot(t *testing.T) {
	ctx := context.Background()
	server := rigServer(t)
	cfg := testConfig(t, server.URL, config.BackendFile)
	rt, err := Build(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Close()

	if _, err := rt.Manager.Open(ctx, entity.KindRig, ""); err != nil {
		t.Fatalf("Open: %v", err)
	}
	rt.Manager.CloseAll()
	if _, ok := rt.Snapshots.Load(ctx, "rigs"); !ok {
		t.Fatal("expected a snapshot after opening")
	}
	if err := ClearSnapshot(ctx, rt, entity.KindRig, ""); err != nil {
		t.Fatalf("ClearSnapshot: %v", err)
	}
	if _, ok := rt.Snapshots.Load(ctx, "rigs"); ok {
		t.Fatal("snapshot still present after clear")
	}
}
