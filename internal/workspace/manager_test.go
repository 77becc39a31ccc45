package workspace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/five82/fleetdash/internal/cache"
	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/remote"
	"github.com/five82/fleetdash/internal/remote/remotetest"
	"github.com/five82/fleetdash/internal/syncerr"
)

type fakes map[cache.Key]*remotetest.Fake

func (f fakes) factory(kind entity.Kind, scope string) remote.EntityAPI {
	key := cache.KeyFor(kind, scope)
	if fake, ok := f[key]; ok {
		return fake
	}
	fake := remotetest.NewFake()
	f[key] = fake
	return fake
}

func newManager(t *testing.T, f fakes, c *cache.Cache) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{
		API:      f.factory,
		Cache:    c,
		AutoSave: saveConfig(time.Hour),
		Logger:   discard,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.CloseAll)
	return m
}

func TestNewManager_RequiresFactory(t *testing.T) {
	if _, err := NewManager(ManagerConfig{}); err == nil {
		t.Fatal("expected error for missing api factory")
	}
}

func TestManager_OpenReusesWorkspace(t *testing.T) {
	m := newManager(t, fakes{}, nil)
	ctx := context.Background()

	first, err := m.Open(ctx, entity.KindTask, "rig-7")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	second, err := m.Open(ctx, entity.KindTask, "rig-7")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if first != second {
		t.Fatal("expected the same workspace for the same key")
	}
	if first.Key() != "tasks:rig-7" {
		t.Fatalf("key = %q", first.Key())
	}
	if got, ok := m.Get(entity.KindTask, "rig-7"); !ok || got != first {
		t.Fatal("Get did not return the open workspace")
	}
	if _, ok := m.Get(entity.KindTask, "rig-8"); ok {
		t.Fatal("Get returned a workspace that was never opened")
	}
}

func TestManager_SaveAllAcrossWorkspaces(t *testing.T) {
	f := fakes{
		"rigs":    remotetest.NewFake(rig("r1", "Rig 1")),
		"actions": remotetest.NewFake(rig("a1", "Action 1")),
	}
	m := newManager(t, f, nil)
	ctx := context.Background()

	rigs, _ := m.Open(ctx, entity.KindRig, "")
	actions, _ := m.Open(ctx, entity.KindAction, "")
	_ = rigs.Edit("r1", rename("Rig 1b"))
	_ = actions.Edit("a1", rename("Action 1b"))

	if diff := cmp.Diff([]cache.Key{"actions", "rigs"}, m.Unsaved()); diff != "" {
		t.Fatalf("Unsaved mismatch (-want +got):\n%s", diff)
	}
	if err := m.SaveAll(ctx); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if len(m.Unsaved()) != 0 {
		t.Fatalf("still unsaved: %v", m.Unsaved())
	}
	for key, fake := range f {
		if got := len(fake.CallsFor(remotetest.OpUpdate)); got != 1 {
			t.Fatalf("%s update calls = %d, want 1", key, got)
		}
	}
}

func TestManager_RefreshAllReportsFailure(t *testing.T) {
	f := fakes{"rigs": remotetest.NewFake(), "actions": remotetest.NewFake()}
	m := newManager(t, f, nil)
	ctx := context.Background()
	_, _ = m.Open(ctx, entity.KindRig, "")
	_, _ = m.Open(ctx, entity.KindAction, "")

	f["actions"].FailOp(remotetest.OpList, syncerr.ErrNetworkUnavailable)
	if err := m.RefreshAll(ctx); !errors.Is(err, syncerr.ErrNetworkUnavailable) {
		t.Fatalf("RefreshAll = %v, want NetworkUnavailable", err)
	}
}

func TestManager_SweepKeepsOpenWorkspaces(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	c := cache.New(cache.WithRetention(time.Minute), cache.WithClock(func() time.Time { return now }))
	m := newManager(t, fakes{}, c)
	ctx := context.Background()

	_, _ = m.Open(ctx, entity.KindRig, "")
	_, _ = m.Open(ctx, entity.KindAction, "")
	m.Close(entity.KindRig, "")

	now = now.Add(time.Hour)
	if diff := cmp.Diff([]cache.Key{"rigs"}, m.Sweep()); diff != "" {
		t.Fatalf("Sweep mismatch (-want +got):\n%s", diff)
	}
	if _, ok := c.Get("actions"); !ok {
		t.Fatal("open workspace was evicted")
	}
}

func TestManager_OpenDoesNotBlockReaders(t *testing.T) {
	slow := remotetest.NewFake(rig("r1", "Rig 1"))
	f := fakes{"rigs": slow}
	m := newManager(t, f, nil)
	ctx := context.Background()

	if _, err := m.Open(ctx, entity.KindAction, ""); err != nil {
		t.Fatalf("Open actions: %v", err)
	}

	slow.Hold()
	opened := make(chan *Workspace, 2)
	for range 2 {
		go func() {
			w, _ := m.Open(ctx, entity.KindRig, "")
			opened <- w
		}()
	}
	awaitOp(t, slow, remotetest.OpList)

	read := make(chan int, 1)
	go func() {
		_, _ = m.Get(entity.KindAction, "")
		_ = m.Unsaved()
		read <- len(m.Workspaces())
	}()
	select {
	case n := <-read:
		if n != 1 {
			t.Fatalf("Workspaces = %d while rigs is still opening, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("readers blocked behind a bootstrap listing")
	}

	slow.Release()
	first, second := <-opened, <-opened
	if first == nil || first != second {
		t.Fatal("concurrent Opens of one key should share one workspace")
	}
	if got := len(slow.CallsFor(remotetest.OpList)); got != 1 {
		t.Fatalf("list calls = %d, want 1", got)
	}
}
