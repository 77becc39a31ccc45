package guard

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/five82/fleetdash/internal/cache"
	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/fallback"
	"github.com/five82/fleetdash/internal/syncerr"
)

func named(id, name string) entity.Entity {
	return entity.Entity{ID: id, Name: name, Status: entity.StatusOpen}
}

// dirtyCollection returns a collection seeded with a..e where
// a is edited locally, b is deleted locally, c is clean, d is edited locally and
// e is clean, plus a local create "local-1".
func dirtyCollection(t *testing.T) (*cache.Cache, cache.Key) {
	t.Helper()
	c := cache.New()
	key := cache.KeyFor(entity.KindRig, "")
	c.Set(key, cache.NewCollection(named("a", "A"), named("b", "B"), named("c", "C"), named("d", "D"), named("e", "E")))
	_, err := c.Update(key, func(coll *cache.Collection) error {
		a, _ := coll.Get("a")
		a.Name = "A local"
		coll.Put(a)
		coll.Remove("b")
		d, _ := coll.Get("d")
		d.Name = "D local"
		coll.Put(d)
		coll.Put(named("local-1", "New"))
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	return c, key
}

func TestMergeRefresh_LocalDirtyWins(t *testing.T) {
	c, key := dirtyCollection(t)

	remote := []entity.Entity{
		named("a", "A remote"),
		named("b", "B remote"),
		named("c", "C remote"),
		// d and e were deleted remotely.
		named("f", "F"),
	}

	var report MergeReport
	err := c.Reconcile(key, func(coll *cache.Collection) error {
		report = MergeRefresh(coll, remote)
		return nil
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	want := MergeReport{
		Added:     []string{"f"},
		Updated:   []string{"c"},
		Removed:   []string{"e"},
		KeptLocal: []string{"a"},
		Discarded: []string{"d"},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}

	coll, _ := c.Get(key)
	if a, _ := coll.Get("a"); a.Name != "A local" {
		t.Fatalf("a = %q, want local value kept", a.Name)
	}
	if _, ok := coll.Get("b"); ok {
		t.Fatal("locally deleted b was resurrected")
	}
	if op, ok := coll.PendingOp("b"); !ok || op != cache.OpDelete {
		t.Fatal("pending delete for b should remain")
	}
	if _, ok := coll.Get("local-1"); !ok {
		t.Fatal("pending create was dropped")
	}
	if coll.IsDirty("d") {
		t.Fatal("d's pending change should be discarded")
	}
	if diff := cmp.Diff([]string{"a", "c", "local-1", "f"}, coll.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeRefresh_DropsTombstonesTheRemoteAlreadyRemoved(t *testing.T) {
	c, key := dirtyCollection(t)
	_ = c.Reconcile(key, func(coll *cache.Collection) error {
		MergeRefresh(coll, []entity.Entity{named("a", "A"), named("c", "C")})
		return nil
	})
	coll, _ := c.Get(key)
	if coll.IsDirty("b") {
		t.Fatal("tombstone for b should be dropped once the remote no longer lists it")
	}
}

func TestMergeRefresh_KeepsIDsConfirmedAfterTheListing(t *testing.T) {
	coll := cache.NewCollection(named("a", "A"), named("srv-1", "Fresh"))
	report := MergeRefresh(coll, []entity.Entity{named("a", "A")}, "srv-1")

	if _, ok := coll.Get("srv-1"); !ok {
		t.Fatal("srv-1 was removed although its create was confirmed after the listing")
	}
	if len(report.Removed) != 0 {
		t.Fatalf("Removed = %v, want none", report.Removed)
	}
}

func TestDropRemoteDeleted(t *testing.T) {
	c, key := dirtyCollection(t)
	var discarded bool
	_ = c.Reconcile(key, func(coll *cache.Collection) error {
		discarded = DropRemoteDeleted(coll, "a")
		return nil
	})
	if !discarded {
		t.Fatal("expected pending edits to be discarded")
	}
	coll, _ := c.Get(key)
	if _, ok := coll.Get("a"); ok || coll.IsDirty("a") {
		t.Fatal("a should be gone with nothing pending")
	}
}

func TestPolicy_CheckSnapshot(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fresh := fallback.Snapshot{Key: "rigs", SavedAt: now.Add(-time.Hour), Entities: []entity.Entity{named("r1", "Rig 1")}}

	tests := []struct {
		name    string
		policy  Policy
		snap    fallback.Snapshot
		wantErr bool
	}{
		{"no policy", Policy{}, fallback.Snapshot{Key: "rigs"}, false},
		{"within horizon", Policy{Horizon: 24 * time.Hour}, fresh, false},
		{"too old", Policy{Horizon: 30 * time.Minute}, fresh, true},
		{"unknown age", Policy{Horizon: time.Hour}, fallback.Snapshot{Key: "rigs"}, true},
		{"retired name", Policy{RetiredLabels: []string{"RIG 1"}}, fresh, true},
		{"retired glob", Policy{RetiredLabels: []string{"r*"}}, fresh, true},
		{"unrelated label", Policy{RetiredLabels: []string{"legacy-*"}}, fresh, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.CheckSnapshot(tt.snap, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckSnapshot error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, syncerr.ErrStaleSnapshotDiscarded) {
				t.Fatalf("error = %v, want StaleSnapshotDiscarded", err)
			}
		})
	}
}
