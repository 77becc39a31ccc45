// Package guard decides what happens when remote state meets unsynced local
// edits, and which fallback snapshots are too stale to load.
package guard

import (
	"github.com/five82/fleetdash/internal/cache"
	"github.com/five82/fleetdash/internal/entity"
)

// MergeReport lists what a refresh changed, by entity id.
type MergeReport struct {
	Added     []string
	Updated   []string
	Removed   []string
	KeptLocal []string // remote copy ignored because local edits are pending
	Discarded []string // pending edits dropped because the remote deleted the entity
}

// Changed reports whether the merge altered the collection.
func (r MergeReport) Changed() bool {
	return len(r.Added)+len(r.Updated)+len(r.Removed)+len(r.Discarded) > 0
}

// MergeRefresh folds a full remote listing into coll. Local-dirty wins: entities
// with pending updates keep their local value, pending local deletes are not
// resurrected, and pending creates survive even though the remote has not seen
// them. Entities the remote no longer lists are removed; if they had pending
// updates those are discarded. Ids in keep are never removed: they were
// confirmed after the listing was taken.
func MergeRefresh(coll *cache.Collection, remote []entity.Entity, keep ...string) MergeReport {
	var report MergeReport
	listed := make(map[string]struct{}, len(remote))
	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}

	for _, r := range remote {
		listed[r.ID] = struct{}{}
		op, pending := coll.PendingOp(r.ID)
		if pending {
			if op != cache.OpDelete {
				report.KeptLocal = append(report.KeptLocal, r.ID)
			}
			continue
		}
		prev, exists := coll.Get(r.ID)
		switch {
		case !exists:
			coll.Put(r)
			report.Added = append(report.Added, r.ID)
		case len(entity.Diff(prev, r)) > 0 || !prev.UpdatedAt.Equal(r.UpdatedAt):
			coll.Put(r)
			report.Updated = append(report.Updated, r.ID)
		}
	}

	for _, id := range coll.IDs() {
		if _, ok := listed[id]; ok {
			continue
		}
		if _, ok := kept[id]; ok {
			continue
		}
		op, pending := coll.PendingOp(id)
		switch {
		case pending && op == cache.OpCreate:
			continue
		case pending:
			coll.DiscardPending(id)
			coll.Remove(id)
			report.Discarded = append(report.Discarded, id)
		default:
			coll.Remove(id)
			report.Removed = append(report.Removed, id)
		}
	}

	// Tombstones for entities the remote already dropped have nothing left to send.
	for _, p := range coll.Pending() {
		if p.Op != cache.OpDelete {
			continue
		}
		if _, ok := listed[p.ID]; !ok {
			coll.DiscardPending(p.ID)
		}
	}
	return report
}

// DropRemoteDeleted removes id after the remote reported it gone, discarding any
// pending edits. It reports whether edits were discarded.
func DropRemoteDeleted(coll *cache.Collection, id string) bool {
	discarded := coll.DiscardPending(id)
	coll.Remove(id)
	return discarded
}
