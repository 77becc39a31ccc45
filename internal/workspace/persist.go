package workspace

import (
	"context"
	"errors"
	"net/http"

	"github.com/five82/fleetdash/internal/cache"
	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/guard"
	"github.com/five82/fleetdash/internal/syncerr"
)

// persist is the save cycle run by the scheduler. It sends only the pending
// delta, in the order the changes were first made, and acknowledges each success
// as it lands so a retry never re-sends it. A fallback snapshot of confirmed
// state is written when every change went through. Entities with an immediate
// call outstanding are left to that call; the cycle then ends Dirty instead of
// Saved and the call re-arms the scheduler when it returns.
func (w *Workspace) persist(ctx context.Context) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	var pending []cache.Pending
	w.cache.View(w.key, func(coll *cache.Collection) {
		pending = coll.Pending()
	})

	var (
		errs    []error
		skipped int
	)
	for _, p := range pending {
		if w.isInflight(p.ID) {
			skipped++
			continue
		}
		if !w.stillPending(p) {
			// Settled by an immediate call since the ledger was captured.
			continue
		}
		err := w.send(ctx, p)
		if errors.Is(err, syncerr.ErrWorkspaceClosed) {
			return err
		}
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if errors.Is(err, syncerr.ErrNetworkUnavailable) {
			// The rest would fail the same way; they stay pending.
			break
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if err := w.checkOpen(); err != nil {
		return err
	}
	if skipped > 0 {
		w.state.MarkDirty()
	}
	w.saveSnapshot(ctx)
	w.notifyChange()
	return nil
}

func (w *Workspace) send(ctx context.Context, p cache.Pending) error {
	switch p.Op {
	case cache.OpCreate:
		created, err := w.api.Create(ctx, p.Entity)
		if err := w.checkOpen(); err != nil {
			return err
		}
		if err != nil {
			w.logger.Printf("%s: create %s: %v", w.key, p.ID, err)
			return err
		}
		w.confirmCreate(p, created)
		return nil

	case cache.OpUpdate:
		patch := p.Patch()
		if len(patch) == 0 {
			return w.acknowledge(p, nil)
		}
		updated, err := w.api.Update(ctx, p.ID, patch)
		if err := w.checkOpen(); err != nil {
			return err
		}
		if syncerr.StatusOf(err) == http.StatusNotFound {
			w.dropRemoteDeleted(p.ID)
			return nil
		}
		if err != nil {
			w.logger.Printf("%s: update %s %v: %v", w.key, p.ID, p.Fields, err)
			return err
		}
		return w.acknowledge(p, &updated)

	case cache.OpDelete:
		err := w.api.Delete(ctx, p.ID)
		if err := w.checkOpen(); err != nil {
			return err
		}
		if err != nil {
			w.logger.Printf("%s: delete %s: %v", w.key, p.ID, err)
			return err
		}
		return w.acknowledge(p, nil)
	}
	return nil
}

func (w *Workspace) stillPending(p cache.Pending) bool {
	pending := false
	w.cache.View(w.key, func(coll *cache.Collection) {
		op, ok := coll.PendingOp(p.ID)
		pending = ok && op == p.Op
	})
	return pending
}

func (w *Workspace) acknowledge(p cache.Pending, confirmed *entity.Entity) error {
	return w.cache.Reconcile(w.key, func(coll *cache.Collection) error {
		coll.Acknowledge(p, confirmed)
		return nil
	})
}

func (w *Workspace) dropRemoteDeleted(id string) {
	discarded := false
	_ = w.cache.Reconcile(w.key, func(coll *cache.Collection) error {
		discarded = guard.DropRemoteDeleted(coll, id)
		return nil
	})
	if discarded {
		w.logger.Printf("%s: %v", w.key, syncerr.WithMetadata(syncerr.CodeConcurrentDeleteDiscarded,
			id+" was deleted remotely; unsaved edits dropped", map[string]string{"id": id}))
	}
	w.notifyChange()
}

// ManualSave runs a save cycle now, bypassing the debounce window. It is also
// the retry action after a failed cycle.
func (w *Workspace) ManualSave(ctx context.Context) error {
	return w.scheduler.SaveNow(ctx)
}

// Refresh re-lists the collection and merges it: entities with unsaved local
// edits keep their local value. When nothing is pending afterwards the merged
// collection is written to the fallback store.
func (w *Workspace) Refresh(ctx context.Context) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	w.beginListing()
	items, err := w.api.List(ctx)
	confirmed := w.endListing()
	if closedErr := w.checkOpen(); closedErr != nil {
		return closedErr
	}
	w.state.RecordRefresh(err)
	if err != nil {
		w.notifyChange()
		return err
	}

	var (
		report  guard.MergeReport
		pending bool
	)
	_ = w.cache.Reconcile(w.key, func(coll *cache.Collection) error {
		report = guard.MergeRefresh(coll, items, confirmed...)
		pending = coll.HasPending()
		return nil
	})
	for _, id := range report.Discarded {
		w.logger.Printf("%s: %v", w.key, syncerr.WithMetadata(syncerr.CodeConcurrentDeleteDiscarded,
			id+" was deleted remotely; unsaved edits dropped", map[string]string{"id": id}))
	}

	w.mu.Lock()
	w.source = SourceRemote
	w.mu.Unlock()

	if !pending {
		w.saveSnapshot(ctx)
	}
	w.notifyChange()
	return nil
}

// beginListing starts tracking creates confirmed while a listing is in flight.
// The listing may predate them, so the merge must not treat them as removed.
func (w *Workspace) beginListing() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listing++
	if w.confirmed == nil {
		w.confirmed = make(map[string]struct{})
	}
}

func (w *Workspace) endListing() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.confirmed))
	for id := range w.confirmed {
		ids = append(ids, id)
	}
	w.listing--
	if w.listing == 0 {
		w.confirmed = nil
	}
	return ids
}

func (w *Workspace) noteConfirmed(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listing > 0 {
		w.confirmed[id] = struct{}{}
	}
}
