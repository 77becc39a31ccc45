package workspace

import (
	"context"
	"fmt"

	"github.com/five82/fleetdash/internal/cache"
	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/state"
	"github.com/five82/fleetdash/internal/syncerr"
)

// Mutate applies recipe optimistically. The change is visible to readers as
// soon as Mutate returns and is saved on the next debounced cycle. Entities
// removed by recipe are deleted remotely on that cycle too.
func (w *Workspace) Mutate(recipe func(*cache.Collection) error) (cache.Report, error) {
	if err := w.checkOpen(); err != nil {
		return cache.Report{}, err
	}
	report, err := w.cache.Update(w.key, recipe)
	if err != nil {
		return cache.Report{}, err
	}
	for _, id := range report.Discarded {
		w.logger.Printf("%s: %v", w.key, syncerr.WithMetadata(syncerr.CodeConcurrentDeleteDiscarded,
			"deleted "+id+" with unsaved edits", map[string]string{"id": id}))
	}
	if report.Changed() {
		w.scheduler.Notify()
		w.notifyChange()
	}
	return report, nil
}

// Edit changes one entity in place.
func (w *Workspace) Edit(id string, fn func(*entity.Entity)) error {
	_, err := w.Mutate(func(coll *cache.Collection) error {
		e, ok := coll.Get(id)
		if !ok {
			return syncerr.WithMetadata(syncerr.CodeNotFound, fmt.Sprintf("%s %s not found", w.key, id), map[string]string{"id": id})
		}
		fn(&e)
		e.ID = id
		coll.Put(e)
		return nil
	})
	return err
}

// Create adds draft optimistically under a temporary id and sends it right
// away. On success the entity is re-keyed to the server id, which is returned.
// On failure the entity stays pending under its temporary id and the next save
// cycle retries it.
func (w *Workspace) Create(ctx context.Context, draft entity.Entity) (entity.Entity, error) {
	if err := w.checkOpen(); err != nil {
		return entity.Entity{}, err
	}
	draft.ID = w.newID()
	if draft.ParentID == "" {
		draft.ParentID = w.key.Scope()
	}
	if draft.Status == "" {
		draft.Status = entity.StatusOpen
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = w.now().UTC()
		draft.UpdatedAt = draft.CreatedAt
	}

	var captured cache.Pending
	w.mu.Lock()
	w.inflight[draft.ID] = struct{}{}
	w.mu.Unlock()
	_, err := w.cache.Update(w.key, func(coll *cache.Collection) error {
		coll.Put(draft)
		return nil
	})
	if err != nil {
		w.release(draft.ID)
		return entity.Entity{}, err
	}
	w.cache.View(w.key, func(coll *cache.Collection) {
		for _, p := range coll.Pending() {
			if p.ID == draft.ID {
				captured = p
			}
		}
	})
	w.notifyChange()

	created, err := w.api.Create(ctx, draft)
	if w.isClosed() {
		w.release(draft.ID)
		return entity.Entity{}, syncerr.ErrWorkspaceClosed
	}
	if err != nil {
		w.release(draft.ID)
		w.logger.Printf("%s: create %s failed: %v", w.key, draft.ID, err)
		w.scheduler.Notify()
		return draft, err
	}
	w.confirmCreate(captured, created)
	w.finishImmediate(draft.ID)
	w.notifyChange()
	return created, nil
}

// confirmCreate re-keys a confirmed create. A copy of the new entity that a
// refresh listed meanwhile is folded into the local one. When the local entity
// was deleted while the create was in flight, the server copy is queued for
// deletion.
func (w *Workspace) confirmCreate(p cache.Pending, created entity.Entity) {
	orphaned, stillDirty := false, false
	_ = w.cache.Reconcile(w.key, func(coll *cache.Collection) error {
		if !coll.Rekey(p.ID, created.ID) {
			orphaned = true
			return nil
		}
		p.ID = created.ID
		stillDirty = coll.Acknowledge(p, &created)
		return nil
	})
	if !orphaned {
		w.noteConfirmed(created.ID)
	}
	if stillDirty {
		// Edited while in flight; the edits go out as an update.
		w.scheduler.Notify()
	}
	if !orphaned {
		return
	}
	w.logger.Printf("%s: %s was deleted while its create was in flight; deleting %s", w.key, p.ID, created.ID)
	_ = w.cache.Reconcile(w.key, func(coll *cache.Collection) error {
		coll.Put(created)
		return nil
	})
	_, _ = w.cache.Update(w.key, func(coll *cache.Collection) error {
		coll.Remove(created.ID)
		return nil
	})
	w.scheduler.Notify()
}

// Delete removes id locally and remotely at once. Confirmation is the caller's
// job. A local-only entity never reaches the remote. If the remote call fails
// the delete stays pending for the next save cycle.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	report, err := w.cache.Update(w.key, func(coll *cache.Collection) error {
		if !coll.Remove(id) {
			return syncerr.WithMetadata(syncerr.CodeNotFound, fmt.Sprintf("%s %s not found", w.key, id), map[string]string{"id": id})
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, d := range report.Discarded {
		w.logger.Printf("%s: %v", w.key, syncerr.WithMetadata(syncerr.CodeConcurrentDeleteDiscarded,
			"deleted "+d+" with unsaved edits", map[string]string{"id": d}))
	}
	w.notifyChange()

	var tomb cache.Pending
	found := false
	w.cache.View(w.key, func(coll *cache.Collection) {
		for _, p := range coll.Pending() {
			if p.ID == id && p.Op == cache.OpDelete {
				tomb, found = p, true
			}
		}
	})
	if !found || w.claim(id) {
		// Local-only, or a create for it is still in flight and will clean up.
		return nil
	}

	err = w.api.Delete(ctx, id)
	if w.isClosed() {
		w.release(id)
		return syncerr.ErrWorkspaceClosed
	}
	if err != nil {
		w.release(id)
		w.logger.Printf("%s: delete %s failed: %v", w.key, id, err)
		w.scheduler.Notify()
		return err
	}
	_ = w.cache.Reconcile(w.key, func(coll *cache.Collection) error {
		coll.Acknowledge(tomb, nil)
		return nil
	})
	w.finishImmediate(id)
	return nil
}

// DiscardUnsynced rolls every pending change back to the last confirmed value
// and returns the number of entities restored. It refuses while a save cycle is
// in flight.
func (w *Workspace) DiscardUnsynced() (int, error) {
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	if w.state.SaveState().Phase == state.Saving {
		return 0, fmt.Errorf("%s: save in progress", w.key)
	}
	n := 0
	_ = w.cache.Reconcile(w.key, func(coll *cache.Collection) error {
		n = coll.Rollback()
		return nil
	})
	w.state.Reset()
	w.logger.Printf("%s: discarded %d unsynced changes", w.key, n)
	w.notifyChange()
	return n, nil
}

// claim marks id as having an immediate call in flight. It reports true when
// another call already holds it.
func (w *Workspace) claim(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inflight[id]; busy {
		return true
	}
	w.inflight[id] = struct{}{}
	return false
}

func (w *Workspace) release(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, id)
}

// finishImmediate releases id after its immediate call was applied. A save
// cycle that skipped id ended Dirty; the scheduler is re-armed to settle it.
func (w *Workspace) finishImmediate(id string) {
	w.release(id)
	if !w.state.SaveState().Settled() {
		w.scheduler.Notify()
	}
}

func (w *Workspace) isInflight(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.inflight[id]
	return ok
}
