// Package workspace binds one cached collection to its save state, scheduler
// and remote endpoint. A Workspace is what screens consume: read the entities,
// derive filtered views, mutate optimistically and save.
package workspace

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/fleetdash/internal/autosave"
	"github.com/five82/fleetdash/internal/cache"
	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/fallback"
	"github.com/five82/fleetdash/internal/filter"
	"github.com/five82/fleetdash/internal/guard"
	"github.com/five82/fleetdash/internal/remote"
	"github.com/five82/fleetdash/internal/state"
	"github.com/five82/fleetdash/internal/syncerr"
)

// Source records where the collection was seeded from.
type Source int

const (
	SourceRemote Source = iota
	SourceCache
	SourceFallback
	SourceDefaults
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceCache:
		return "cache"
	case SourceFallback:
		return "snapshot"
	case SourceDefaults:
		return "defaults"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// localIDPrefix marks ids assigned before the server confirmed a create.
const localIDPrefix = "local-"

// IsLocalID reports whether id is a temporary id awaiting a server id.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix) && len(id) > len(localIDPrefix)
}

// Options configures a Workspace. API and Cache are required.
type Options struct {
	Kind  entity.Kind
	Scope string

	API       remote.EntityAPI
	Cache     *cache.Cache
	Snapshots *fallback.Snapshots // nil disables the fallback store
	Policy    guard.Policy
	Engine    *filter.Engine
	AutoSave  *autosave.Config

	Logger *log.Logger
	Now    func() time.Time
	NewID  func() string
}

// Workspace is one collection plus its save state.
type Workspace struct {
	key       cache.Key
	api       remote.EntityAPI
	cache     *cache.Cache
	snapshots *fallback.Snapshots
	policy    guard.Policy
	engine    *filter.Engine
	logger    *log.Logger
	now       func() time.Time
	newID     func() string

	state     *state.Store
	scheduler *autosave.Scheduler
	changes   chan struct{}

	mu       sync.Mutex
	closed   bool
	source   Source
	inflight map[string]struct{} // ids with an immediate create/delete call outstanding

	listing   int                 // refresh listings outstanding
	confirmed map[string]struct{} // server ids confirmed by creates while listing
}

// Open seeds the collection and returns an Idle workspace. The seed comes from
// the cache when the key is still resident, else the remote listing, else a
// fresh fallback snapshot, else built-in defaults. Remote and fallback failures
// never fail Open.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("workspace %s: api is nil", opts.Kind)
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("workspace %s: cache is nil", opts.Kind)
	}
	if opts.Kind == "" {
		return nil, fmt.Errorf("workspace: kind is empty")
	}

	w := &Workspace{
		key:       cache.KeyFor(opts.Kind, opts.Scope),
		api:       opts.API,
		cache:     opts.Cache,
		snapshots: opts.Snapshots,
		policy:    opts.Policy,
		engine:    opts.Engine,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
		changes:   make(chan struct{}, 1),
		inflight:  make(map[string]struct{}),
	}
	if w.engine == nil {
		w.engine = filter.NewEngine(nil)
	}
	if w.logger == nil {
		w.logger = log.New(io.Discard, "", 0)
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.newID == nil {
		w.newID = func() string { return localIDPrefix + uuid.NewString() }
	}
	w.state = &state.Store{Now: w.now}

	w.cache.Pin(w.key)
	w.bootstrap(ctx)

	cfg := autosave.DefaultConfig()
	if opts.AutoSave != nil {
		copied := *opts.AutoSave
		cfg = &copied
	}
	if cfg.Logger == nil {
		cfg.Logger = w.logger
	}
	userHook := cfg.OnChange
	cfg.OnChange = func(st state.SaveState) {
		w.notifyChange()
		if userHook != nil {
			userHook(st)
		}
	}
	w.scheduler = autosave.New(w.state, w.persist, cfg)
	return w, nil
}

func (w *Workspace) bootstrap(ctx context.Context) {
	if coll, ok := w.cache.Get(w.key); ok {
		w.source = SourceCache
		if coll.HasPending() {
			// Left dirty by a previous owner; pick the edits back up.
			w.state.MarkDirty()
		}
		return
	}

	items, err := w.api.List(ctx)
	w.state.RecordRefresh(err)
	if err == nil {
		w.cache.Set(w.key, cache.NewCollection(items...))
		w.source = SourceRemote
		w.logger.Printf("%s: loaded %d entities from remote", w.key, len(items))
		w.saveSnapshot(ctx)
		return
	}
	w.logger.Printf("%s: list failed: %v", w.key, err)

	if snap, ok := w.loadSnapshot(ctx); ok {
		w.cache.Set(w.key, cache.NewCollection(snap.Entities...))
		w.source = SourceFallback
		w.logger.Printf("%s: loaded %d entities from snapshot saved %s", w.key, len(snap.Entities), snap.SavedAt.Format(time.RFC3339))
		return
	}

	defaults := entity.Defaults(w.key.Kind())
	w.cache.Set(w.key, cache.NewCollection(defaults...))
	w.source = SourceDefaults
	w.logger.Printf("%s: using %d built-in defaults", w.key, len(defaults))
}

func (w *Workspace) loadSnapshot(ctx context.Context) (fallback.Snapshot, bool) {
	if w.snapshots == nil {
		return fallback.Snapshot{}, false
	}
	snap, ok := w.snapshots.Load(ctx, w.key.String())
	if !ok {
		return fallback.Snapshot{}, false
	}
	if err := w.policy.CheckSnapshot(snap, w.now()); err != nil {
		w.logger.Printf("%s: %v", w.key, err)
		if rmErr := w.snapshots.Remove(ctx, w.key.String()); rmErr != nil {
			w.logger.Printf("%s: purge stale snapshot: %v", w.key, rmErr)
		}
		return fallback.Snapshot{}, false
	}
	return snap, true
}

func (w *Workspace) saveSnapshot(ctx context.Context) {
	if w.snapshots == nil {
		return
	}
	var entities []entity.Entity
	w.cache.View(w.key, func(coll *cache.Collection) {
		entities = coll.Confirmed()
	})
	w.snapshots.Save(ctx, w.key.String(), entities)
}

// Key returns the cache key.
func (w *Workspace) Key() cache.Key {
	return w.key
}

// Source reports where the collection was last seeded from.
func (w *Workspace) Source() Source {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.source
}

// Entities returns the current entities, optimistic or confirmed, in insertion
// order. It never waits on the network.
func (w *Workspace) Entities() []entity.Entity {
	var out []entity.Entity
	w.cache.View(w.key, func(coll *cache.Collection) {
		out = coll.Entities()
	})
	return out
}

// Get returns one entity.
func (w *Workspace) Get(id string) (entity.Entity, bool) {
	var (
		e  entity.Entity
		ok bool
	)
	w.cache.View(w.key, func(coll *cache.Collection) {
		e, ok = coll.Get(id)
	})
	return e, ok
}

// Children returns the entities whose parent is parentID.
func (w *Workspace) Children(parentID string) []entity.Entity {
	var out []entity.Entity
	w.cache.View(w.key, func(coll *cache.Collection) {
		out = coll.Children(parentID)
	})
	return out
}

// IsDirty reports whether id has unsaved local changes.
func (w *Workspace) IsDirty(id string) bool {
	var dirty bool
	w.cache.View(w.key, func(coll *cache.Collection) {
		dirty = coll.IsDirty(id)
	})
	return dirty
}

// PendingCount returns the number of entities with unsaved changes.
func (w *Workspace) PendingCount() int {
	var n int
	w.cache.View(w.key, func(coll *cache.Collection) {
		n = coll.PendingCount()
	})
	return n
}

// SaveState returns the save indicator state.
func (w *Workspace) SaveState() state.SaveState {
	return w.state.SaveState()
}

// Status returns the save state together with refresh health.
func (w *Workspace) Status() state.Snapshot {
	return w.state.Snapshot()
}

// FilteredView applies c to the current entities.
func (w *Workspace) FilteredView(c filter.Criteria) filter.View {
	return w.engine.Apply(w.Entities(), c, w.now())
}

// Summary aggregates the whole collection.
func (w *Workspace) Summary() filter.Summary {
	return w.engine.Summarize(w.Entities(), w.now())
}

// Changes delivers a signal after any change to entities or save state. Signals
// coalesce; receivers should re-read the workspace.
func (w *Workspace) Changes() <-chan struct{} {
	return w.changes
}

func (w *Workspace) notifyChange() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

// Close stops the scheduler and releases the cache pin. Pending changes stay in
// the cache; results of calls still in flight are dropped.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	if st := w.state.SaveState(); st.NeedsUnloadWarning() {
		w.logger.Printf("%s: closed with %d unsaved entities (%s)", w.key, w.PendingCount(), st.Phase)
	}
	w.scheduler.Close()
	w.cache.Unpin(w.key)
}

func (w *Workspace) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Workspace) checkOpen() error {
	if w.isClosed() {
		return syncerr.ErrWorkspaceClosed
	}
	return nil
}
