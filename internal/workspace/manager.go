package workspace

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/five82/fleetdash/internal/autosave"
	"github.com/five82/fleetdash/internal/cache"
	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/fallback"
	"github.com/five82/fleetdash/internal/filter"
	"github.com/five82/fleetdash/internal/guard"
	"github.com/five82/fleetdash/internal/remote"
)

// APIFactory returns the remote endpoint for a kind and scope.
type APIFactory func(kind entity.Kind, scope string) remote.EntityAPI

// ManagerConfig holds the dependencies shared by every workspace.
type ManagerConfig struct {
	API       APIFactory
	Cache     *cache.Cache
	Snapshots *fallback.Snapshots
	Policy    guard.Policy
	Engine    *filter.Engine
	AutoSave  *autosave.Config
	Logger    *log.Logger
	Now       func() time.Time
}

// Manager is the per-process registry of open workspaces.
type Manager struct {
	config ManagerConfig

	mu         sync.Mutex
	workspaces map[cache.Key]*Workspace

	// opening coalesces concurrent Opens of one key; the bootstrap listing runs
	// outside mu.
	opening singleflight.Group
}

// NewManager creates a Manager. A nil Cache gets a fresh one.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.API == nil {
		return nil, fmt.Errorf("workspace manager: api factory is nil")
	}
	if config.Cache == nil {
		config.Cache = cache.New()
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}
	return &Manager{config: config, workspaces: make(map[cache.Key]*Workspace)}, nil
}

// Open returns the workspace for kind and scope, opening it on first use.
// Concurrent calls for one key share a single bootstrap.
func (m *Manager) Open(ctx context.Context, kind entity.Kind, scope string) (*Workspace, error) {
	key := cache.KeyFor(kind, scope)
	if w, ok := m.lookup(key); ok {
		return w, nil
	}

	v, err, _ := m.opening.Do(key.String(), func() (any, error) {
		if w, ok := m.lookup(key); ok {
			return w, nil
		}
		w, err := Open(ctx, Options{
			Kind:      kind,
			Scope:     scope,
			API:       m.config.API(kind, scope),
			Cache:     m.config.Cache,
			Snapshots: m.config.Snapshots,
			Policy:    m.config.Policy,
			Engine:    m.config.Engine,
			AutoSave:  m.config.AutoSave,
			Logger:    m.config.Logger,
			Now:       m.config.Now,
		})
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.workspaces[key] = w
		m.mu.Unlock()
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Workspace), nil
}

func (m *Manager) lookup(key cache.Key) (*Workspace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workspaces[key]
	return w, ok
}

// Get returns an open workspace.
func (m *Manager) Get(kind entity.Kind, scope string) (*Workspace, bool) {
	return m.lookup(cache.KeyFor(kind, scope))
}

// Close tears down one workspace. Its collection stays cached until swept.
func (m *Manager) Close(kind entity.Kind, scope string) {
	key := cache.KeyFor(kind, scope)
	m.mu.Lock()
	w, ok := m.workspaces[key]
	delete(m.workspaces, key)
	m.mu.Unlock()
	if ok {
		w.Close()
	}
}

// Workspaces returns the open workspaces ordered by key.
func (m *Manager) Workspaces() []*Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Workspace, 0, len(m.workspaces))
	for _, w := range m.workspaces {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// SaveAll saves every unsettled workspace concurrently. Cycles within one
// workspace stay serialized by its scheduler.
func (m *Manager) SaveAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range m.Workspaces() {
		if w.SaveState().Settled() && w.PendingCount() == 0 {
			continue
		}
		g.Go(func() error {
			if err := w.ManualSave(ctx); err != nil {
				return fmt.Errorf("%s: %w", w.key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RefreshAll refreshes every open workspace concurrently and returns the
// first failure.
func (m *Manager) RefreshAll(ctx context.Context) error {
	var g errgroup.Group
	for _, w := range m.Workspaces() {
		g.Go(func() error {
			if err := w.Refresh(ctx); err != nil {
				return fmt.Errorf("%s: %w", w.key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Unsaved returns the keys of workspaces that would lose work if the process
// exited now.
func (m *Manager) Unsaved() []cache.Key {
	var keys []cache.Key
	for _, w := range m.Workspaces() {
		if w.SaveState().NeedsUnloadWarning() {
			keys = append(keys, w.key)
		}
	}
	return keys
}

// Sweep evicts idle cached collections whose workspaces are closed.
func (m *Manager) Sweep() []cache.Key {
	evicted := m.config.Cache.Sweep()
	for _, key := range evicted {
		m.config.Logger.Printf("%s: evicted after retention", key)
	}
	return evicted
}

// CloseAll tears down every workspace.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.workspaces
	m.workspaces = make(map[cache.Key]*Workspace)
	m.mu.Unlock()
	for _, w := range all {
		w.Close()
	}
}
