// Package cache holds the in-memory mirror of remote collections.
package cache

import (
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/five82/fleetdash/internal/entity"
)

// Report summarizes what an optimistic update changed.
type Report struct {
	Created   []string
	Updated   []string
	Removed   []string
	Discarded []string // removed entities whose pending edits were dropped
}

// Changed reports whether the update touched anything.
func (r Report) Changed() bool {
	return len(r.Created)+len(r.Updated)+len(r.Removed) > 0
}

// Cache maps keys to collections. Every operation is atomic with respect to the
// others; readers receive defensive copies.
type Cache struct {
	mu        sync.Mutex
	entries   map[Key]*cacheEntry
	pins      map[Key]int
	retention time.Duration
	now       func() time.Time
	logger    *log.Logger
}

type cacheEntry struct {
	coll       *Collection
	lastAccess time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithRetention sets how long an idle, fully synced collection is kept.
// Zero disables eviction.
func WithRetention(d time.Duration) Option {
	return func(c *Cache) { c.retention = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for discard notices.
func WithLogger(logger *log.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]*cacheEntry),
		pins:    make(map[Key]int),
		now:     time.Now,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the collection stored under key.
func (c *Cache) Get(key Key) (*Collection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry.lastAccess = c.now()
	return entry.coll.Clone(), true
}

// View calls fn with the stored collection without copying it. fn must not retain
// or modify the collection.
func (c *Cache) View(key Key, fn func(*Collection)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	entry.lastAccess = c.now()
	fn(entry.coll)
	return true
}

// Set replaces the collection stored under key.
func (c *Cache) Set(key Key, coll *Collection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheEntry{coll: coll.Clone(), lastAccess: c.now()}
}

// Invalidate evicts key and reports whether it was present.
func (c *Cache) Invalidate(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Keys returns the stored keys in sorted order.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Update applies an optimistic mutation. recipe receives a working copy of the
// collection (empty when key is absent); if it returns an error nothing is stored.
// Differences between the previous and resulting collection are recorded as
// pending changes.
func (c *Cache) Update(key Key, recipe func(*Collection) error) (Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := NewCollection()
	if entry, ok := c.entries[key]; ok {
		before = entry.coll
	}
	after := before.Clone()
	if err := recipe(after); err != nil {
		return Report{}, err
	}
	report := track(before, after)
	for _, id := range report.Discarded {
		c.logger.Printf("%s: discarded pending change for deleted entity %s", key, id)
	}
	c.entries[key] = &cacheEntry{coll: after, lastAccess: c.now()}
	return report, nil
}

// Reconcile applies confirmed state (sync results, refresh merges). Nothing
// recipe does is recorded as pending.
func (c *Cache) Reconcile(key Key, recipe func(*Collection) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{coll: NewCollection()}
	}
	working := entry.coll.Clone()
	if err := recipe(working); err != nil {
		return err
	}
	c.entries[key] = &cacheEntry{coll: working, lastAccess: c.now()}
	return nil
}

// Pin protects key from Sweep until a matching Unpin. Pins nest.
func (c *Cache) Pin(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins[key]++
}

// Unpin releases one Pin.
func (c *Cache) Unpin(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pins[key] <= 1 {
		delete(c.pins, key)
		return
	}
	c.pins[key]--
}

// Sweep evicts unpinned collections idle longer than the retention that have
// nothing pending, returning the evicted keys.
func (c *Cache) Sweep() []Key {
	if c.retention <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.retention)
	var evicted []Key
	for key, entry := range c.entries {
		if c.pins[key] > 0 || entry.lastAccess.After(cutoff) || entry.coll.HasPending() {
			continue
		}
		delete(c.entries, key)
		evicted = append(evicted, key)
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i] < evicted[j] })
	return evicted
}

// track records the differences between before and after in after's ledger.
func track(before, after *Collection) Report {
	var report Report
	for _, id := range after.IDs() {
		now := after.items[id]
		prev, existed := before.items[id]
		if !existed {
			if ch, tomb := after.ledger[id]; tomb && ch.op == OpDelete && ch.base != nil {
				// Restored after a local delete that has not been sent yet.
				fields := entity.Diff(*ch.base, now)
				if len(fields) == 0 {
					delete(after.ledger, id)
				} else {
					after.touch(id, OpUpdate, fields, nil)
				}
				report.Updated = append(report.Updated, id)
				continue
			}
			after.touch(id, OpCreate, nil, nil)
			report.Created = append(report.Created, id)
			continue
		}
		fields := entity.Diff(prev, now)
		if len(fields) == 0 {
			continue
		}
		after.touch(id, OpUpdate, fields, &prev)
		report.Updated = append(report.Updated, id)
	}
	for _, id := range before.IDs() {
		if _, still := after.items[id]; still {
			continue
		}
		report.Removed = append(report.Removed, id)
		ch, pending := after.ledger[id]
		switch {
		case pending && ch.op == OpCreate:
			// Never reached the remote store; nothing to delete there.
			delete(after.ledger, id)
		case pending:
			if len(ch.fields) > 0 {
				report.Discarded = append(report.Discarded, id)
			}
			ch.op = OpDelete
			ch.fields = make(map[string]uint64)
			after.version++
			ch.version = after.version
		default:
			prev := before.items[id]
			after.version++
			base := prev.Clone()
			after.ledger[id] = &change{
				op:      OpDelete,
				fields:  make(map[string]uint64),
				version: after.version,
				seq:     before.seq[id],
				base:    &base,
			}
		}
	}
	return report
}
