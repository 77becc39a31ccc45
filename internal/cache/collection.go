package cache

import (
	"maps"
	"slices"
	"sort"

	"github.com/five82/fleetdash/internal/entity"
)

// Op is the kind of change pending for an entity.
type Op int

const (
	OpCreate Op = iota
	OpUpdate
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// change is the ledger record for one entity with unconfirmed local edits.
type change struct {
	op      Op
	fields  map[string]uint64 // field name -> version of last local touch
	version uint64            // version of the most recent touch
	seq     uint64            // insertion sequence, kept for tombstones
	base    *entity.Entity    // last confirmed value; nil for local creates
}

func (ch *change) clone() *change {
	dup := *ch
	dup.fields = maps.Clone(ch.fields)
	if ch.base != nil {
		base := ch.base.Clone()
		dup.base = &base
	}
	return &dup
}

// Pending is a captured view of one ledger record, used by a persistence cycle.
type Pending struct {
	ID      string
	Op      Op
	Entity  entity.Entity // current local value; zero for deletes
	Fields  []string      // touched fields, sorted
	Version uint64
}

// Patch returns the delta to send for an update.
func (p Pending) Patch() entity.Patch {
	return entity.PatchOf(p.Entity, p.Fields)
}

// Collection is an id-keyed set of entities with stable insertion order, a parent
// index, and a ledger of pending local changes. The zero value is not usable; use
// NewCollection.
type Collection struct {
	items    map[string]entity.Entity
	seq      map[string]uint64
	nextSeq  uint64
	children map[string]map[string]struct{}
	ledger   map[string]*change
	version  uint64
}

// NewCollection builds a collection holding entities in the given order. Nothing
// is marked pending.
func NewCollection(entities ...entity.Entity) *Collection {
	c := &Collection{
		items:    make(map[string]entity.Entity, len(entities)),
		seq:      make(map[string]uint64, len(entities)),
		children: make(map[string]map[string]struct{}),
		ledger:   make(map[string]*change),
	}
	for _, e := range entities {
		c.Put(e)
	}
	return c
}

// Clone returns a deep copy.
func (c *Collection) Clone() *Collection {
	dup := &Collection{
		items:    make(map[string]entity.Entity, len(c.items)),
		seq:      maps.Clone(c.seq),
		nextSeq:  c.nextSeq,
		children: make(map[string]map[string]struct{}, len(c.children)),
		ledger:   make(map[string]*change, len(c.ledger)),
		version:  c.version,
	}
	for id, e := range c.items {
		dup.items[id] = e.Clone()
	}
	for parent, ids := range c.children {
		dup.children[parent] = maps.Clone(ids)
	}
	for id, ch := range c.ledger {
		dup.ledger[id] = ch.clone()
	}
	return dup
}

// Len returns the number of live entities.
func (c *Collection) Len() int {
	return len(c.items)
}

// Get returns a copy of the entity with id.
func (c *Collection) Get(id string) (entity.Entity, bool) {
	e, ok := c.items[id]
	if !ok {
		return entity.Entity{}, false
	}
	return e.Clone(), true
}

// Put inserts or replaces an entity. New ids are appended to the insertion order.
func (c *Collection) Put(e entity.Entity) {
	if prev, ok := c.items[e.ID]; ok {
		c.unindex(prev)
	} else {
		c.nextSeq++
		c.seq[e.ID] = c.nextSeq
	}
	c.items[e.ID] = e.Clone()
	c.index(e)
}

// Remove deletes the entity with id and reports whether it existed.
func (c *Collection) Remove(id string) bool {
	e, ok := c.items[id]
	if !ok {
		return false
	}
	c.unindex(e)
	delete(c.items, id)
	delete(c.seq, id)
	return true
}

// IDs returns entity ids in insertion order.
func (c *Collection) IDs() []string {
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return c.seq[ids[i]] < c.seq[ids[j]] })
	return ids
}

// Entities returns copies of all entities in insertion order.
func (c *Collection) Entities() []entity.Entity {
	ids := c.IDs()
	out := make([]entity.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.items[id].Clone())
	}
	return out
}

// Confirmed returns the last value the remote store acknowledged for every
// entity, in insertion order. Local creates are left out, edited entities
// appear as their confirmed base, and entities pending deletion are still
// listed.
func (c *Collection) Confirmed() []entity.Entity {
	type ordered struct {
		seq uint64
		e   entity.Entity
	}
	out := make([]ordered, 0, len(c.items))
	for id, e := range c.items {
		ch, dirty := c.ledger[id]
		switch {
		case !dirty:
			out = append(out, ordered{c.seq[id], e.Clone()})
		case ch.op == OpCreate || ch.base == nil:
		default:
			out = append(out, ordered{c.seq[id], ch.base.Clone()})
		}
	}
	for id, ch := range c.ledger {
		if _, live := c.items[id]; live || ch.base == nil {
			continue
		}
		out = append(out, ordered{ch.seq, ch.base.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })

	entities := make([]entity.Entity, len(out))
	for i, o := range out {
		entities[i] = o.e
	}
	return entities
}

// Children returns the entities whose ParentID is parentID, in insertion order.
func (c *Collection) Children(parentID string) []entity.Entity {
	ids := slices.Collect(maps.Keys(c.children[parentID]))
	sort.Slice(ids, func(i, j int) bool { return c.seq[ids[i]] < c.seq[ids[j]] })
	out := make([]entity.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.items[id].Clone())
	}
	return out
}

func (c *Collection) index(e entity.Entity) {
	if e.ParentID == "" {
		return
	}
	ids := c.children[e.ParentID]
	if ids == nil {
		ids = make(map[string]struct{})
		c.children[e.ParentID] = ids
	}
	ids[e.ID] = struct{}{}
}

func (c *Collection) unindex(e entity.Entity) {
	if e.ParentID == "" {
		return
	}
	ids := c.children[e.ParentID]
	delete(ids, e.ID)
	if len(ids) == 0 {
		delete(c.children, e.ParentID)
	}
}

// IsDirty reports whether id has unconfirmed local changes.
func (c *Collection) IsDirty(id string) bool {
	_, ok := c.ledger[id]
	return ok
}

// PendingOp returns the pending operation for id, if any.
func (c *Collection) PendingOp(id string) (Op, bool) {
	ch, ok := c.ledger[id]
	if !ok {
		return 0, false
	}
	return ch.op, true
}

// HasPending reports whether any entity has unconfirmed local changes.
func (c *Collection) HasPending() bool {
	return len(c.ledger) > 0
}

// PendingCount returns the number of entities with unconfirmed changes.
func (c *Collection) PendingCount() int {
	return len(c.ledger)
}

// Pending captures the ledger in insertion order.
func (c *Collection) Pending() []Pending {
	out := make([]Pending, 0, len(c.ledger))
	for id, ch := range c.ledger {
		p := Pending{
			ID:      id,
			Op:      ch.op,
			Fields:  slices.Sorted(maps.Keys(ch.fields)),
			Version: ch.version,
		}
		if e, ok := c.items[id]; ok {
			p.Entity = e.Clone()
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return c.ledger[out[i].ID].seq < c.ledger[out[j].ID].seq
	})
	return out
}

// Acknowledge records that p reached the remote store. Fields touched after p was
// captured stay pending. confirmed is the server's copy, when it returned one; it
// replaces the local entity only when nothing is left pending. It reports whether
// the entity still has pending changes.
func (c *Collection) Acknowledge(p Pending, confirmed *entity.Entity) bool {
	ch, ok := c.ledger[p.ID]
	if !ok {
		return false
	}
	if p.Op == OpDelete {
		if ch.op == OpDelete {
			delete(c.ledger, p.ID)
		}
		return c.IsDirty(p.ID)
	}
	if ch.op == OpDelete {
		return true
	}
	for f, v := range ch.fields {
		if v <= p.Version {
			delete(ch.fields, f)
		}
	}
	if ch.op == OpCreate && ch.version > p.Version {
		// Edited while the create was in flight; the follow-up goes out as an update.
		ch.op = OpUpdate
	}
	if confirmed != nil {
		base := confirmed.Clone()
		ch.base = &base
	}
	if ch.op == OpCreate || len(ch.fields) == 0 {
		delete(c.ledger, p.ID)
		if confirmed != nil {
			if _, live := c.items[p.ID]; live {
				c.Put(*confirmed)
			}
		}
		return false
	}
	return true
}

// Rekey moves an entity and its ledger record to a server-assigned id, keeping
// its position in the insertion order. It reports false only when oldID is gone.
//
// newID may already be present when a refresh listed the server copy before the
// create was confirmed. A listed copy with nothing pending is replaced by the
// local entity. A listed copy the user has since edited or deleted wins, and the
// local entity is dropped.
func (c *Collection) Rekey(oldID, newID string) bool {
	if oldID == newID {
		return true
	}
	e, ok := c.items[oldID]
	if !ok {
		return false
	}
	seq := c.seq[oldID]
	c.unindex(e)
	delete(c.items, oldID)
	delete(c.seq, oldID)
	ch, hasChange := c.ledger[oldID]
	delete(c.ledger, oldID)

	if _, pending := c.ledger[newID]; pending {
		return true
	}
	if listed, taken := c.items[newID]; taken {
		c.unindex(listed)
	}
	e.ID = newID
	c.items[newID] = e
	c.seq[newID] = seq
	c.index(e)
	if hasChange {
		c.ledger[newID] = ch
	}
	return true
}

// DiscardPending drops the ledger record for id without touching the entity.
func (c *Collection) DiscardPending(id string) bool {
	if _, ok := c.ledger[id]; !ok {
		return false
	}
	delete(c.ledger, id)
	return true
}

// Rollback restores every entity with pending changes to its last confirmed value:
// local creates are removed, edits are reverted, deletes are undone. It returns the
// number of entities restored.
func (c *Collection) Rollback() int {
	n := 0
	for id, ch := range c.ledger {
		switch {
		case ch.op == OpCreate || ch.base == nil:
			c.Remove(id)
		default:
			base := ch.base.Clone()
			if _, live := c.items[id]; !live {
				c.seq[id] = ch.seq
				c.items[id] = base
				c.index(base)
			} else {
				c.Put(base)
			}
		}
		delete(c.ledger, id)
		n++
	}
	return n
}

// touch records local edits to fields of id. before is the last value seen prior
// to this edit, used as the confirmed baseline on first touch.
func (c *Collection) touch(id string, op Op, fields []string, before *entity.Entity) {
	c.version++
	ch, ok := c.ledger[id]
	if !ok {
		ch = &change{op: op, fields: make(map[string]uint64), seq: c.seq[id]}
		if before != nil {
			base := before.Clone()
			ch.base = &base
		}
		c.ledger[id] = ch
	}
	if ch.op == OpDelete && op != OpDelete {
		// Re-added after a local delete: the remote copy still exists.
		ch.op = OpUpdate
	}
	for _, f := range fields {
		ch.fields[f] = c.version
	}
	ch.version = c.version
}
