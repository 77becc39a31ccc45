// Package remotetest provides an in-memory remote.EntityAPI for tests.
package remotetest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/remote"
	"github.com/five82/fleetdash/internal/syncerr"
)

// Call operations recorded by Fake.
const (
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Call is one recorded request.
type Call struct {
	Op     string
	ID     string
	Patch  entity.Patch
	Entity entity.Entity
}

// Fake is a goroutine-safe in-memory collection that records every call.
type Fake struct {
	mu      sync.Mutex
	items   []entity.Entity
	calls   []Call
	nextID  int
	fail    map[string]error
	gate    chan struct{}
	entered chan string
	now     func() time.Time

	// Prefix is prepended to server-assigned ids ("srv-1", "srv-2", ...).
	Prefix string
}

var _ remote.EntityAPI = (*Fake)(nil)

// NewFake returns a Fake holding seed.
func NewFake(seed ...entity.Entity) *Fake {
	f := &Fake{
		fail:    make(map[string]error),
		entered: make(chan string, 64),
		now:     time.Now,
		Prefix:  "srv-",
	}
	for _, e := range seed {
		f.items = append(f.items, e.Clone())
	}
	return f
}

// FailOp makes every call of op fail with err until cleared with a nil err.
func (f *Fake) FailOp(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setFailure(op, err)
}

// FailID makes update and delete calls for id fail with err until cleared.
func (f *Fake) FailID(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setFailure("id:"+id, err)
}

func (f *Fake) setFailure(key string, err error) {
	if err == nil {
		delete(f.fail, key)
		return
	}
	f.fail[key] = err
}

// Hold makes subsequent calls block until Release or until their context ends.
func (f *Fake) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate == nil {
		f.gate = make(chan struct{})
	}
}

// Release unblocks held calls.
func (f *Fake) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Entered receives the op of every call as it starts, before any hold.
func (f *Fake) Entered() <-chan string {
	return f.entered
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsFor returns the recorded calls of one op.
func (f *Fake) CallsFor(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Items returns a copy of the stored records.
func (f *Fake) Items() []entity.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entity.Entity, 0, len(f.items))
	for _, e := range f.items {
		out = append(out, e.Clone())
	}
	return out
}

// Put inserts or replaces a record without recording a call, simulating another
// writer.
func (f *Fake) Put(e entity.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.index(e.ID); i >= 0 {
		f.items[i] = e.Clone()
		return
	}
	f.items = append(f.items, e.Clone())
}

// Drop removes a record without recording a call.
func (f *Fake) Drop(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.index(id); i >= 0 {
		f.items = slices.Delete(f.items, i, i+1)
	}
}

// List implements remote.EntityAPI.
func (f *Fake) List(ctx context.Context) ([]entity.Entity, error) {
	if err := f.enter(ctx, Call{Op: OpList}); err != nil {
		return nil, err
	}
	return f.Items(), nil
}

// Create implements remote.EntityAPI.
func (f *Fake) Create(ctx context.Context, draft entity.Entity) (entity.Entity, error) {
	if err := f.enter(ctx, Call{Op: OpCreate, ID: draft.ID, Entity: draft.Clone()}); err != nil {
		return entity.Entity{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	created := draft.Clone()
	created.ID = fmt.Sprintf("%s%d", f.Prefix, f.nextID)
	now := f.now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now
	f.items = append(f.items, created)
	return created.Clone(), nil
}

// Update implements remote.EntityAPI.
func (f *Fake) Update(ctx context.Context, id string, patch entity.Patch) (entity.Entity, error) {
	if err := f.enter(ctx, Call{Op: OpUpdate, ID: id, Patch: clonePatch(patch)}); err != nil {
		return entity.Entity{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.index(id)
	if i < 0 {
		return entity.Entity{}, syncerr.Rejected("/api/"+id, 404)
	}
	updated, err := entity.Apply(f.items[i], patch)
	if err != nil {
		return entity.Entity{}, syncerr.Wrap(syncerr.CodeSerializationFailure, "apply patch", err)
	}
	updated.UpdatedAt = f.now().UTC()
	f.items[i] = updated
	return updated.Clone(), nil
}

// Delete implements remote.EntityAPI. Deleting a missing record succeeds.
func (f *Fake) Delete(ctx context.Context, id string) error {
	if err := f.enter(ctx, Call{Op: OpDelete, ID: id}); err != nil {
		return err
	}
	f.Drop(id)
	return nil
}

// enter records the call, waits on any hold, then reports injected failures.
func (f *Fake) enter(ctx context.Context, call Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	gate := f.gate
	f.mu.Unlock()

	select {
	case f.entered <- call.Op:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return syncerr.Wrap(syncerr.CodeNetworkUnavailable, "request canceled", ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[call.Op]; err != nil {
		return err
	}
	if call.ID != "" && call.Op != OpCreate {
		if err := f.fail["id:"+call.ID]; err != nil {
			return err
		}
	}
	return nil
}

func (f *Fake) index(id string) int {
	return slices.IndexFunc(f.items, func(e entity.Entity) bool { return e.ID == id })
}

func clonePatch(p entity.Patch) entity.Patch {
	if p == nil {
		return nil
	}
	out := make(entity.Patch, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
