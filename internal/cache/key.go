package cache

import (
	"strings"

	"github.com/five82/fleetdash/internal/entity"
)

// Key identifies one collection: an entity kind plus an optional parent scope
// ("rigs", "tasks:rig-7").
type Key string

// KeyFor builds a key for kind, scoped when scope is non-empty.
func KeyFor(kind entity.Kind, scope string) Key {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return Key(kind)
	}
	return Key(string(kind) + ":" + scope)
}

// Kind returns the entity kind portion of the key.
func (k Key) Kind() entity.Kind {
	kind, _, _ := strings.Cut(string(k), ":")
	return entity.Kind(kind)
}

// Scope returns the parent scope portion of the key, if any.
func (k Key) Scope() string {
	_, scope, _ := strings.Cut(string(k), ":")
	return scope
}

func (k Key) String() string {
	return string(k)
}
