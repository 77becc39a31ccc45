package guard

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/five82/fleetdash/internal/fallback"
	"github.com/five82/fleetdash/internal/syncerr"
)

// Policy decides whether a fallback snapshot may seed a collection.
type Policy struct {
	// Horizon is the maximum snapshot age; zero accepts any age.
	Horizon time.Duration

	// RetiredLabels are lower-case glob patterns matched against entity ids and
	// names. A snapshot containing a match predates a data cleanup.
	RetiredLabels []string
}

// CheckSnapshot returns a StaleSnapshotDiscarded error when snap must not be
// used.
func (p Policy) CheckSnapshot(snap fallback.Snapshot, now time.Time) error {
	if p.Horizon > 0 {
		if snap.SavedAt.IsZero() {
			return stale(snap.Key, "no save time")
		}
		if age := now.Sub(snap.SavedAt); age > p.Horizon {
			return stale(snap.Key, fmt.Sprintf("age %s exceeds horizon %s", age.Round(time.Second), p.Horizon))
		}
	}
	for _, e := range snap.Entities {
		if label, ok := p.retired(e.ID, e.Name); ok {
			return stale(snap.Key, fmt.Sprintf("entity %s matches retired label %q", e.ID, label))
		}
	}
	return nil
}

func (p Policy) retired(values ...string) (string, bool) {
	for _, pattern := range p.RetiredLabels {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		for _, v := range values {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "" {
				continue
			}
			if ok, err := path.Match(pattern, v); err == nil && ok {
				return pattern, true
			}
			if v == pattern {
				return pattern, true
			}
		}
	}
	return "", false
}

func stale(key, reason string) error {
	return syncerr.WithMetadata(syncerr.CodeStaleSnapshotDiscarded,
		"snapshot "+key+": "+reason, map[string]string{"key": key})
}
