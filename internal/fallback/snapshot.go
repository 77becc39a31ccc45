package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/syncerr"
)

// SnapshotVersion is the payload format written by Encode.
const SnapshotVersion = 1

// Snapshot is the serialized form of one collection.
type Snapshot struct {
	Key      string          `json:"key"`
	SavedAt  time.Time       `json:"savedAt"`
	Version  int             `json:"version"`
	Entities []entity.Entity `json:"entities"`
}

// Encode serializes a snapshot. Failures are reported as SerializationFailure.
func Encode(s Snapshot) ([]byte, error) {
	if s.Version == 0 {
		s.Version = SnapshotVersion
	}
	if s.Entities == nil {
		s.Entities = []entity.Entity{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.CodeSerializationFailure, "encode snapshot "+s.Key, err)
	}
	return data, nil
}

// Decode parses a snapshot payload. Unknown versions and malformed payloads are
// reported as SerializationFailure.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, syncerr.Wrap(syncerr.CodeSerializationFailure, "decode snapshot", err)
	}
	if s.Version != SnapshotVersion {
		return Snapshot{}, syncerr.New(syncerr.CodeSerializationFailure,
			fmt.Sprintf("unsupported snapshot version %d", s.Version))
	}
	return s, nil
}

// Snapshots reads and writes collection snapshots through a Store. Every failure
// is logged and absorbed; the in-memory cache stays authoritative.
type Snapshots struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

// SnapshotsOption configures Snapshots.
type SnapshotsOption func(*Snapshots)

// WithLogger sets the logger used for absorbed failures.
func WithLogger(logger *log.Logger) SnapshotsOption {
	return func(s *Snapshots) { s.logger = logger }
}

// WithClock overrides the clock used to stamp SavedAt.
func WithClock(now func() time.Time) SnapshotsOption {
	return func(s *Snapshots) { s.now = now }
}

// NewSnapshots wraps store.
func NewSnapshots(store Store, opts ...SnapshotsOption) *Snapshots {
	s := &Snapshots{
		store:  store,
		logger: log.New(io.Discard, "", 0),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the snapshot stored under key. A missing, unreadable, or
// undecodable snapshot is reported as absent.
func (s *Snapshots) Load(ctx context.Context, key string) (Snapshot, bool) {
	data, found, err := s.store.Load(ctx, key)
	if err != nil {
		s.logger.Printf("load %s: %v", key, err)
		return Snapshot{}, false
	}
	if !found {
		return Snapshot{}, false
	}
	snap, err := Decode(data)
	if err != nil {
		s.logger.Printf("load %s: %v", key, err)
		return Snapshot{}, false
	}
	if snap.Key == "" {
		snap.Key = key
	}
	return snap, true
}

// Save writes entities as the snapshot for key and reports whether it was stored.
func (s *Snapshots) Save(ctx context.Context, key string, entities []entity.Entity) bool {
	data, err := Encode(Snapshot{Key: key, SavedAt: s.now().UTC(), Entities: entities})
	if err != nil {
		s.logger.Printf("save %s: %v", key, err)
		return false
	}
	if err := s.store.Save(ctx, key, data); err != nil {
		s.logger.Printf("save %s: %v", key, syncerr.Wrap(syncerr.CodeSerializationFailure, "write snapshot", err))
		return false
	}
	return true
}

// Remove deletes the snapshot for key.
func (s *Snapshots) Remove(ctx context.Context, key string) error {
	return s.store.Remove(ctx, key)
}
