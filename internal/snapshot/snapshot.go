package snapshot

import (
	"sync/atomic"
	"time"

	"github.com/hashmap-kz/pgreplmon/internal/pg"
)

// Snapshot is the latest known state of the cluster. It is built once per
// collection cycle and never modified after being published.
type Snapshot struct {
	Primary     pg.Result
	Standby     pg.Result
	CollectedAt time.Time

	// DataConsistent is set only when both row counts were obtained.
	DataConsistent *bool
}

func New(primary, standby pg.Result, collectedAt time.Time) *Snapshot {
	s := &Snapshot{
		Primary:     primary,
		Standby:     standby,
		CollectedAt: collectedAt.UTC(),
	}
	if primary.RowCount != nil && standby.RowCount != nil {
		consistent := *primary.RowCount == *standby.RowCount
		s.DataConsistent = &consistent
	}
	return s
}

// Store holds the current Snapshot. One writer publishes whole snapshots,
// readers always see either the previous or the new one.
type Store struct {
	current atomic.Pointer[Snapshot]
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Publish(snap *Snapshot) {
	s.current.Store(snap)
}

// Load returns the latest snapshot, or nil before the first collection.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}
