// Package capture holds the bounded, indexed traffic history: a ring buffer
// of TrafficRecords ordered by arrival, with O(1) lookup by id and
// observer notifications for read-side consumers.
package capture

import (
	"log/slog"
	"sync"

	"github.com/snarehq/snare/pkg/api"
)

const DefaultMaxRecords = 1000

// Observer receives store notifications. Callbacks run outside the store
// lock and receive defensive copies.
type Observer interface {
	RecordAdded(record api.TrafficRecord)
	RecordUpdated(record api.TrafficRecord)
	RecordFailed(record api.TrafficRecord)
}

// Store is the single source of truth for observed and synthesized traffic.
// Records live in a fixed-capacity ring ordered by arrival; when full, the
// oldest record is evicted to admit a new one. All mutating operations
// serialize on one mutex held only for the brief mutation itself, never
// across caller code.
type Store struct {
	mu        sync.Mutex
	ring      []api.TrafficRecord
	head      int // slot of the oldest record
	count     int
	index     map[string]int // id -> ring slot
	observers []Observer
	logger    *slog.Logger
}

// NewStore creates a store bounded at maxRecords. Values below one fall
// back to DefaultMaxRecords.
func NewStore(maxRecords int, logger *slog.Logger) *Store {
	if maxRecords < 1 {
		maxRecords = DefaultMaxRecords
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		ring:   make([]api.TrafficRecord, maxRecords),
		index:  make(map[string]int, maxRecords),
		logger: logger.With("component", "capture"),
	}
}

// Add appends a record, evicting the oldest one first when at capacity.
// Eviction and append are a single atomic step from the caller's view: no
// reader ever observes the index missing an entry for a stored record.
func (s *Store) Add(record api.TrafficRecord) {
	s.mu.Lock()
	var slot int
	if s.count == len(s.ring) {
		evicted := s.ring[s.head]
		delete(s.index, evicted.ID)
		slot = s.head
		s.head = (s.head + 1) % len(s.ring)
		s.logger.Debug("evicted oldest record", "id", evicted.ID)
	} else {
		slot = (s.head + s.count) % len(s.ring)
		s.count++
	}
	s.ring[slot] = record
	s.index[record.ID] = slot
	observers := s.observerSnapshot()
	copied := record.Clone()
	s.mu.Unlock()

	for _, o := range observers {
		o.RecordAdded(copied)
	}
}

// Update applies a mutation to the record at id under the store lock.
// Absent ids are a no-op, never an upsert. The mutation function must not
// re-enter the store.
func (s *Store) Update(id string, mutate func(*api.TrafficRecord)) {
	s.mu.Lock()
	slot, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	mutate(&s.ring[slot])
	copied := s.ring[slot].Clone()
	observers := s.observerSnapshot()
	s.mu.Unlock()

	for _, o := range observers {
		o.RecordUpdated(copied)
		if copied.State == api.StateFailed {
			o.RecordFailed(copied)
		}
	}
}

// Record returns a copy of the record at id.
func (s *Store) Record(id string) (api.TrafficRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.index[id]
	if !ok {
		return api.TrafficRecord{}, false
	}
	return s.ring[slot].Clone(), true
}

// Remove deletes the record at id and re-syncs the index. Absent ids are a
// no-op. Removal compacts the ring to preserve arrival order.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return
	}
	s.removeWhereLocked(func(r api.TrafficRecord) bool { return r.ID == id })
}

// RemoveMatching deletes every record the predicate selects and returns how
// many were removed.
func (s *Store) RemoveMatching(pred func(api.TrafficRecord) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeWhereLocked(pred)
}

// Clear drops every record.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = 0
	s.count = 0
	s.index = make(map[string]int, len(s.ring))
}

// Len reports the current number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Snapshot returns an internally consistent deep copy of all records in
// arrival order. Readers never observe a record mid-mutation.
func (s *Store) Snapshot() []api.TrafficRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.TrafficRecord, 0, s.count)
	for i := 0; i < s.count; i++ {
		out = append(out, s.ring[(s.head+i)%len(s.ring)].Clone())
	}
	return out
}

// Register adds an observer. Registration order is notification order.
func (s *Store) Register(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Unregister removes a previously registered observer.
func (s *Store) Unregister(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *Store) observerSnapshot() []Observer {
	out := make([]Observer, len(s.observers))
	copy(out, s.observers)
	return out
}

// removeWhereLocked rewrites the ring without the selected records,
// restarting at slot zero, and rebuilds the index.
func (s *Store) removeWhereLocked(pred func(api.TrafficRecord) bool) int {
	kept := make([]api.TrafficRecord, 0, s.count)
	removed := 0
	for i := 0; i < s.count; i++ {
		r := s.ring[(s.head+i)%len(s.ring)]
		if pred(r) {
			delete(s.index, r.ID)
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return 0
	}
	s.head = 0
	s.count = len(kept)
	copy(s.ring, kept)
	for i, r := range kept {
		s.index[r.ID] = i
	}
	return removed
}
