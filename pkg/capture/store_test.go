package capture

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarehq/snare/pkg/api"
)

func newRecord(id string) api.TrafficRecord {
	return api.TrafficRecord{
		ID:        id,
		CreatedAt: time.Now(),
		State:     api.StatePending,
		Request: api.RequestInfo{
			Method: "GET",
			URL:    "https://example.com/" + id,
		},
	}
}

func TestStore_AddAndLookup(t *testing.T) {
	s := NewStore(10, nil)
	s.Add(newRecord("a"))

	got, ok := s.Record("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, api.StatePending, got.State)

	_, ok = s.Record("missing")
	assert.False(t, ok)
}

func TestStore_RingBufferEviction(t *testing.T) {
	s := NewStore(2, nil)
	s.Add(newRecord("a"))
	s.Add(newRecord("b"))
	s.Add(newRecord("c"))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].ID)
	assert.Equal(t, "c", snap[1].ID)

	_, ok := s.Record("a")
	assert.False(t, ok, "evicted record must be unreachable by id")
}

func TestStore_RetainsMostRecentBeyondCapacity(t *testing.T) {
	const max = 5
	s := NewStore(max, nil)
	for i := 0; i < 20; i++ {
		s.Add(newRecord(fmt.Sprintf("r%02d", i)))
	}

	snap := s.Snapshot()
	require.Len(t, snap, max)
	for i, r := range snap {
		assert.Equal(t, fmt.Sprintf("r%02d", 15+i), r.ID, "oldest evicted first")
	}
}

func TestStore_UpdateMutatesInPlace(t *testing.T) {
	s := NewStore(10, nil)
	s.Add(newRecord("a"))

	s.Update("a", func(r *api.TrafficRecord) {
		r.State = api.StateCompleted
		r.Response = &api.ResponseInfo{StatusCode: 200}
	})

	got, ok := s.Record("a")
	require.True(t, ok)
	assert.Equal(t, api.StateCompleted, got.State)
	require.NotNil(t, got.Response)
	assert.Equal(t, 200, got.Response.StatusCode)
}

func TestStore_UpdateAbsentIsNoOp(t *testing.T) {
	s := NewStore(10, nil)
	called := false
	s.Update("nope", func(r *api.TrafficRecord) { called = true })
	assert.False(t, called)
	assert.Equal(t, 0, s.Len())
}

func TestStore_RemoveAndRemoveMatching(t *testing.T) {
	s := NewStore(10, nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		s.Add(newRecord(id))
	}

	s.Remove("b")
	_, ok := s.Record("b")
	assert.False(t, ok)
	assert.Equal(t, 3, s.Len())

	removed := s.RemoveMatching(func(r api.TrafficRecord) bool {
		return r.ID == "a" || r.ID == "d"
	})
	assert.Equal(t, 2, removed)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "c", snap[0].ID)

	// Index must stay coherent after compaction.
	got, ok := s.Record("c")
	require.True(t, ok)
	assert.Equal(t, "c", got.ID)

	s.Add(newRecord("e"))
	snap = s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, []string{"c", "e"}, []string{snap[0].ID, snap[1].ID})
}

func TestStore_SnapshotIsIsolatedCopy(t *testing.T) {
	s := NewStore(10, nil)
	rec := newRecord("a")
	rec.Request.Headers = map[string]string{"Accept": "application/json"}
	s.Add(rec)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Request.Headers["Accept"] = "mutated"
	snap[0].State = api.StateFailed

	got, ok := s.Record("a")
	require.True(t, ok)
	assert.Equal(t, "application/json", got.Request.Headers["Accept"])
	assert.Equal(t, api.StatePending, got.State)
}

type recordingObserver struct {
	mu      sync.Mutex
	added   []string
	updated []string
	failed  []string
}

func (o *recordingObserver) RecordAdded(r api.TrafficRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.added = append(o.added, r.ID)
}

func (o *recordingObserver) RecordUpdated(r api.TrafficRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updated = append(o.updated, r.ID)
}

func (o *recordingObserver) RecordFailed(r api.TrafficRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, r.ID)
}

func TestStore_ObserverNotifications(t *testing.T) {
	s := NewStore(10, nil)
	obs := &recordingObserver{}
	s.Register(obs)

	s.Add(newRecord("a"))
	s.Update("a", func(r *api.TrafficRecord) {
		r.State = api.StateFailed
		r.Error = &api.RecordError{Category: api.ErrorTimeout, Message: "deadline"}
	})

	assert.Equal(t, []string{"a"}, obs.added)
	assert.Equal(t, []string{"a"}, obs.updated)
	assert.Equal(t, []string{"a"}, obs.failed)

	s.Unregister(obs)
	s.Add(newRecord("b"))
	assert.Equal(t, []string{"a"}, obs.added, "unregistered observer stops receiving")
}

func TestStore_ConcurrentAddUpdateSnapshot(t *testing.T) {
	s := NewStore(64, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("w%d-%d", n, j)
				s.Add(newRecord(id))
				s.Update(id, func(r *api.TrafficRecord) {
					r.State = api.StateCompleted
					r.Response = &api.ResponseInfo{StatusCode: 204}
				})
				_ = s.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 64, s.Len())
	for _, r := range s.Snapshot() {
		assert.Equal(t, api.StateCompleted, r.State)
		require.NotNil(t, r.Response)
	}
}

func TestStore_StateInvariants(t *testing.T) {
	s := NewStore(10, nil)
	s.Add(newRecord("pending"))

	failed := newRecord("failed")
	s.Add(failed)
	s.Update("failed", func(r *api.TrafficRecord) {
		r.State = api.StateFailed
		r.Error = &api.RecordError{Category: api.ErrorDNS, Message: "no such host"}
	})

	done := newRecord("done")
	s.Add(done)
	s.Update("done", func(r *api.TrafficRecord) {
		r.State = api.StateCompleted
		r.Response = &api.ResponseInfo{StatusCode: 200}
	})

	for _, r := range s.Snapshot() {
		switch r.State {
		case api.StatePending, api.StateCancelled:
			assert.Nil(t, r.Response, r.ID)
			assert.Nil(t, r.Error, r.ID)
		case api.StateFailed:
			assert.NotNil(t, r.Error, r.ID)
			assert.Nil(t, r.Response, r.ID)
		case api.StateCompleted, api.StateMocked:
			assert.NotNil(t, r.Response, r.ID)
			assert.Nil(t, r.Error, r.ID)
		}
	}
}
