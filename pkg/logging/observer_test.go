package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarehq/snare/pkg/api"
)

func newTestRecord(state api.RecordState) api.TrafficRecord {
	return api.TrafficRecord{
		ID:    "rec-1",
		State: state,
		Request: api.RequestInfo{
			Method: "GET",
			URL:    "https://example.com/a",
		},
	}
}

func TestStoreObserver_RecordAdded(t *testing.T) {
	sink := &captureSink{}
	obs := NewStoreObserver(NewEmitter(EmitterConfig{SessionID: "s", App: "snare"}, sink))

	obs.RecordAdded(newTestRecord(api.StatePending))

	require.Len(t, sink.events, 1)
	assert.Equal(t, EventRecordAdded, sink.events[0].EventType)
	assert.Contains(t, sink.events[0].Summary, "https://example.com/a")
}

func TestStoreObserver_UpdatesOnlyEmitTerminalSuccess(t *testing.T) {
	sink := &captureSink{}
	obs := NewStoreObserver(NewEmitter(EmitterConfig{SessionID: "s", App: "snare"}, sink))

	// Intermediate updates stay out of the audit stream.
	obs.RecordUpdated(newTestRecord(api.StatePending))
	assert.Empty(t, sink.events)

	obs.RecordUpdated(newTestRecord(api.StateCompleted))
	obs.RecordUpdated(newTestRecord(api.StateMocked))
	require.Len(t, sink.events, 2)
	assert.Equal(t, EventRecordCompleted, sink.events[0].EventType)
	assert.Equal(t, EventRecordCompleted, sink.events[1].EventType)
}

func TestStoreObserver_RecordFailedCarriesCategory(t *testing.T) {
	sink := &captureSink{}
	obs := NewStoreObserver(NewEmitter(EmitterConfig{SessionID: "s", App: "snare"}, sink))

	record := newTestRecord(api.StateFailed)
	record.Error = &api.RecordError{Category: api.ErrorDNS, Message: "no such host"}
	obs.RecordFailed(record)

	require.Len(t, sink.events, 1)
	assert.Equal(t, EventRecordFailed, sink.events[0].EventType)
	assert.Contains(t, string(sink.events[0].Data), string(api.ErrorDNS))
}
