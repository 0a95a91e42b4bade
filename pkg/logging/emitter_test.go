package logging

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records events in memory for test assertions.
type captureSink struct {
	mu     sync.Mutex
	events []*Event
	closed bool
}

func (s *captureSink) Write(event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Deep copy the event to avoid test races
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestEmitter_MetadataStamping(t *testing.T) {
	sink := &captureSink{}
	emitter := NewEmitter(EmitterConfig{
		SessionID: "session-123",
		App:       "snare",
	}, sink)

	err := emitter.Emit(EventMockHit, "test summary", nil, nil)
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	event := sink.events[0]
	assert.Equal(t, "session-123", event.SessionID)
	assert.Equal(t, "snare", event.App)
	assert.Equal(t, EventMockHit, event.EventType)
	assert.Equal(t, "test summary", event.Summary)
	assert.True(t, event.Timestamp.UTC().Equal(event.Timestamp), "timestamp should be UTC")
}

func TestEmitter_DataMarshaling(t *testing.T) {
	sink := &captureSink{}
	emitter := NewEmitter(EmitterConfig{SessionID: "s", App: "a"}, sink)

	data := &MockHitData{
		RecordID: "rec-1",
		RuleID:   "users-created",
		Action:   "respond",
	}
	err := emitter.Emit(EventMockHit, "test", nil, data)
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	assert.NotNil(t, sink.events[0].Data)

	var parsed MockHitData
	require.NoError(t, json.Unmarshal(sink.events[0].Data, &parsed))
	assert.Equal(t, "users-created", parsed.RuleID)
	assert.Equal(t, "respond", parsed.Action)
}

func TestEmitter_NilData(t *testing.T) {
	sink := &captureSink{}
	emitter := NewEmitter(EmitterConfig{SessionID: "s", App: "a"}, sink)

	err := emitter.Emit(EventRecordAdded, "no payload", nil, nil)
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	assert.Nil(t, sink.events[0].Data)
}

func TestEmitter_MultipleSinks(t *testing.T) {
	first := &captureSink{}
	second := &captureSink{}
	emitter := NewEmitter(EmitterConfig{SessionID: "s", App: "a"}, first, second)

	require.NoError(t, emitter.Emit(EventRecordAdded, "fan out", nil, nil))

	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
}

type failingSink struct{ err error }

func (s *failingSink) Write(*Event) error { return s.err }
func (s *failingSink) Close() error       { return nil }

func TestEmitter_SinkErrorPropagates(t *testing.T) {
	wantErr := errors.New("disk full")
	emitter := NewEmitter(EmitterConfig{SessionID: "s", App: "a"}, &failingSink{err: wantErr})

	err := emitter.Emit(EventRecordAdded, "doomed", nil, nil)
	assert.ErrorIs(t, err, wantErr)
}

func TestEmitter_CloseClosesAllSinks(t *testing.T) {
	first := &captureSink{}
	second := &captureSink{}
	emitter := NewEmitter(EmitterConfig{SessionID: "s", App: "a"}, first, second)

	require.NoError(t, emitter.Close())
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}
