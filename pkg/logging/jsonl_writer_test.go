package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLWriter_WriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	w, err := NewJSONLWriter(path)
	require.NoError(t, err)

	events := []*Event{
		{
			Timestamp: time.Now().UTC(),
			SessionID: "s1",
			App:       "snare",
			EventType: EventRecordAdded,
			Summary:   "GET https://example.com/a",
		},
		{
			Timestamp: time.Now().UTC(),
			SessionID: "s1",
			App:       "snare",
			EventType: EventMockHit,
			Summary:   "POST https://example.com/b -> rule r1",
			Data:      json.RawMessage(`{"record_id":"rec-1","rule_id":"r1","action":"respond"}`),
		},
	}
	for _, e := range events {
		require.NoError(t, w.Write(e))
	}
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		got = append(got, e)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, got, 2)
	assert.Equal(t, EventRecordAdded, got[0].EventType)
	assert.Equal(t, EventMockHit, got[1].EventType)
	assert.JSONEq(t, string(events[1].Data), string(got[1].Data))
}

func TestJSONLWriter_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	w, err := NewJSONLWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(&Event{EventType: EventRecordAdded, Summary: "first"}))
	require.NoError(t, w.Close())

	w, err = NewJSONLWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(&Event{EventType: EventRecordCompleted, Summary: "second"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")
	assert.Contains(t, string(data), "second")
}

func TestJSONLWriter_MissingParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does", "not", "exist", "events.jsonl")

	_, err := NewJSONLWriter(path)
	assert.ErrorIs(t, err, ErrCreateLogFile)
}

func TestRotatingJSONLWriter_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	w := NewRotatingJSONLWriter(path, 1, 2)
	require.NoError(t, w.Write(&Event{
		Timestamp: time.Now().UTC(),
		SessionID: "s1",
		App:       "snare",
		EventType: EventBreakpointPaused,
		Summary:   "GET https://example.com/x paused (request)",
	}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), EventBreakpointPaused)
}
