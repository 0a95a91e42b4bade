package logging

import (
	"encoding/json"
	"time"
)

// Event is the canonical structured event for the traffic audit stream.
// Required fields: Timestamp, SessionID, App, EventType, Summary.
// Optional fields use omitempty tags.
type Event struct {
	Timestamp time.Time       `json:"ts"`
	SessionID string          `json:"session_id"`
	App       string          `json:"app"`
	EventType string          `json:"event_type"`
	Summary   string          `json:"summary"`
	Tags      []string        `json:"tags,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Event type constants.
const (
	EventRecordAdded        = "record_added"
	EventRecordCompleted    = "record_completed"
	EventRecordFailed       = "record_failed"
	EventMockHit            = "mock_hit"
	EventBreakpointPaused   = "breakpoint_paused"
	EventBreakpointResolved = "breakpoint_resolved"
)

// RecordData is the data payload for record lifecycle events.
type RecordData struct {
	RecordID string `json:"record_id"`
	Method   string `json:"method,omitempty"`
	URL      string `json:"url,omitempty"`
	State    string `json:"state,omitempty"`
	Status   int    `json:"status,omitempty"`
	Category string `json:"category,omitempty"`
}

// MockHitData is the data payload for mock_hit events.
type MockHitData struct {
	RecordID string `json:"record_id"`
	RuleID   string `json:"rule_id"`
	Action   string `json:"action"` // "respond" or "error"
}

// BreakpointData is the data payload for breakpoint events.
type BreakpointData struct {
	RecordID string `json:"record_id"`
	Phase    string `json:"phase"`
	Outcome  string `json:"outcome,omitempty"` // "resumed", "auto_resumed", "cancelled"
}
