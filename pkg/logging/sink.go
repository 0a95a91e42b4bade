package logging

// Sink is one destination for the traffic audit stream: a JSONL file, a
// rotating file, or anything else that can take events one at a time.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Write persists or forwards a single audit event.
	// Implementations should not modify the event.
	Write(event *Event) error

	// Close flushes any buffered events and releases resources.
	Close() error
}
