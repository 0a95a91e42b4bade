package logging

import "errors"

// Sentinel errors for the audit stream; sinks wrap these so callers can
// classify failures without parsing messages.
var (
	ErrCreateLogFile = errors.New("audit log: create file")
	ErrWriteEvent    = errors.New("audit log: write event")
	ErrMarshalData   = errors.New("audit log: marshal event data")
	ErrCloseWriter   = errors.New("audit log: close writer")
)
