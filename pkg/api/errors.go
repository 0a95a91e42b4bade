package api

import "errors"

var (
	ErrRecordNotFound  = errors.New("traffic record not found")
	ErrMockInjected    = errors.New("synthetic failure injected by mock rule")
	ErrPauseCancelled  = errors.New("paused request cancelled")
	// ErrRequestCancelled marks a cancellation that did not involve a
	// pause, such as the caller's context expiring mid-flight.
	ErrRequestCancelled = errors.New("request cancelled")
	ErrInvalidRule      = errors.New("invalid rule")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrGatewayDisabled  = errors.New("interception is disabled")
)
