package api

import (
	"strings"
	"time"

	"github.com/snarehq/snare/internal/errx"
)

// Match is the shared predicate shape for mock and breakpoint rules.
// All set fields must match (logical AND); unset fields are wildcards.
type Match struct {
	// URLPattern is a glob over the absolute URL, * matching any run of
	// characters. Empty matches every URL.
	URLPattern string `json:"url_pattern,omitempty"`
	// Method is compared case-insensitively. Empty matches every method.
	Method string `json:"method,omitempty"`
	// Host is a glob over the request host, e.g. "*.example.com".
	Host string `json:"host,omitempty"`
	// BodyJSON matches a gjson path in the request body against an
	// expected string value. Mock rules only.
	BodyJSON *BodyJSONMatch `json:"body_json,omitempty"`
}

// BodyJSONMatch selects a value from a JSON request body by gjson path.
type BodyJSONMatch struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// MockActionType enumerates what a matched mock rule does.
type MockActionType string

const (
	MockRespond MockActionType = "respond"
	MockError   MockActionType = "error"
)

// MockAction is the outcome applied when a mock rule matches. Delay is
// composable with either action type and is honored before delivery.
type MockAction struct {
	Type    MockActionType    `json:"type"`
	Status  int               `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
	Error   ErrorCategory     `json:"error,omitempty"`
	Delay   time.Duration     `json:"delay,omitempty"`
}

// MockRule decides whether a request is answered synthetically.
// Read-only to the gateway; created and edited by the operator.
type MockRule struct {
	ID       string     `json:"id"`
	Name     string     `json:"name,omitempty"`
	Enabled  bool       `json:"enabled"`
	Match    Match      `json:"match"`
	Priority int        `json:"priority"`
	Action   MockAction `json:"action"`
}

// Validate checks the rule is well formed enough to evaluate.
func (r *MockRule) Validate() error {
	if r.ID == "" {
		return errx.Wrapf(ErrInvalidRule, "mock rule missing id")
	}
	switch r.Action.Type {
	case MockRespond:
		if r.Action.Status < 100 || r.Action.Status > 599 {
			return errx.Wrapf(ErrInvalidRule, "mock rule %s: status %d out of range", r.ID, r.Action.Status)
		}
	case MockError:
		if r.Action.Error == "" {
			return errx.Wrapf(ErrInvalidRule, "mock rule %s: error action without category", r.ID)
		}
	default:
		return errx.Wrapf(ErrInvalidRule, "mock rule %s: unknown action %q", r.ID, r.Action.Type)
	}
	return nil
}

// Direction selects which phase(s) of an exchange a breakpoint rule gates.
type Direction string

const (
	DirectionRequest  Direction = "request"
	DirectionResponse Direction = "response"
	DirectionBoth     Direction = "both"
)

// Phase identifies which side of the exchange is being evaluated.
type Phase string

const (
	PhaseRequest  Phase = "request"
	PhaseResponse Phase = "response"
)

// Matches reports whether the direction gates the given phase.
func (d Direction) Matches(phase Phase) bool {
	switch d {
	case DirectionBoth:
		return true
	case DirectionRequest:
		return phase == PhaseRequest
	case DirectionResponse:
		return phase == PhaseResponse
	default:
		return false
	}
}

// BreakpointRule suspends matching traffic for external inspection.
type BreakpointRule struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Enabled   bool      `json:"enabled"`
	Match     Match     `json:"match"`
	Direction Direction `json:"direction"`
	// AutoResume resolves an unattended pause with the original request
	// after this duration. Zero disables the timer.
	AutoResume time.Duration `json:"auto_resume,omitempty"`
}

// Validate checks the rule is well formed enough to evaluate.
func (r *BreakpointRule) Validate() error {
	if r.ID == "" {
		return errx.Wrapf(ErrInvalidRule, "breakpoint rule missing id")
	}
	switch r.Direction {
	case DirectionRequest, DirectionResponse, DirectionBoth:
	default:
		return errx.Wrapf(ErrInvalidRule, "breakpoint rule %s: unknown direction %q", r.ID, r.Direction)
	}
	if r.AutoResume < 0 {
		return errx.Wrapf(ErrInvalidRule, "breakpoint rule %s: negative auto-resume", r.ID)
	}
	return nil
}

// NormalizeMethod upper-cases and trims a method predicate.
func NormalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}
