package api

import "net/http"

// TLSTrustMode controls how the transport validates upstream certificates.
type TLSTrustMode string

const (
	TLSTrustSystem   TLSTrustMode = "system"
	TLSTrustInsecure TLSTrustMode = "insecure"
)

const DefaultMaxBodyBytes = 1 << 20 // 1 MiB response body cap

// GatewayConfig is one immutable admission-configuration snapshot. The
// gateway reads a whole snapshot per decision; updates swap the snapshot
// atomically and are never observed partially applied.
type GatewayConfig struct {
	// Enabled turns interception on. Off means every request passes
	// through untouched and unrecorded.
	Enabled bool `json:"enabled"`

	// HostDenyList rejects matching hosts (glob patterns).
	HostDenyList []string `json:"host_deny_list,omitempty"`
	// HostAllowList, when non-empty, admits only matching hosts.
	HostAllowList []string `json:"host_allow_list,omitempty"`
	// AllowedMethods, when non-empty, admits only these methods.
	AllowedMethods []string `json:"allowed_methods,omitempty"`
	// IgnorePathPatterns rejects requests whose URL path matches any
	// glob pattern.
	IgnorePathPatterns []string `json:"ignore_path_patterns,omitempty"`

	// CaptureResponseBody stores response bodies on records, capped at
	// MaxBodyBytes.
	CaptureResponseBody bool  `json:"capture_response_body"`
	MaxBodyBytes        int64 `json:"max_body_bytes,omitempty"`

	TLSTrust TLSTrustMode `json:"tls_trust,omitempty"`

	// Admit is an optional custom predicate consulted during admission.
	// Returning false passes the request through untouched.
	Admit func(*http.Request) bool `json:"-"`
}

// BodyCap returns the effective response body capture cap.
func (c *GatewayConfig) BodyCap() int64 {
	if c.MaxBodyBytes > 0 {
		return c.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}
