package api

import (
	"strings"
	"time"
)

// RecordState is the lifecycle state of a TrafficRecord. Transitions are
// one-way: Pending moves to exactly one terminal state and never changes
// again afterwards.
type RecordState string

const (
	StatePending   RecordState = "pending"
	StateCompleted RecordState = "completed"
	StateFailed    RecordState = "failed"
	StateCancelled RecordState = "cancelled"
	StateMocked    RecordState = "mocked"
)

// Terminal reports whether the state is final.
func (s RecordState) Terminal() bool {
	return s != StatePending
}

// ErrorCategory classifies terminal failures. Categories mirror what the
// transport collaborator can distinguish plus the synthetic mock failure.
type ErrorCategory string

const (
	ErrorTimeout      ErrorCategory = "timeout"
	ErrorNoConnection ErrorCategory = "no_connection"
	ErrorDNS          ErrorCategory = "dns_failure"
	ErrorTLS          ErrorCategory = "tls_error"
	ErrorCancelled    ErrorCategory = "cancelled"
	ErrorUnreachable  ErrorCategory = "unreachable"
	ErrorClient       ErrorCategory = "client_error"
	ErrorServer       ErrorCategory = "server_error"
	ErrorMockInjected ErrorCategory = "mock_injected"
	ErrorOther        ErrorCategory = "other"
)

// Retryable reports whether a failure in this category is worth retrying.
// Advisory only; nothing in this layer retries automatically.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case ErrorTimeout, ErrorNoConnection, ErrorUnreachable, ErrorServer:
		return true
	default:
		return false
	}
}

// RecordError is the failure payload attached to a failed record.
type RecordError struct {
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`
}

// RequestInfo captures the outbound half of an exchange.
type RequestInfo struct {
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	Timeout     time.Duration     `json:"timeout,omitempty"`
	CachePolicy string            `json:"cache_policy,omitempty"`
	BodySize    int64             `json:"body_size,omitempty"`
}

// Header does a case-insensitive lookup against the request headers.
func (r *RequestInfo) Header(name string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Timing is the duration breakdown reported by the transport.
type Timing struct {
	DNSMS       int64 `json:"dns_ms,omitempty"`
	ConnectMS   int64 `json:"connect_ms,omitempty"`
	TLSMS       int64 `json:"tls_ms,omitempty"`
	FirstByteMS int64 `json:"first_byte_ms,omitempty"`
	TotalMS     int64 `json:"total_ms"`
}

// TLSInfo summarises the negotiated connection security.
type TLSInfo struct {
	Version     string `json:"version,omitempty"`
	CipherSuite string `json:"cipher_suite,omitempty"`
	ServerName  string `json:"server_name,omitempty"`
	PeerCN      string `json:"peer_cn,omitempty"`
}

// Cookie is one Set-Cookie entry observed on a response.
type Cookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain,omitempty"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
	Secure  bool      `json:"secure,omitempty"`
}

// ResponseInfo captures the inbound half of an exchange. Present only once
// the owning record reaches a completed or mocked state.
type ResponseInfo struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"body,omitempty"`
	BodySize   int64             `json:"body_size,omitempty"`
	Truncated  bool              `json:"truncated,omitempty"`
	Timing     Timing            `json:"timing"`
	TLS        *TLSInfo          `json:"tls,omitempty"`
	Cookies    []Cookie          `json:"cookies,omitempty"`
	Mocked     bool              `json:"mocked,omitempty"`
}

// RedirectHop is one hop in a redirect chain, appendable only while the
// record is still open.
type RedirectHop struct {
	FromURL    string            `json:"from_url"`
	ToURL      string            `json:"to_url"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// TrafficRecord is one observed or synthesized request/response cycle.
// ID and CreatedAt are immutable for the record's lifetime.
//
// Invariant: exactly one of {Response set, Error set, neither} holds, and it
// correlates with State: completed/mocked carry a Response, failed carries an
// Error, pending/cancelled carry neither.
type TrafficRecord struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Request   RequestInfo   `json:"request"`
	Response  *ResponseInfo `json:"response,omitempty"`
	State     RecordState   `json:"state"`
	Redirects []RedirectHop `json:"redirects,omitempty"`
	Error     *RecordError  `json:"error,omitempty"`
}

// Clone returns a deep copy so that snapshot readers never alias live
// mutable state.
func (r TrafficRecord) Clone() TrafficRecord {
	out := r
	out.Request.Headers = cloneMap(r.Request.Headers)
	out.Request.Body = cloneBytes(r.Request.Body)
	if r.Response != nil {
		resp := *r.Response
		resp.Headers = cloneMap(r.Response.Headers)
		resp.Body = cloneBytes(r.Response.Body)
		if r.Response.TLS != nil {
			tls := *r.Response.TLS
			resp.TLS = &tls
		}
		resp.Cookies = append([]Cookie(nil), r.Response.Cookies...)
		out.Response = &resp
	}
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	if len(r.Redirects) > 0 {
		hops := make([]RedirectHop, len(r.Redirects))
		for i, h := range r.Redirects {
			h.Headers = cloneMap(h.Headers)
			hops[i] = h
		}
		out.Redirects = hops
	}
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

