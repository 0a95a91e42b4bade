package gateway

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/snarehq/snare/pkg/api"
)

// TransportEvents are the per-request callbacks a Transport reports into.
// Any callback may be nil.
type TransportEvents struct {
	// HeadersReceived fires once when response headers arrive.
	HeadersReceived func(status int, headers map[string]string)
	// Data fires per body chunk as it is read from the wire.
	Data func(chunk []byte)
	// Redirect fires once per redirect hop, in order.
	Redirect func(hop api.RedirectHop)
}

// TransportResult is the terminal outcome of a successful exchange. Body is
// always the complete payload; capture caps apply only to what the record
// stores, never to what the caller receives.
type TransportResult struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	BodySize   int64
	Timing     api.Timing
	TLS        *api.TLSInfo
	Cookies    []api.Cookie
}

// Transport executes a (possibly breakpoint-modified) request. It is a
// consumed capability: the gateway never implements its own HTTP client
// beyond this default adapter over net/http. Cancellation flows through the
// request context.
type Transport interface {
	Do(ctx context.Context, req *http.Request, events TransportEvents) (*TransportResult, error)
}

// HTTPTransport adapts an inner http.RoundTripper to the Transport
// contract, reporting redirects, timing, TLS details, and body chunks.
type HTTPTransport struct {
	inner    http.RoundTripper
	insecure bool
}

// NewHTTPTransport wraps rt (nil means http.DefaultTransport).
func NewHTTPTransport(rt http.RoundTripper, trust api.TLSTrustMode) *HTTPTransport {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &HTTPTransport{inner: rt, insecure: trust == api.TLSTrustInsecure}
}

func (t *HTTPTransport) roundTripper() http.RoundTripper {
	if !t.insecure {
		return t.inner
	}
	if base, ok := t.inner.(*http.Transport); ok {
		clone := base.Clone()
		if clone.TLSClientConfig == nil {
			clone.TLSClientConfig = &tls.Config{}
		}
		clone.TLSClientConfig.InsecureSkipVerify = true
		return clone
	}
	return t.inner
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, req *http.Request, events TransportEvents) (*TransportResult, error) {
	var timing timingCollector
	ctx = httptrace.WithClientTrace(ctx, timing.trace())

	client := &http.Client{
		Transport: t.roundTripper(),
		CheckRedirect: func(next *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			if events.Redirect != nil {
				prev := via[len(via)-1]
				hop := api.RedirectHop{
					FromURL: prev.URL.String(),
					ToURL:   next.URL.String(),
				}
				if next.Response != nil {
					hop.StatusCode = next.Response.StatusCode
					hop.Headers = flattenHeaders(next.Response.Header)
				}
				events.Redirect(hop)
			}
			return nil
		},
	}

	start := time.Now()
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	headers := flattenHeaders(resp.Header)
	if events.HeadersReceived != nil {
		events.HeadersReceived(resp.StatusCode, headers)
	}

	body, err := readBody(resp.Body, events.Data)
	if err != nil {
		return nil, err
	}

	result := &TransportResult{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
		BodySize:   int64(len(body)),
		Timing:     timing.finish(start),
		Cookies:    collectCookies(resp),
	}
	if resp.TLS != nil {
		result.TLS = tlsSummary(resp.TLS)
	}
	return result, nil
}

// readBody drains the response completely, reporting each chunk as it
// arrives from the wire.
func readBody(r io.Reader, onData func([]byte)) ([]byte, error) {
	var body []byte
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if onData != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				onData(chunk)
			}
			body = append(body, buf[:n]...)
		}
		if err == io.EOF {
			return body, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		if len(vals) > 0 {
			out[k] = vals[0]
		}
	}
	return out
}

func collectCookies(resp *http.Response) []api.Cookie {
	raw := resp.Cookies()
	if len(raw) == 0 {
		return nil
	}
	out := make([]api.Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, api.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: c.Expires,
			Secure:  c.Secure,
		})
	}
	return out
}

func tlsSummary(state *tls.ConnectionState) *api.TLSInfo {
	info := &api.TLSInfo{
		Version:     tls.VersionName(state.Version),
		CipherSuite: tls.CipherSuiteName(state.CipherSuite),
		ServerName:  state.ServerName,
	}
	if len(state.PeerCertificates) > 0 {
		info.PeerCN = state.PeerCertificates[0].Subject.CommonName
	}
	return info
}

// timingCollector assembles the Timing breakdown from httptrace callbacks.
type timingCollector struct {
	dnsStart, dnsDone         time.Time
	connectStart, connectDone time.Time
	tlsStart, tlsDone         time.Time
	firstByte                 time.Time
}

func (c *timingCollector) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart:             func(httptrace.DNSStartInfo) { c.dnsStart = time.Now() },
		DNSDone:              func(httptrace.DNSDoneInfo) { c.dnsDone = time.Now() },
		ConnectStart:         func(string, string) { c.connectStart = time.Now() },
		ConnectDone:          func(string, string, error) { c.connectDone = time.Now() },
		TLSHandshakeStart:    func() { c.tlsStart = time.Now() },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { c.tlsDone = time.Now() },
		GotFirstResponseByte: func() { c.firstByte = time.Now() },
	}
}

func (c *timingCollector) finish(start time.Time) api.Timing {
	t := api.Timing{TotalMS: time.Since(start).Milliseconds()}
	if !c.dnsStart.IsZero() && !c.dnsDone.IsZero() {
		t.DNSMS = c.dnsDone.Sub(c.dnsStart).Milliseconds()
	}
	if !c.connectStart.IsZero() && !c.connectDone.IsZero() {
		t.ConnectMS = c.connectDone.Sub(c.connectStart).Milliseconds()
	}
	if !c.tlsStart.IsZero() && !c.tlsDone.IsZero() {
		t.TLSMS = c.tlsDone.Sub(c.tlsStart).Milliseconds()
	}
	if !c.firstByte.IsZero() {
		t.FirstByteMS = c.firstByte.Sub(start).Milliseconds()
	}
	return t
}
