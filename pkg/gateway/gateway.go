// Package gateway is the admission and orchestration layer: per observed
// request it consults configuration, the mock engine, and the breakpoint
// engine, in that order, before letting the request reach the real
// transport, writing every state transition into the record store.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/snarehq/snare/internal/errx"
	"github.com/snarehq/snare/pkg/api"
	"github.com/snarehq/snare/pkg/breakpoint"
	"github.com/snarehq/snare/pkg/capture"
	"github.com/snarehq/snare/pkg/logging"
	"github.com/snarehq/snare/pkg/mock"
	"github.com/snarehq/snare/pkg/rewrite"
)

type handledKey struct{}

// MarkHandled tags a request as already mediated so it can never be
// re-admitted for double interception.
func MarkHandled(req *http.Request) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), handledKey{}, true))
}

// IsHandled reports whether the request carries the mediation tag.
func IsHandled(req *http.Request) bool {
	handled, _ := req.Context().Value(handledKey{}).(bool)
	return handled
}

// Options wires the gateway's collaborators. Config and Store are
// required; everything else is optional.
type Options struct {
	Config      ConfigProvider
	Store       *capture.Store
	Mocks       *mock.Engine
	Breakpoints *breakpoint.Engine
	Rewriter    rewrite.Rewriter
	Transport   Transport
	Emitter     *logging.Emitter
	Logger      *slog.Logger
}

// Gateway composes the engines through explicit sequential calls; each
// collaborator protects its own state and no lock spans the whole pipeline.
type Gateway struct {
	config      ConfigProvider
	store       *capture.Store
	mocks       *mock.Engine
	breakpoints *breakpoint.Engine
	rewriter    rewrite.Rewriter
	transport   Transport
	emitter     *logging.Emitter
	logger      *slog.Logger
}

func New(opts Options) (*Gateway, error) {
	if opts.Config == nil {
		return nil, errx.Wrapf(api.ErrInvalidConfig, "gateway requires a config provider")
	}
	if opts.Store == nil {
		return nil, errx.Wrapf(api.ErrInvalidConfig, "gateway requires a record store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	transport := opts.Transport
	if transport == nil {
		transport = NewHTTPTransport(nil, opts.Config.Snapshot().TLSTrust)
	}
	return &Gateway{
		config:      opts.Config,
		store:       opts.Store,
		mocks:       opts.Mocks,
		breakpoints: opts.Breakpoints,
		rewriter:    opts.Rewriter,
		transport:   transport,
		emitter:     opts.Emitter,
		logger:      logger.With("component", "gateway"),
	}, nil
}

// Admit decides whether a request is observed and controlled at all.
// A rejection means the traffic flows untouched: no record, no error.
// The decision reads one configuration snapshot, so concurrent config
// updates are never observed partially applied.
func (g *Gateway) Admit(req *http.Request) bool {
	ok, reason := g.admit(req)
	if !ok {
		g.logger.Debug("admission rejected", "method", req.Method, "url", req.URL.String(), "reason", reason)
	}
	return ok
}

func (g *Gateway) admit(req *http.Request) (bool, string) {
	if IsHandled(req) {
		return false, "already handled"
	}
	cfg := g.config.Snapshot()
	if !cfg.Enabled {
		return false, "interception disabled"
	}
	if cfg.Admit != nil && !cfg.Admit(req) {
		return false, "custom predicate"
	}

	host := req.URL.Hostname()
	if host == "" {
		host = req.Host
	}
	for _, pattern := range cfg.HostDenyList {
		if api.MatchGlob(pattern, host) {
			return false, "host denied"
		}
	}
	if len(cfg.HostAllowList) > 0 {
		allowed := false
		for _, pattern := range cfg.HostAllowList {
			if api.MatchGlob(pattern, host) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, "host not in allowlist"
		}
	}
	if len(cfg.AllowedMethods) > 0 {
		allowed := false
		for _, m := range cfg.AllowedMethods {
			if api.NormalizeMethod(m) == api.NormalizeMethod(req.Method) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, "method excluded"
		}
	}
	for _, pattern := range cfg.IgnorePathPatterns {
		if api.MatchGlob(pattern, req.URL.Path) {
			return false, "path ignored"
		}
	}
	return true, ""
}

// Handle runs the full pipeline for one request. handled=false means the
// request was rejected at admission and must proceed as if this layer did
// not exist. When handled, the gateway guarantees a terminal record state
// for every reachable input: a response with record completed/mocked, or an
// error with record failed/cancelled.
func (g *Gateway) Handle(req *http.Request) (resp *http.Response, handled bool, err error) {
	if !g.Admit(req) {
		return nil, false, nil
	}
	req = MarkHandled(req)
	resp, err = g.intercept(req)
	return resp, true, err
}

func (g *Gateway) intercept(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	cfg := g.config.Snapshot()

	body, err := bufferRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}

	recordID := uuid.NewString()
	g.store.Add(api.TrafficRecord{
		ID:        recordID,
		CreatedAt: time.Now(),
		State:     api.StatePending,
		Request:   requestInfo(req, body),
	})

	// Environment rewrite happens before mock and breakpoint evaluation
	// so rules match what will actually be sent.
	if g.rewriter != nil {
		if replaced, ok := g.rewriter.Rewrite(req.URL); ok {
			g.logger.Debug("url rewritten", "record_id", recordID, "from", req.URL.String(), "to", replaced.String())
			req.URL = replaced
			req.Host = replaced.Host
			g.store.Update(recordID, func(r *api.TrafficRecord) {
				r.Request.URL = replaced.String()
			})
		}
	}

	if g.mocks != nil {
		if rule, ok := g.mocks.Eval(req, body); ok {
			return g.applyMock(ctx, recordID, req, rule)
		}
	}

	if g.breakpoints != nil {
		if rule, ok := g.breakpoints.ShouldPause(req, api.PhaseRequest); ok {
			res := g.pause(ctx, recordID, req, api.PhaseRequest, rule)
			if res.Cancelled {
				return nil, g.cancelRecord(recordID, api.ErrPauseCancelled)
			}
			if res.Request != nil {
				req = res.Request
				g.store.Update(recordID, func(r *api.TrafficRecord) {
					r.Request.Method = req.Method
					r.Request.URL = req.URL.String()
					r.Request.Headers = flattenHeaders(req.Header)
				})
			}
		}
	}

	// The capture cap bounds only what the record stores. Delivery to the
	// caller is transparent: it always carries the full body.
	maxBody := int64(0)
	if cfg.CaptureResponseBody {
		maxBody = cfg.BodyCap()
	}

	events := TransportEvents{
		Redirect: func(hop api.RedirectHop) {
			g.store.Update(recordID, func(r *api.TrafficRecord) {
				if !r.State.Terminal() {
					r.Redirects = append(r.Redirects, hop)
				}
			})
		},
	}

	result, err := g.transport.Do(ctx, req, events)
	if err != nil {
		category := categorize(err)
		if category == api.ErrorCancelled {
			return nil, g.cancelRecord(recordID, api.ErrRequestCancelled)
		}
		g.failRecord(recordID, category, err.Error())
		return nil, err
	}

	// The response phase is gated symmetrically to the request phase,
	// before final delivery.
	if g.breakpoints != nil {
		if rule, ok := g.breakpoints.ShouldPause(req, api.PhaseResponse); ok {
			res := g.pause(ctx, recordID, req, api.PhaseResponse, rule)
			if res.Cancelled {
				return nil, g.cancelRecord(recordID, api.ErrPauseCancelled)
			}
		}
	}

	info := responseInfo(result, maxBody)
	g.store.Update(recordID, func(r *api.TrafficRecord) {
		r.State = api.StateCompleted
		r.Response = &info
	})
	g.logger.Info("request complete",
		"record_id", recordID,
		"method", req.Method,
		"url", req.URL.String(),
		"status", result.StatusCode,
		"duration_ms", result.Timing.TotalMS,
		"bytes", result.BodySize,
	)

	return synthesizeResponse(req, result.StatusCode, result.Headers, result.Body), nil
}

// applyMock honors the rule's delay, then either synthesizes a response or
// injects the configured failure. Breakpoints and the real transport are
// never consulted for a mocked request.
func (g *Gateway) applyMock(ctx context.Context, recordID string, req *http.Request, rule api.MockRule) (*http.Response, error) {
	if rule.Action.Delay > 0 {
		timer := time.NewTimer(rule.Action.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, g.cancelRecord(recordID, api.ErrRequestCancelled)
		}
	}

	if g.emitter != nil {
		_ = g.emitter.Emit(logging.EventMockHit, fmt.Sprintf("%s %s -> rule %s", req.Method, req.URL, rule.ID), nil, &logging.MockHitData{
			RecordID: recordID,
			RuleID:   rule.ID,
			Action:   string(rule.Action.Type),
		})
	}

	if rule.Action.Type == api.MockError {
		g.failRecord(recordID, rule.Action.Error, fmt.Sprintf("injected by mock rule %s", rule.ID))
		return nil, errx.Wrapf(api.ErrMockInjected, "rule %s (%s)", rule.ID, rule.Action.Error)
	}

	info := api.ResponseInfo{
		StatusCode: rule.Action.Status,
		Headers:    cloneHeaderMap(rule.Action.Headers),
		Body:       append([]byte(nil), rule.Action.Body...),
		BodySize:   int64(len(rule.Action.Body)),
		Mocked:     true,
	}
	g.store.Update(recordID, func(r *api.TrafficRecord) {
		r.State = api.StateMocked
		r.Response = &info
	})
	g.logger.Info("request mocked", "record_id", recordID, "rule_id", rule.ID, "status", rule.Action.Status)

	return synthesizeResponse(req, rule.Action.Status, rule.Action.Headers, rule.Action.Body), nil
}

func (g *Gateway) pause(ctx context.Context, recordID string, req *http.Request, phase api.Phase, rule api.BreakpointRule) breakpoint.Resolution {
	if g.emitter != nil {
		_ = g.emitter.Emit(logging.EventBreakpointPaused, fmt.Sprintf("%s %s paused (%s)", req.Method, req.URL, phase), nil, &logging.BreakpointData{
			RecordID: recordID,
			Phase:    string(phase),
		})
	}
	res := g.breakpoints.Pause(ctx, recordID, req, phase, rule)
	if g.emitter != nil {
		outcome := "resumed"
		if res.Cancelled {
			outcome = "cancelled"
		} else if res.AutoResumed {
			outcome = "auto_resumed"
		}
		_ = g.emitter.Emit(logging.EventBreakpointResolved, fmt.Sprintf("pause resolved: %s", outcome), nil, &logging.BreakpointData{
			RecordID: recordID,
			Phase:    string(phase),
			Outcome:  outcome,
		})
	}
	return res
}

func (g *Gateway) cancelRecord(recordID string, cause error) error {
	g.store.Update(recordID, func(r *api.TrafficRecord) {
		r.State = api.StateCancelled
	})
	g.logger.Info("request cancelled", "record_id", recordID)
	return cause
}

func (g *Gateway) failRecord(recordID string, category api.ErrorCategory, message string) {
	g.store.Update(recordID, func(r *api.TrafficRecord) {
		r.State = api.StateFailed
		r.Error = &api.RecordError{Category: category, Message: message}
	})
	g.logger.Warn("request failed", "record_id", recordID, "category", category, "error", message)
}

// bufferRequestBody reads and restores the request body so that rule
// predicates and the record can see it without consuming the stream.
func bufferRequestBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return body, nil
}

func requestInfo(req *http.Request, body []byte) api.RequestInfo {
	info := api.RequestInfo{
		Method:   req.Method,
		URL:      req.URL.String(),
		Headers:  flattenHeaders(req.Header),
		Body:     append([]byte(nil), body...),
		BodySize: int64(len(body)),
	}
	if req.Header.Get("Cache-Control") != "" {
		info.CachePolicy = req.Header.Get("Cache-Control")
	}
	return info
}

// responseInfo builds the record's view of the response. maxBody bounds the
// stored body copy only; the delivered response keeps the full payload.
func responseInfo(result *TransportResult, maxBody int64) api.ResponseInfo {
	info := api.ResponseInfo{
		StatusCode: result.StatusCode,
		Headers:    result.Headers,
		BodySize:   result.BodySize,
		Timing:     result.Timing,
		TLS:        result.TLS,
		Cookies:    result.Cookies,
	}
	if maxBody > 0 {
		if result.BodySize > maxBody {
			info.Body = append([]byte(nil), result.Body[:maxBody]...)
			info.Truncated = true
		} else {
			info.Body = result.Body
		}
	}
	return info
}

func synthesizeResponse(req *http.Request, status int, headers map[string]string, body []byte) *http.Response {
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func cloneHeaderMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
