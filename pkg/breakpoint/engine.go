// Package breakpoint gates requests and responses behind operator-managed
// pause points. A paused exchange parks its goroutine on a one-shot
// resolution channel until it is resumed, cancelled, or auto-resumed by a
// timer; no other in-flight exchange is delayed by a pause.
package breakpoint

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snarehq/snare/pkg/api"
	"github.com/snarehq/snare/pkg/match"
)

// Resolution is the single outcome delivered to a paused exchange.
type Resolution struct {
	// Request is the request to continue with: the operator's modified
	// request on an edited resume, otherwise the original unchanged.
	// Nil when Cancelled.
	Request   *http.Request
	Cancelled bool
	// AutoResumed marks a timer-driven resolution.
	AutoResumed bool
}

// PausedRequest is the inspectable view of one active pause.
type PausedRequest struct {
	ID       string    `json:"id"`
	RecordID string    `json:"record_id"`
	Method   string    `json:"method"`
	URL      string    `json:"url"`
	Phase    api.Phase `json:"phase"`
	PausedAt time.Time `json:"paused_at"`
}

// pause transitions active -> {resumed, cancelled} exactly once.
type pause struct {
	info     PausedRequest
	original *http.Request
	done     chan Resolution // buffered; receives exactly one value
	timer    *time.Timer     // nil without auto-resume
	resolved bool            // guarded by Engine.mu
}

// Engine owns breakpoint rules and the set of currently paused exchanges.
type Engine struct {
	mu      sync.Mutex
	enabled bool
	rules   []api.BreakpointRule // insertion order
	active  map[string]*pause
	logger  *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		enabled: true,
		active:  make(map[string]*pause),
		logger:  logger.With("component", "breakpoint"),
	}
}

// SetEnabled flips the global gate. Disabling does not resolve pauses that
// are already active.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// Enabled reports the global gate.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// PutRule inserts a rule or replaces the rule with the same ID in place.
func (e *Engine) PutRule(rule api.BreakpointRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.Match.Method = api.NormalizeMethod(rule.Match.Method)

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID == rule.ID {
			e.rules[i] = rule
			return nil
		}
	}
	e.rules = append(e.rules, rule)
	e.logger.Debug("breakpoint rule registered", "id", rule.ID, "direction", rule.Direction)
	return nil
}

// RemoveRule deletes a rule. Unknown ids are a no-op.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// SetRuleEnabled toggles one rule.
func (e *Engine) SetRuleEnabled(id string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID == id {
			e.rules[i].Enabled = enabled
			return true
		}
	}
	return false
}

// Rules returns a copy of the rule set.
func (e *Engine) Rules() []api.BreakpointRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]api.BreakpointRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// ReplaceAll swaps in a whole new rule set, typically from persistence.
func (e *Engine) ReplaceAll(rules []api.BreakpointRule) error {
	next := make([]api.BreakpointRule, 0, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
		r.Match.Method = api.NormalizeMethod(r.Match.Method)
		next = append(next, r)
	}
	e.mu.Lock()
	e.rules = next
	e.mu.Unlock()
	return nil
}

// ShouldPause returns the first enabled rule matching the request with a
// direction compatible with phase. The returned rule is handed back to
// Pause so a rule mutation between the two calls cannot change which rule
// governs the pause.
func (e *Engine) ShouldPause(req *http.Request, phase api.Phase) (api.BreakpointRule, bool) {
	e.mu.Lock()
	enabled := e.enabled
	rules := make([]api.BreakpointRule, len(e.rules))
	copy(rules, e.rules)
	e.mu.Unlock()

	if !enabled {
		return api.BreakpointRule{}, false
	}
	for _, r := range rules {
		if !r.Enabled || !r.Direction.Matches(phase) {
			continue
		}
		if match.Request(r.Match, req, nil) {
			return r, true
		}
	}
	return api.BreakpointRule{}, false
}

// Pause registers the request as paused and parks the caller until exactly
// one of: manual resume, manual cancel, auto-resume timeout, or context
// cancellation. Each pause is an independent suspension; pausing one
// exchange never delays another. rule is the match ShouldPause reported,
// fixed for the lifetime of this pause.
func (e *Engine) Pause(ctx context.Context, recordID string, req *http.Request, phase api.Phase, rule api.BreakpointRule) Resolution {
	p := &pause{
		info: PausedRequest{
			ID:       uuid.NewString(),
			RecordID: recordID,
			Method:   req.Method,
			URL:      req.URL.String(),
			Phase:    phase,
			PausedAt: time.Now(),
		},
		original: req,
		done:     make(chan Resolution, 1),
	}

	e.mu.Lock()
	e.active[p.info.ID] = p
	if rule.AutoResume > 0 {
		id := p.info.ID
		p.timer = time.AfterFunc(rule.AutoResume, func() {
			// Resumes with the original, unmodified request; a no-op
			// if the pause was already resolved manually.
			if e.resolve(id, Resolution{Request: req, AutoResumed: true}) {
				e.logger.Debug("breakpoint auto-resumed", "pause_id", id, "rule_id", rule.ID)
			}
		})
	}
	e.mu.Unlock()

	e.logger.Info("request paused",
		"pause_id", p.info.ID,
		"record_id", recordID,
		"phase", phase,
		"method", req.Method,
		"url", p.info.URL,
	)

	select {
	case res := <-p.done:
		return res
	case <-ctx.Done():
		if e.resolve(p.info.ID, Resolution{Cancelled: true}) {
			return Resolution{Cancelled: true}
		}
		// Lost the race: someone resolved first, take their outcome.
		return <-p.done
	}
}

// Resume resolves a pause with the operator's (possibly nil) modification.
// A nil modified request resumes with the original unchanged. Unknown or
// already-resolved ids are a no-op.
func (e *Engine) Resume(id string, modified *http.Request) bool {
	e.mu.Lock()
	p, ok := e.active[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	req := modified
	if req == nil {
		req = p.original
	}
	return e.resolve(id, Resolution{Request: req})
}

// Cancel resolves a pause with a cancellation outcome. Unknown or
// already-resolved ids are a no-op.
func (e *Engine) Cancel(id string) bool {
	return e.resolve(id, Resolution{Cancelled: true})
}

// ResumeAll resumes every currently active pause with its original request.
// Pauses registered after the call are unaffected.
func (e *Engine) ResumeAll() int {
	n := 0
	for _, p := range e.snapshotActive() {
		if e.resolve(p.info.ID, Resolution{Request: p.original}) {
			n++
		}
	}
	return n
}

// CancelAll cancels every currently active pause.
func (e *Engine) CancelAll() int {
	n := 0
	for _, p := range e.snapshotActive() {
		if e.resolve(p.info.ID, Resolution{Cancelled: true}) {
			n++
		}
	}
	return n
}

// Paused lists active pauses, oldest first.
func (e *Engine) Paused() []PausedRequest {
	e.mu.Lock()
	out := make([]PausedRequest, 0, len(e.active))
	for _, p := range e.active {
		out = append(out, p.info)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PausedAt.Before(out[j].PausedAt) })
	return out
}

func (e *Engine) snapshotActive() []*pause {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*pause, 0, len(e.active))
	for _, p := range e.active {
		out = append(out, p)
	}
	return out
}

// resolve delivers exactly one Resolution to the pause's waiter. The
// resolved flag makes any later resolution attempt a no-op, and the
// auto-resume timer is stopped so it cannot fire afterwards.
func (e *Engine) resolve(id string, res Resolution) bool {
	e.mu.Lock()
	p, ok := e.active[id]
	if !ok || p.resolved {
		e.mu.Unlock()
		return false
	}
	p.resolved = true
	delete(e.active, id)
	if p.timer != nil {
		p.timer.Stop()
	}
	e.mu.Unlock()

	p.done <- res

	outcome := "resumed"
	if res.Cancelled {
		outcome = "cancelled"
	} else if res.AutoResumed {
		outcome = "auto_resumed"
	}
	e.logger.Info("pause resolved", "pause_id", id, "outcome", outcome)
	return true
}
