// Package mock decides whether a request should be answered synthetically
// instead of reaching the network, and with what.
package mock

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/snarehq/snare/pkg/api"
	"github.com/snarehq/snare/pkg/match"
)

// Engine holds the priority-ordered mock rule set. Rule mutation replaces
// the backing slice wholesale, so an in-flight Eval sees either the pre- or
// post-mutation set, never a torn one.
type Engine struct {
	mu     sync.RWMutex
	rules  []api.MockRule // insertion order
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With("component", "mock")}
}

// Put inserts a rule, or replaces an existing rule with the same ID while
// preserving its original insertion position (and thus its tie-break rank).
func (e *Engine) Put(rule api.MockRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.Match.Method = api.NormalizeMethod(rule.Match.Method)

	e.mu.Lock()
	defer e.mu.Unlock()
	next := make([]api.MockRule, len(e.rules))
	copy(next, e.rules)
	for i := range next {
		if next[i].ID == rule.ID {
			next[i] = rule
			e.rules = next
			return nil
		}
	}
	e.rules = append(next, rule)
	e.logger.Debug("mock rule registered", "id", rule.ID, "priority", rule.Priority)
	return nil
}

// Remove deletes the rule with the given id. Unknown ids are a no-op.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID == id {
			next := make([]api.MockRule, 0, len(e.rules)-1)
			next = append(next, e.rules[:i]...)
			next = append(next, e.rules[i+1:]...)
			e.rules = next
			return true
		}
	}
	return false
}

// SetEnabled toggles a rule without disturbing its position.
func (e *Engine) SetEnabled(id string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID == id {
			next := make([]api.MockRule, len(e.rules))
			copy(next, e.rules)
			next[i].Enabled = enabled
			e.rules = next
			return true
		}
	}
	return false
}

// Rules returns a copy of the rule set in insertion order.
func (e *Engine) Rules() []api.MockRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]api.MockRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// ReplaceAll swaps in a whole new rule set, typically loaded from
// persistence. Insertion order follows slice order.
func (e *Engine) ReplaceAll(rules []api.MockRule) error {
	next := make([]api.MockRule, 0, len(rules))
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

// Eval returns the winning rule for a request, or false when no enabled
// rule matches. Among matching rules the highest priority wins; equal
// priorities resolve to the earliest-registered rule. Evaluation is a pure,
// side-effect-free read.
func (e *Engine) Eval(req *http.Request, body []byte) (api.MockRule, bool) {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	var chosen *api.MockRule
	for i := range rules {
		r := &rules[i]
		if !r.Enabled {
			continue
		}
		if !match.Request(r.Match, req, body) {
			continue
		}
		if chosen == nil || r.Priority > chosen.Priority {
			chosen = r
		}
	}
	if chosen == nil {
		return api.MockRule{}, false
	}
	return *chosen, true
}
