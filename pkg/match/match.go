// Package match evaluates rule predicates against candidate requests.
// Evaluation is a pure read: it never mutates the request or any shared
// state beyond the compiled-pattern cache.
package match

import (
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/snarehq/snare/pkg/api"
)

// Request evaluates a predicate against a request and its buffered body.
// All set predicate fields must match; unset fields are wildcards.
func Request(m api.Match, req *http.Request, body []byte) bool {
	if req == nil {
		return false
	}
	if m.Method != "" && !strings.EqualFold(m.Method, req.Method) {
		return false
	}
	if m.Host != "" {
		host := req.URL.Hostname()
		if host == "" {
			host = req.Host
		}
		if !api.MatchGlob(m.Host, host) {
			return false
		}
	}
	if m.URLPattern != "" && !URL(m.URLPattern, req.URL.String()) {
		return false
	}
	if m.BodyJSON != nil {
		if len(body) == 0 {
			return false
		}
		got := gjson.GetBytes(body, m.BodyJSON.Path)
		if !got.Exists() || got.String() != m.BodyJSON.Value {
			return false
		}
	}
	return true
}

// URL matches an absolute URL against a glob pattern, translated to an
// anchored regular expression where * matches any run of characters.
func URL(pattern, url string) bool {
	re, err := patterns.get(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(url)
}

var patterns = &patternCache{compiled: make(map[string]*regexp.Regexp)}

// patternCache memoizes glob-to-regexp compilation; patterns come from a
// small operator-managed rule set, so the cache is unbounded.
type patternCache struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
}

func (c *patternCache) get(pattern string) (*regexp.Regexp, error) {
	c.mu.RLock()
	re, ok := c.compiled[pattern]
	c.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(globToRegexp(pattern))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.compiled[pattern] = re
	c.mu.Unlock()
	return re, nil
}

func globToRegexp(pattern string) string {
	parts := strings.Split(pattern, "*")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return "^" + strings.Join(quoted, ".*") + "$"
}
