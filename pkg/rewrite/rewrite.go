// Package rewrite maps request URLs to replacement destinations, used for
// environment switching (e.g. pointing production hosts at a staging or
// local backend) before mock and breakpoint evaluation.
package rewrite

import (
	"net"
	"net/url"
	"sync"

	"github.com/snarehq/snare/pkg/api"
)

// Rewriter is the pure request-URL -> optional replacement capability the
// gateway consults once per admitted request.
type Rewriter interface {
	// Rewrite returns the replacement URL and true, or (nil, false) to
	// leave the request untouched. The input URL is never mutated.
	Rewrite(u *url.URL) (*url.URL, bool)
}

// Mapping redirects hosts matching HostPattern (glob) to a replacement
// destination. Empty replacement fields keep the original component.
type Mapping struct {
	HostPattern string `json:"host_pattern"`
	Scheme      string `json:"scheme,omitempty"`
	Host        string `json:"host,omitempty"`
	Port        string `json:"port,omitempty"`
}

// HostMap is a Rewriter over an ordered mapping list; the first matching
// mapping wins.
type HostMap struct {
	mu       sync.RWMutex
	mappings []Mapping
}

func NewHostMap(mappings ...Mapping) *HostMap {
	return &HostMap{mappings: mappings}
}

// Set replaces the mapping list.
func (m *HostMap) Set(mappings []Mapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings = append([]Mapping(nil), mappings...)
}

// Mappings returns a copy of the current list.
func (m *HostMap) Mappings() []Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Mapping(nil), m.mappings...)
}

// Rewrite implements Rewriter.
func (m *HostMap) Rewrite(u *url.URL) (*url.URL, bool) {
	if u == nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	host := u.Hostname()
	for _, mapping := range m.mappings {
		if !api.MatchGlob(mapping.HostPattern, host) {
			continue
		}
		out := *u
		newHost := host
		if mapping.Host != "" {
			newHost = mapping.Host
		}
		port := u.Port()
		if mapping.Port != "" {
			port = mapping.Port
		}
		if port != "" {
			out.Host = net.JoinHostPort(newHost, port)
		} else {
			out.Host = newHost
		}
		if mapping.Scheme != "" {
			out.Scheme = mapping.Scheme
		}
		return &out, true
	}
	return nil, false
}
