package capture

import (
	"strings"
	"time"

	"github.com/snarehq/snare/pkg/api"
)

// FilterOptions selects records from a snapshot. Zero values match
// everything.
type FilterOptions struct {
	URLContains string
	Method      string
	State       api.RecordState
	StatusMin   int
	StatusMax   int
	Since       time.Time
	Limit       int
}

// Filter applies opts over a snapshot, preserving arrival order.
func Filter(records []api.TrafficRecord, opts FilterOptions) []api.TrafficRecord {
	out := make([]api.TrafficRecord, 0, len(records))
	for _, r := range records {
		if !matches(r, opts) {
			continue
		}
		out = append(out, r)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out
}

func matches(r api.TrafficRecord, opts FilterOptions) bool {
	if opts.URLContains != "" && !strings.Contains(r.Request.URL, opts.URLContains) {
		return false
	}
	if opts.Method != "" && !strings.EqualFold(r.Request.Method, opts.Method) {
		return false
	}
	if opts.State != "" && r.State != opts.State {
		return false
	}
	if opts.StatusMin > 0 || opts.StatusMax > 0 {
		if r.Response == nil {
			return false
		}
		if opts.StatusMin > 0 && r.Response.StatusCode < opts.StatusMin {
			return false
		}
		if opts.StatusMax > 0 && r.Response.StatusCode > opts.StatusMax {
			return false
		}
	}
	if !opts.Since.IsZero() && r.CreatedAt.Before(opts.Since) {
		return false
	}
	return true
}

// Stats aggregates a snapshot for statistics consumers.
type Stats struct {
	Total         int   `json:"total"`
	Pending       int   `json:"pending"`
	Completed     int   `json:"completed"`
	Failed        int   `json:"failed"`
	Cancelled     int   `json:"cancelled"`
	Mocked        int   `json:"mocked"`
	RequestBytes  int64 `json:"request_bytes"`
	ResponseBytes int64 `json:"response_bytes"`
}

// Summarize computes aggregate counts over a snapshot.
func Summarize(records []api.TrafficRecord) Stats {
	var st Stats
	st.Total = len(records)
	for _, r := range records {
		switch r.State {
		case api.StatePending:
			st.Pending++
		case api.StateCompleted:
			st.Completed++
		case api.StateFailed:
			st.Failed++
		case api.StateCancelled:
			st.Cancelled++
		case api.StateMocked:
			st.Mocked++
		}
		st.RequestBytes += r.Request.BodySize
		if r.Response != nil {
			st.ResponseBytes += r.Response.BodySize
		}
	}
	return st
}
