package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarehq/snare/pkg/api"
)

func sampleRecords() []api.TrafficRecord {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []api.TrafficRecord{
		{
			ID: "1", CreatedAt: base, State: api.StateCompleted,
			Request:  api.RequestInfo{Method: "GET", URL: "https://api.example.com/users", BodySize: 0},
			Response: &api.ResponseInfo{StatusCode: 200, BodySize: 120},
		},
		{
			ID: "2", CreatedAt: base.Add(time.Minute), State: api.StateFailed,
			Request: api.RequestInfo{Method: "POST", URL: "https://api.example.com/orders", BodySize: 40},
			Error:   &api.RecordError{Category: api.ErrorTimeout, Message: "deadline"},
		},
		{
			ID: "3", CreatedAt: base.Add(2 * time.Minute), State: api.StateMocked,
			Request:  api.RequestInfo{Method: "GET", URL: "https://mock.local/ping"},
			Response: &api.ResponseInfo{StatusCode: 503, BodySize: 10, Mocked: true},
		},
	}
}

func TestFilter_ByURLAndMethod(t *testing.T) {
	got := Filter(sampleRecords(), FilterOptions{URLContains: "example.com", Method: "get"})
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestFilter_ByStatusRange(t *testing.T) {
	got := Filter(sampleRecords(), FilterOptions{StatusMin: 500})
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].ID)

	// Records without a response never match a status filter.
	got = Filter(sampleRecords(), FilterOptions{StatusMin: 1, StatusMax: 599})
	assert.Len(t, got, 2)
}

func TestFilter_SinceAndLimit(t *testing.T) {
	recs := sampleRecords()
	got := Filter(recs, FilterOptions{Since: recs[1].CreatedAt})
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)

	got = Filter(recs, FilterOptions{Limit: 1})
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestSummarize(t *testing.T) {
	st := Summarize(sampleRecords())
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.Mocked)
	assert.Equal(t, int64(40), st.RequestBytes)
	assert.Equal(t, int64(130), st.ResponseBytes)
}
