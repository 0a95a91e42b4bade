package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarehq/snare/pkg/api"
)

func TestMergeMockRulesOverwritesByID(t *testing.T) {
	existing := []api.MockRule{
		{ID: "a", Priority: 1},
		{ID: "b", Priority: 2},
	}
	imported := []api.MockRule{
		{ID: "b", Priority: 20},
		{ID: "c", Priority: 3},
	}

	merged := mergeMockRules(existing, imported)

	require.Len(t, merged, 3)
	assert.Equal(t, "a", merged[0].ID)
	assert.Equal(t, "b", merged[1].ID)
	assert.Equal(t, 20, merged[1].Priority, "imported rule replaces the stored one in place")
	assert.Equal(t, "c", merged[2].ID)
}

func TestMergeBreakpointRulesAppendsNew(t *testing.T) {
	existing := []api.BreakpointRule{{ID: "hold"}}
	imported := []api.BreakpointRule{{ID: "hold", AutoResume: time.Minute}, {ID: "extra"}}

	merged := mergeBreakpointRules(existing, imported)

	require.Len(t, merged, 2)
	assert.Equal(t, time.Minute, merged[0].AutoResume)
	assert.Equal(t, "extra", merged[1].ID)
}

func TestDescribeMatch(t *testing.T) {
	tests := []struct {
		name  string
		match api.Match
		want  string
	}{
		{"url and method", api.Match{URLPattern: "*/api/*", Method: "post"}, "POST */api/*"},
		{"url only", api.Match{URLPattern: "*/api/*"}, "*/api/*"},
		{"host only", api.Match{Host: "api.example.com"}, "host api.example.com"},
		{"method only", api.Match{Method: "get"}, "GET *"},
		{"empty", api.Match{}, "*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeMatch(tt.match))
		})
	}
}

func TestDescribeAction(t *testing.T) {
	assert.Equal(t, "respond 201", describeAction(api.MockAction{Type: api.MockRespond, Status: 201}))
	assert.Equal(t, "respond 200 (+1s)", describeAction(api.MockAction{Type: api.MockRespond, Status: 200, Delay: time.Second}))
	assert.Equal(t, "error timeout", describeAction(api.MockAction{Type: api.MockError, Error: api.ErrorTimeout}))
}

func TestParseHostMappings(t *testing.T) {
	rw, err := parseHostMappings([]string{"api.example.com=http://localhost:8080"})
	require.NoError(t, err)
	require.NotNil(t, rw)

	_, err = parseHostMappings([]string{"missing-equals"})
	assert.Error(t, err)

	_, err = parseHostMappings([]string{"a=not a url"})
	assert.Error(t, err)

	rw, err = parseHostMappings(nil)
	require.NoError(t, err)
	assert.Nil(t, rw)
}
