package match

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snarehq/snare/pkg/api"
)

func TestURL_GlobPatterns(t *testing.T) {
	tests := []struct {
		pattern string
		url     string
		want    bool
	}{
		{"*", "https://x.com/anything", true},
		{"*/api/users/*", "https://x.com/api/users/5", true},
		{"*/api/users/*", "https://x.com/api/orders/5", false},
		{"https://x.com/*", "https://x.com/a/b", true},
		{"https://x.com/a", "https://x.com/a", true},
		{"https://x.com/a", "https://x.com/ab", false},
		{"*.json", "https://cdn.x.com/data.json", true},
		{"https://x.com/a?p=*", "https://x.com/a?p=1", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, URL(tt.pattern, tt.url), "%s vs %s", tt.pattern, tt.url)
	}
}

func TestRequest_AllSetFieldsMustMatch(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "https://api.x.com/v1/users", strings.NewReader(""))

	assert.True(t, Request(api.Match{}, req, nil), "empty predicate is a wildcard")
	assert.True(t, Request(api.Match{Method: "post", Host: "api.x.com"}, req, nil))
	assert.True(t, Request(api.Match{URLPattern: "*/v1/users", Host: "*.x.com"}, req, nil))
	assert.False(t, Request(api.Match{Method: "GET", Host: "api.x.com"}, req, nil))
	assert.False(t, Request(api.Match{Method: "POST", Host: "other.com"}, req, nil))
}

func TestRequest_BodyJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "https://api.x.com/v1/users", nil)
	body := []byte(`{"user":{"role":"admin"}}`)

	m := api.Match{BodyJSON: &api.BodyJSONMatch{Path: "user.role", Value: "admin"}}
	assert.True(t, Request(m, req, body))

	m.BodyJSON.Value = "guest"
	assert.False(t, Request(m, req, body))

	assert.False(t, Request(m, req, nil), "no body never matches a body predicate")
}
