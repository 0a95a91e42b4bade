package gateway

import "net/http"

// RoundTripper adapts the gateway into the standard client middleware
// position. Requests the gateway rejects at admission fall through to the
// base transport untouched, so installing the gateway is never observable
// for traffic it does not mediate.
type RoundTripper struct {
	gateway *Gateway
	base    http.RoundTripper
}

// NewRoundTripper wraps base with the gateway. A nil base falls back to
// http.DefaultTransport.
func NewRoundTripper(gw *Gateway, base http.RoundTripper) *RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RoundTripper{gateway: gw, base: base}
}

func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, handled, err := rt.gateway.Handle(req)
	if !handled {
		return rt.base.RoundTrip(req)
	}
	return resp, err
}

// Client returns an *http.Client whose transport routes through the gateway.
func Client(gw *Gateway, base http.RoundTripper) *http.Client {
	return &http.Client{Transport: NewRoundTripper(gw, base)}
}
