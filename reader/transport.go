package reader

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}

// NewHTTPClient returns a client that sends agent as User-Agent on every
// request.
func NewHTTPClient(timeout time.Duration, agent string) *http.Client {
	var rt http.RoundTripper = http.DefaultTransport
	if agent != "" {
		rt = userAgentTransport{agent: agent, base: http.DefaultTransport}
	}
	return &http.Client{Timeout: timeout, Transport: rt}
}

// NewLimiter builds the token bucket used to pace API calls. Non-positive
// settings fall back to 5 requests per second with a burst of 1.
func NewLimiter(rps, burst int) *rate.Limiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
