// Package clients provides the shared HTTP plumbing for the console's
// outbound API calls: a pooled transport, retry with exponential backoff,
// and a circuit breaker for flapping upstreams.
package clients

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// DefaultTransport returns a pooled HTTP transport with per-host connection
// caps. A dead upstream under load must not be able to pile up unbounded
// in-flight connections.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		MaxConnsPerHost:     100,
		MaxIdleConnsPerHost: 10,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewCredentialedClient builds an HTTP client carrying a fresh cookie jar on
// the pooled transport. The session cookie set at login rides on every
// subsequent request, API and realtime alike. A zero timeout means none;
// streaming consumers pass 0 so the response body is never cut off.
func NewCredentialedClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: DefaultTransport(),
		Jar:       jar,
		Timeout:   timeout,
	}, nil
}
