// Package httpclient provides the tuned HTTP clients used for catalog fetches
// and liveness probes.
package httpclient

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 8

	// UserAgent is sent on every outbound request. Some stream origins reject
	// Go's default agent.
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36"
)

var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        256,
	MaxIdleConnsPerHost: MaxIdleConnsPerHost,
	IdleConnTimeout:     DefaultIdleConnTimeout,
	TLSHandshakeTimeout: 5 * time.Second,
}

var defaultClient = &http.Client{
	Timeout:   DefaultTimeout,
	Transport: sharedTransport,
}

// Default returns the shared client used for catalog and XMLTV downloads.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client sharing Default's connection pool with its own
// overall timeout. Probes use this so a stalled origin cannot hold a worker.
func WithTimeout(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}
