package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// WithProxy returns a client that sends every request through proxyURL.
// http and https proxies use the transport's CONNECT support; socks5 and
// socks5h go through golang.org/x/net/proxy. An empty proxyURL gives
// WithTimeout(timeout).
func WithProxy(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if proxyURL == "" {
		return WithTimeout(timeout), nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("proxy url: %w", err)
	}
	tr := sharedTransport.Clone()
	switch u.Scheme {
	case "http", "https":
		tr.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		d, err := proxy.FromURL(u, &net.Dialer{Timeout: 10 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("proxy %s: %w", u.Redacted(), err)
		}
		tr.Proxy = nil
		if cd, ok := d.(proxy.ContextDialer); ok {
			tr.DialContext = cd.DialContext
		} else {
			tr.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return d.Dial(network, addr)
			}
		}
	default:
		return nil, fmt.Errorf("proxy %s: unsupported scheme %q", u.Redacted(), u.Scheme)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout, Transport: tr}, nil
}
