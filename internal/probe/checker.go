// Package probe decides whether stream URLs are alive with a cheap
// partial-content GET.
package probe

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/grafov/m3u8"
	"golang.org/x/time/rate"

	"github.com/snapetech/iptvconstructor/internal/httpclient"
	"github.com/snapetech/iptvconstructor/internal/metrics"
	"github.com/snapetech/iptvconstructor/internal/safeurl"
)

const (
	DefaultTimeout = 3 * time.Second

	// ProbeRange asks for the first 10 bytes of the body only.
	ProbeRange = "bytes=0-9"

	maxPlaylistSize = 1 << 20
)

// Reacher is a liveness predicate over a URL.
type Reacher interface {
	IsReachable(ctx context.Context, url string) bool
}

// Func adapts an ordinary function to Reacher.
type Func func(ctx context.Context, url string) bool

func (f Func) IsReachable(ctx context.Context, url string) bool { return f(ctx, url) }

// Checker probes URLs over HTTP. The zero value is usable: 3s timeout, no
// rate limit, no per-host cap, no cache.
//
// A URL is reachable iff the server answers 200 within Timeout (or 206 when
// AcceptPartial is set). Transport errors, bad URLs and non-http(s) schemes
// all count as unreachable; nothing is retried.
type Checker struct {
	Client        *http.Client // nil: shared transport with Timeout
	Timeout       time.Duration
	AcceptPartial bool
	// VerifyHLS fetches .m3u8 URLs in full and requires a playlist with at
	// least one variant or segment.
	VerifyHLS bool
	Limiter   *rate.Limiter
	Hosts     *httpclient.HostSemaphore
	Cache     *Cache
	Logf      func(format string, args ...any) // nil: log.Printf
}

func (c *Checker) IsReachable(ctx context.Context, rawURL string) bool {
	if c.Cache != nil {
		if pass, ok := c.Cache.Get(rawURL); ok {
			metrics.ProbesTotal.WithLabelValues(metrics.ProbeCached).Inc()
			return pass
		}
	}
	pass, result := c.probe(ctx, rawURL)
	metrics.ProbesTotal.WithLabelValues(result).Inc()
	if c.Cache != nil && result != metrics.ProbeSkipped {
		c.Cache.Put(rawURL, pass)
	}
	return pass
}

func (c *Checker) probe(parent context.Context, rawURL string) (bool, string) {
	if !safeurl.IsHTTPOrHTTPS(rawURL) {
		c.logf("probe %s: not an http(s) URL", rawURL)
		return false, metrics.ProbeSkipped
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(parent); err != nil {
			return false, metrics.ProbeSkipped
		}
	}
	if c.Hosts != nil {
		release, err := c.Hosts.Acquire(parent, rawURL)
		if err != nil {
			return false, metrics.ProbeSkipped
		}
		defer release()
	}

	ctx, cancel := context.WithTimeout(parent, c.timeout())
	defer cancel()
	hls := c.VerifyHLS && isPlaylistURL(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		c.logf("probe %s: %v", rawURL, err)
		return false, metrics.ProbeError
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	if !hls {
		req.Header.Set("Range", ProbeRange)
	}

	start := time.Now()
	resp, err := c.client().Do(req)
	if err != nil {
		elapsed := time.Since(start)
		if parent.Err() != nil {
			return false, metrics.ProbeSkipped
		}
		metrics.ProbeDuration.Observe(elapsed.Seconds())
		c.logf("probe %s: %v after %.2fs", rawURL, err, elapsed.Seconds())
		return false, metrics.ProbeError
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK || (c.AcceptPartial && resp.StatusCode == http.StatusPartialContent)
	if ok && hls {
		ok = validPlaylist(resp.Body)
	} else {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64))
	}
	elapsed := time.Since(start)
	metrics.ProbeDuration.Observe(elapsed.Seconds())
	c.logf("probe %s: HTTP %d in %.2fs", rawURL, resp.StatusCode, elapsed.Seconds())
	if !ok {
		return false, metrics.ProbeDead
	}
	return true, metrics.ProbeAlive
}

func (c *Checker) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Checker) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return httpclient.WithTimeout(c.timeout())
}

func (c *Checker) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// validPlaylist reports whether r holds an HLS playlist with content.
func validPlaylist(r io.Reader) bool {
	p, kind, err := m3u8.DecodeFrom(io.LimitReader(r, maxPlaylistSize), false)
	if err != nil {
		return false
	}
	switch kind {
	case m3u8.MASTER:
		return len(p.(*m3u8.MasterPlaylist).Variants) > 0
	case m3u8.MEDIA:
		return p.(*m3u8.MediaPlaylist).Count() > 0
	}
	return false
}

func isPlaylistURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	return ext == ".m3u8" || ext == ".m3u"
}
