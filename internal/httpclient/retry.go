package httpclient

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy controls which responses DoWithRetry retries.
type RetryPolicy struct {
	Attempts   int           // total attempts including the first; <1 means 1
	Max429Wait time.Duration // cap on Retry-After for 429
	Backoff5xx time.Duration // wait before retrying a 5xx
}

// CatalogRetryPolicy is used for EPG catalog downloads: two attempts, honour
// Retry-After up to 30s.
var CatalogRetryPolicy = RetryPolicy{
	Attempts:   2,
	Max429Wait: 30 * time.Second,
	Backoff5xx: time.Second,
}

// DoWithRetry sends req and retries on 429 and 5xx per policy. Requests must
// not carry a body. Other 4xx responses are returned as is. The caller closes
// resp.Body when err == nil.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	if client == nil {
		client = Default()
	}
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		wait, retry := retryAfter(resp, policy)
		if !retry || attempt >= attempts {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		req = req.Clone(ctx)
	}
}

func retryAfter(resp *http.Response, policy RetryPolicy) (time.Duration, bool) {
	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests:
		return parseRetryAfter(resp.Header.Get("Retry-After"), policy.Max429Wait), true
	case code >= 500:
		return policy.Backoff5xx, true
	}
	return 0, false
}

// parseRetryAfter reads seconds or an HTTP date, capped at max.
func parseRetryAfter(s string, max time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	d := time.Second
	if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
		d = time.Duration(sec) * time.Second
	} else if t, err := http.ParseTime(s); err == nil {
		d = max0(time.Until(t))
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func max0(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
