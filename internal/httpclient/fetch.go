package httpclient

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// MaxBodySize bounds playlist, catalog and XMLTV downloads.
var MaxBodySize int64 = 64 << 20

// ErrBodyTooLarge is returned by Fetch for bodies over MaxBodySize.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// StatusError is returned by Fetch for non-200 responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Fetch downloads rawURL with retries and returns the decoded body.
// Brotli and gzip content encodings are decoded here because setting
// Accept-Encoding disables the transport's transparent gzip handling.
func Fetch(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept-Encoding", "br, gzip")
	resp, err := DoWithRetry(ctx, client, req, CatalogRetryPolicy)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	body, err := DecodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	data, err := io.ReadAll(io.LimitReader(body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", rawURL, err)
	}
	if int64(len(data)) > MaxBodySize {
		return nil, fmt.Errorf("GET %s: %w", rawURL, ErrBodyTooLarge)
	}
	return data, nil
}

// DecodeBody wraps resp.Body according to its Content-Encoding.
func DecodeBody(resp *http.Response) (io.Reader, error) {
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return resp.Body, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", enc)
	}
}
