package httpclient

import (
	"context"
	"net/url"
	"sync"
)

// HostSemaphore caps in-flight requests per origin so a playlist with
// hundreds of streams on one host does not open hundreds of connections to it.
//
//	release, err := sem.Acquire(ctx, streamURL)
//	if err != nil { ... }
//	defer release()
type HostSemaphore struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	limit int
}

func NewHostSemaphore(perHost int) *HostSemaphore {
	if perHost < 1 {
		perHost = 1
	}
	return &HostSemaphore{
		slots: make(map[string]chan struct{}),
		limit: perHost,
	}
}

// Acquire blocks until rawURL's origin has a free slot or ctx is done.
func (h *HostSemaphore) Acquire(ctx context.Context, rawURL string) (func(), error) {
	slot := h.slotFor(origin(rawURL))
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *HostSemaphore) slotFor(key string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.slots[key]
	if !ok {
		s = make(chan struct{}, h.limit)
		h.slots[key] = s
	}
	return s
}

// origin reduces a URL to scheme://host[:port]; unparseable input is its own key.
func origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}
