package probe

import (
	"context"
	"sync"
)

// DefaultConcurrency is the number of probes in flight per batch.
const DefaultConcurrency = 32

// Pool fans a batch of URLs out over a bounded number of workers.
type Pool struct {
	Reacher     Reacher
	Concurrency int
}

// CheckAll probes every URL and returns results in input order. When ctx is
// done, probes that have not finished report false and CheckAll returns
// without waiting for them.
func (p *Pool) CheckAll(ctx context.Context, urls []string) []bool {
	results := make([]bool, len(urls))
	if len(urls) == 0 {
		return results
	}
	n := p.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}

	var (
		mu     sync.Mutex
		closed bool
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, n)
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			ok := p.Reacher.IsReachable(ctx, u)
			mu.Lock()
			if !closed {
				results[i] = ok
			}
			mu.Unlock()
		}(i, u)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}

	mu.Lock()
	closed = true
	out := append([]bool(nil), results...)
	mu.Unlock()
	return out
}
