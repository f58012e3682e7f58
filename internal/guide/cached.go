package guide

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/snapetech/iptvconstructor/internal/epglink"
)

// DefaultMaxAge is how long a saved snapshot is used without refetching.
const DefaultMaxAge = 24 * time.Hour

// Cached serves Source through a snapshot file. A snapshot younger than
// MaxAge is used as is; otherwise Source is fetched and the snapshot
// rewritten. When the fetch fails, a stale snapshot is used if one exists.
type Cached struct {
	Source Source
	Path   string
	MaxAge time.Duration
}

func (c *Cached) Table(ctx context.Context) (*epglink.Table, error) {
	maxAge := c.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	snap := &Snapshot{Path: c.Path}
	fi, statErr := os.Stat(c.Path)
	if statErr == nil && time.Since(fi.ModTime()) < maxAge {
		if t, err := snap.Table(ctx); err == nil {
			return t, nil
		}
	}

	t, err := c.Source.Table(ctx)
	if err != nil {
		if statErr != nil {
			return nil, err
		}
		stale, serr := snap.Table(ctx)
		if serr != nil {
			return nil, err
		}
		log.Printf("guide: %v; using snapshot %s from %s", err, c.Path, fi.ModTime().Format(time.RFC3339))
		return stale, nil
	}
	if err := SaveSnapshot(c.Path, t); err != nil {
		log.Printf("guide: save snapshot: %v", err)
	}
	return t, nil
}
