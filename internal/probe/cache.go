package probe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheTTL is how long a probe result is reused.
const DefaultCacheTTL = 4 * time.Hour

type cacheEntry struct {
	Pass bool      `json:"pass"`
	At   time.Time `json:"at"`
}

// Cache remembers probe results by stream URL. Within one process it dedupes
// URLs shared by several entries; saved to disk it lets a rerun skip streams
// probed recently.
type Cache struct {
	mem *gocache.Cache
	ttl time.Duration
}

// NewCache returns an empty cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{mem: gocache.New(ttl, ttl), ttl: ttl}
}

// LoadCache reads a cache saved by Save. A missing or unreadable file gives
// an empty cache; entries already older than ttl are dropped.
func LoadCache(path string, ttl time.Duration) *Cache {
	c := NewCache(ttl)
	if path == "" {
		return c
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	var stored map[string]cacheEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return c
	}
	for url, e := range stored {
		if left := c.ttl - time.Since(e.At); left > 0 {
			c.mem.Set(url, e, left)
		}
	}
	return c
}

// Get reports the cached result for url, if still fresh.
func (c *Cache) Get(url string) (pass, ok bool) {
	v, found := c.mem.Get(url)
	if !found {
		return false, false
	}
	return v.(cacheEntry).Pass, true
}

func (c *Cache) Put(url string, pass bool) {
	c.mem.SetDefault(url, cacheEntry{Pass: pass, At: time.Now()})
}

func (c *Cache) Len() int {
	return c.mem.ItemCount()
}

// Save writes unexpired entries to path atomically (temp file + rename).
// An empty path is a no-op.
func (c *Cache) Save(path string) error {
	if path == "" {
		return nil
	}
	stored := make(map[string]cacheEntry, c.mem.ItemCount())
	for url, item := range c.mem.Items() {
		stored[url] = item.Object.(cacheEntry)
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(filepath.Clean(path))
	tmp, err := os.CreateTemp(dir, ".probe-cache-*.json.tmp")
	if err != nil {
		return fmt.Errorf("probe cache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("probe cache: write: %w", writeErr)
		}
		return fmt.Errorf("probe cache: close: %w", closeErr)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("probe cache: rename: %w", err)
	}
	return nil
}
