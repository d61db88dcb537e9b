// Package gridcache memoizes resolved NWS gridpoint forecast URLs.
// Resolution is an extra round-trip per request and the mapping from
// coordinates to gridpoint is effectively static, so entries are kept for
// the process lifetime subject to a max age.
package gridcache

import (
	"sync"
	"time"
)

type entry struct {
	url        string
	resolvedAt time.Time
}

// Cache is a concurrency-safe memoization of city code to hourly-forecast URL.
type Cache struct {
	mu sync.RWMutex

	entries map[string]entry

	// maxAge of an entry; <= 0 means entries never expire.
	maxAge time.Duration
}

// New creates a Cache with the given entry max age.
func New(maxAge time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		maxAge:  maxAge,
	}
}

// Get returns the cached forecast URL for a city code, if present and fresh.
func (c *Cache) Get(code string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[code]
	if !ok {
		return "", false
	}
	if c.maxAge > 0 && time.Since(e.resolvedAt) > c.maxAge {
		return "", false
	}
	return e.url, true
}

// Put stores the forecast URL for a city code.
func (c *Cache) Put(code, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[code] = entry{url: url, resolvedAt: time.Now()}
}
