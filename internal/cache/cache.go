// Package cache provides the latest-revision cache installed on a site's
// store. Entries are bounded by count and expire after a TTL.
package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/roach88/infobase/internal/store"
	"github.com/roach88/infobase/internal/thing"
)

// Defaults used when a non-positive size or TTL is given.
const (
	DefaultSize = 1024
	DefaultTTL  = 5 * time.Minute
)

// LRU caches things by key. Values are cloned on the way in and out so
// callers never share data with the cache.
type LRU struct {
	lru    *expirable.LRU[string, *thing.Thing]
	hits   atomic.Uint64
	misses atomic.Uint64
}

var _ store.Cache = (*LRU)(nil)

// New returns a cache holding at most size things for at most ttl.
func New(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRU{lru: expirable.NewLRU[string, *thing.Thing](size, nil, ttl)}
}

// Get returns a copy of the cached thing for key.
func (c *LRU) Get(key string) (*thing.Thing, bool) {
	t, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return t.Clone(), true
}

// Add stores a copy of t under its key.
func (c *LRU) Add(t *thing.Thing) {
	if t == nil || t.Key == "" {
		return
	}
	c.lru.Add(t.Key, t.Clone())
}

// Remove drops key from the cache.
func (c *LRU) Remove(key string) {
	c.lru.Remove(key)
}

// Purge drops every entry.
func (c *LRU) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *LRU) Len() int {
	return c.lru.Len()
}

// Stats is a snapshot of cache effectiveness.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Stats returns the hit and miss counters since creation.
func (c *LRU) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.Len(),
	}
}

// Factory builds one cache per site.
type Factory func(site string) store.Cache

// NewFactory returns a Factory producing LRU caches with the given bounds.
func NewFactory(size int, ttl time.Duration) Factory {
	return func(string) store.Cache {
		return New(size, ttl)
	}
}
