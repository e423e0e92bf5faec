package sqlite

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/roach88/infobase/internal/thing"
)

var testTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testMeta(offset time.Duration) thing.Meta {
	return thing.Meta{
		Timestamp: testTime.Add(offset),
		Comment:   "test",
		IP:        "127.0.0.1",
		AuthorKey: "/user/admin",
	}
}

func page(key, title string) thing.Item {
	return thing.Item{Key: key, Type: "/type/page", Data: thing.Data{"title": title}}
}

// mapCache is a minimal store.Cache for exercising cache wiring.
type mapCache struct {
	items   map[string]*thing.Thing
	removed []string
}

func newMapCache() *mapCache {
	return &mapCache{items: map[string]*thing.Thing{}}
}

func (c *mapCache) Get(key string) (*thing.Thing, bool) {
	t, ok := c.items[key]
	return t.Clone(), ok
}

func (c *mapCache) Add(t *thing.Thing) { c.items[t.Key] = t.Clone() }

func (c *mapCache) Remove(key string) {
	delete(c.items, key)
	c.removed = append(c.removed, key)
}

func (c *mapCache) Purge() { c.items = map[string]*thing.Thing{} }

// gatedCache blocks its first Add until release is closed.
type gatedCache struct {
	mu      sync.Mutex
	items   map[string]*thing.Thing
	gated   bool
	entered chan struct{}
	release chan struct{}
}

func newGatedCache() *gatedCache {
	return &gatedCache{
		items:   map[string]*thing.Thing{},
		gated:   true,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (c *gatedCache) Get(key string) (*thing.Thing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.items[key]
	return t.Clone(), ok
}

func (c *gatedCache) Add(t *thing.Thing) {
	c.mu.Lock()
	gated := c.gated
	c.gated = false
	c.mu.Unlock()
	if gated {
		close(c.entered)
		<-c.release
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[t.Key] = t.Clone()
}

func (c *gatedCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *gatedCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = map[string]*thing.Thing{}
}
