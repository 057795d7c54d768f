package engine

import (
	"maps"
	"sync"

	"github.com/umich-dbgroup/litmus/pkg/cq"
)

// ResultCache stores complete query results keyed by the executed SQL text,
// which already embeds the constraint context.
type ResultCache interface {
	Get(key string) ([]cq.Tuple, bool)
	Put(key string, tuples []cq.Tuple)
}

// MemoryCache is a ResultCache held in memory.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]cq.Tuple
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]cq.Tuple)}
}

func (c *MemoryCache) Get(key string) ([]cq.Tuple, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tuples, ok := c.entries[key]
	return tuples, ok
}

func (c *MemoryCache) Put(key string, tuples []cq.Tuple) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tuples == nil {
		tuples = []cq.Tuple{}
	}
	c.entries[key] = tuples
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot copies the entries for persistence.
func (c *MemoryCache) Snapshot() map[string][]cq.Tuple {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.entries)
}

// Restore merges persisted entries.
func (c *MemoryCache) Restore(entries map[string][]cq.Tuple) {
	c.mu.Lock()
	defer c.mu.Unlock()
	maps.Copy(c.entries, entries)
}
