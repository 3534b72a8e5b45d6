// Package cache implements the query cache that sits in front of the
// document store.
//
// Only pure-equality finds whose field set is on the collection's allow-list
// are cached. Invalidation is coarse: any committed write to a collection
// drops every entry tagged with that collection. There is no per-id
// invalidation, because keys do not record which documents produced them.
package cache

import (
	"sync"

	"github.com/roach88/ballotdesk/internal/metrics"
	"github.com/roach88/ballotdesk/internal/store"
)

// Entry is one cached result.
type Entry struct {
	Key   string
	Value []store.Document
	Tag   string // collection name
}

// QueryCache maps query keys to results, grouped by collection tag.
//
// Thread-safety: QueryCache is safe for concurrent use.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]Entry
	byTag   map[string]map[string]struct{}
	gen     map[string]uint64
	metrics *metrics.Metrics
}

// NewQueryCache creates an empty cache. m may be nil.
func NewQueryCache(m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		entries: make(map[string]Entry),
		byTag:   make(map[string]map[string]struct{}),
		gen:     make(map[string]uint64),
		metrics: m,
	}
}

// Get returns a copy of the cached value for key. An entry stored under a
// different tag is a miss.
func (c *QueryCache) Get(key, tag string) ([]store.Document, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if !ok || e.Tag != tag {
		if c.metrics != nil {
			c.metrics.CacheMisses.WithLabelValues(tag).Inc()
		}
		return nil, false
	}
	if c.metrics != nil {
		c.metrics.CacheHits.WithLabelValues(tag).Inc()
	}
	return cloneDocs(e.Value), true
}

// Set stores a copy of docs under key and tag.
func (c *QueryCache) Set(key string, docs []store.Document, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, docs, tag)
}

// Generation returns the invalidation counter for tag. Pair it with
// SetIfCurrent so a result read before a write is never cached after it.
func (c *QueryCache) Generation(tag string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[tag]
}

// SetIfCurrent stores docs only if tag has not been invalidated since gen was
// read. Reports whether the entry was stored.
func (c *QueryCache) SetIfCurrent(key string, docs []store.Document, tag string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[tag] != gen {
		return false
	}
	c.setLocked(key, docs, tag)
	return true
}

func (c *QueryCache) setLocked(key string, docs []store.Document, tag string) {
	if old, ok := c.entries[key]; ok && old.Tag != tag {
		delete(c.byTag[old.Tag], key)
	}
	c.entries[key] = Entry{Key: key, Value: cloneDocs(docs), Tag: tag}
	if c.byTag[tag] == nil {
		c.byTag[tag] = make(map[string]struct{})
	}
	c.byTag[tag][key] = struct{}{}
	c.updateGauge()
}

// InvalidatePattern drops every entry tagged with tag and returns how many
// were removed.
func (c *QueryCache) InvalidatePattern(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.byTag[tag]
	for key := range keys {
		delete(c.entries, key)
	}
	delete(c.byTag, tag)
	c.gen[tag]++

	if c.metrics != nil {
		c.metrics.CacheInvalidations.WithLabelValues(tag).Inc()
	}
	c.updateGauge()
	return len(keys)
}

// Len returns the number of cached entries.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *QueryCache) updateGauge() {
	if c.metrics != nil {
		c.metrics.CacheEntries.Set(float64(len(c.entries)))
	}
}

func cloneDocs(docs []store.Document) []store.Document {
	out := make([]store.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}
