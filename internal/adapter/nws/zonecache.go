package nws

import (
	"context"
	"sync"

	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/paulmach/orb"
)

// ZoneSource resolves a zone endpoint to its exterior rings.
type ZoneSource interface {
	ZoneShape(ctx context.Context, endpoint string) ([]orb.Ring, error)
}

// CachedZoneSource wraps a ZoneSource with an in-memory LRU cache keyed by
// zone endpoint.
type CachedZoneSource struct {
	inner   ZoneSource
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedZoneSource creates a cache decorator around a zone source.
func NewCachedZoneSource(inner ZoneSource, maxEntries int, metrics *observability.Metrics) *CachedZoneSource {
	return &CachedZoneSource{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedZoneSource) ZoneShape(ctx context.Context, endpoint string) ([]orb.Ring, error) {
	if shape, ok := c.cache.get(endpoint); ok {
		c.metrics.ZoneCache.WithLabelValues("hit").Inc()
		return shape, nil
	}
	c.metrics.ZoneCache.WithLabelValues("miss").Inc()

	shape, err := c.inner.ZoneShape(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty shapes so zones without geometry are retried.
	if len(shape) > 0 {
		c.cache.put(endpoint, shape)
	}
	return shape, nil
}

// lruCache is a simple thread-safe LRU cache for zone shapes.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []orb.Ring
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]orb.Ring, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []orb.Ring) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
