package knowledge

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// cacheEntry holds bookkeeping for one cached table schema.
type cacheEntry struct {
	key       string
	schema    *TableSchema
	createdAt time.Time
	lastUsed  atomic.Int64 // unix-nanos
	hits      atomic.Int64
}

// SchemaCache is an O(1) LRU cache of table schemas with a TTL.
// Schemas change rarely within a run, so a short TTL keeps repeated
// describe calls off the database without risking stale plans.
type SchemaCache struct {
	cap int
	ttl time.Duration

	mu    sync.Mutex
	lru   *list.List // front = most-recent
	items map[string]*list.Element
}

// NewSchemaCache returns a cache with the given maximum size and TTL.
func NewSchemaCache(max int, ttl time.Duration) *SchemaCache {
	if max <= 0 {
		max = 100
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SchemaCache{
		cap:   max,
		ttl:   ttl,
		lru:   list.New(),
		items: make(map[string]*list.Element, max),
	}
}

// Get returns the cached schema for the key, honoring the TTL.
func (c *SchemaCache) Get(key string) (*TableSchema, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ele, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := ele.Value.(*cacheEntry)
	if time.Since(e.createdAt) > c.ttl {
		c.lru.Remove(ele)
		delete(c.items, key)
		return nil, false
	}

	c.lru.MoveToFront(ele)
	e.hits.Add(1)
	e.lastUsed.Store(time.Now().UnixNano())
	return e.schema, true
}

// Put inserts the schema or refreshes its position if already cached.
func (c *SchemaCache) Put(key string, schema *TableSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.items[key]; ok {
		e := ele.Value.(*cacheEntry)
		e.schema = schema
		e.createdAt = time.Now()
		e.lastUsed.Store(e.createdAt.UnixNano())
		c.lru.MoveToFront(ele)
		return
	}

	e := &cacheEntry{
		key:       key,
		schema:    schema,
		createdAt: time.Now(),
	}
	e.lastUsed.Store(e.createdAt.UnixNano())
	e.hits.Store(1)

	c.items[key] = c.lru.PushFront(e)
	if len(c.items) > c.cap {
		c.evictOldest()
	}
}

// evictOldest removes the LRU element (caller holds the lock).
func (c *SchemaCache) evictOldest() {
	ele := c.lru.Back()
	if ele == nil {
		return
	}
	c.lru.Remove(ele)
	delete(c.items, ele.Value.(*cacheEntry).key)
}

// Invalidate drops one key.
func (c *SchemaCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.items[key]; ok {
		c.lru.Remove(ele)
		delete(c.items, key)
	}
}

// Clear empties the cache.
func (c *SchemaCache) Clear() {
	c.mu.Lock()
	c.lru.Init()
	c.items = make(map[string]*list.Element, c.cap)
	c.mu.Unlock()
}

// Size returns the current number of cached schemas.
func (c *SchemaCache) Size() int {
	c.mu.Lock()
	n := len(c.items)
	c.mu.Unlock()
	return n
}

// CacheStats reports aggregate cache state for logging.
type CacheStats struct {
	Size      int
	Cap       int
	TotalHits int64
	OldestAge time.Duration
}

// Stats snapshots the cache.
func (c *SchemaCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := CacheStats{Size: len(c.items), Cap: c.cap}
	now := time.Now()
	for ele := c.lru.Front(); ele != nil; ele = ele.Next() {
		e := ele.Value.(*cacheEntry)
		s.TotalHits += e.hits.Load()
		if age := now.Sub(e.createdAt); age > s.OldestAge {
			s.OldestAge = age
		}
	}
	return s
}
