// Package cache provides the bounded result cache in front of the
// search engine: least-recently-used eviction under a byte budget, and
// selective invalidation driven by index mutations. Entries never
// outlive a change to a document their query's scope could have
// matched, so a hit is always byte-identical to a fresh execution.
package cache

import (
	"container/list"
	"sync"

	"github.com/starford/othala/internal/models"
)

// Scope is the declared envelope of a cached query, provided by the
// query builder. Contains must over-approximate: answering true for a
// document the query could never return is fine, the reverse is not.
type Scope interface {
	Contains(models.Document) bool
}

type entry struct {
	sig   string
	value interface{}
	size  int64
	scope Scope
}

// Cache is a memory-bounded LRU keyed by normalized query signature.
// The bound is a byte budget rather than an entry count because result
// sets vary widely in size.
type Cache struct {
	mu     sync.Mutex
	budget int64
	used   int64
	gen    uint64     // bumped on every invalidation
	ll     *list.List // front = most recently used
	items  map[string]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache with the given byte budget. A non-positive budget
// disables caching entirely (every Get misses, every Put is dropped).
func New(budgetBytes int64) *Cache {
	return &Cache{
		budget: budgetBytes,
		ll:     list.New(),
		items:  make(map[string]*list.Element),
	}
}

// Get returns the cached value for a query signature, marking it most
// recently used.
func (c *Cache) Get(sig string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[sig]
	if !ok {
		c.misses++
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return el.Value.(*entry).value, true
}

// Generation returns the current invalidation generation. Callers
// capture it before computing a result and hand it back to Put, which
// orders the store against any invalidation that ran in between.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Put stores a result with its approximate size and declared scope.
// gen is the generation observed (via Generation) before the value was
// computed: when any invalidation has run since, the value may have
// been derived from pre-mutation state, so the store is dropped rather
// than reinstating a stale entry behind the invalidation. Oversized
// values (bigger than the whole budget) are not cached.
func (c *Cache) Put(sig string, value interface{}, size int64, scope Scope, gen uint64) {
	if size > c.budget {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}

	if el, ok := c.items[sig]; ok {
		c.used -= el.Value.(*entry).size
		c.ll.Remove(el)
		delete(c.items, sig)
	}

	e := &entry{sig: sig, value: value, size: size, scope: scope}
	c.items[sig] = c.ll.PushFront(e)
	c.used += size

	for c.used > c.budget {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
		c.evictions++
	}
}

// Invalidate voids every entry whose declared scope could include the
// given document, and returns how many were removed. Called by the
// indexer for both the old and new state of a mutated document; the
// over-approximation is intentional.
func (c *Cache) Invalidate(doc models.Document) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Even when nothing was cached, an in-flight Put may be carrying a
	// result computed against the pre-mutation index.
	c.gen++

	removed := 0
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		if e.scope == nil || e.scope.Contains(doc) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

// Purge empties the cache. Used after a full index rebuild.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.used = 0
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries   int
	UsedBytes int64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Snapshot returns current cache statistics.
func (c *Cache) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.items),
		UsedBytes: c.used,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.sig)
	c.used -= e.size
}
