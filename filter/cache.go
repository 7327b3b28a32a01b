package filter

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/coffersTech/nanofilter/value"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is used by NewCache when size is not positive.
const DefaultCacheSize = 1024

// Cache memoizes compiled predicates keyed by value.Key of their filter.
// Concurrent compiles of the same filter run once. Failed compiles
// are not cached.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element

	group  singleflight.Group
	hits   atomic.Uint64
	misses atomic.Uint64
}

type cacheEntry struct {
	key  string
	pred *Predicate
}

// CacheStats is a point-in-time view of cache counters.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// NewCache returns a cache holding at most size predicates. The least
// recently used entry is evicted first.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		capacity: size,
		ll:       list.New(),
		items:    make(map[string]*list.Element, size),
	}
}

// Compile is the cached form of the package-level Compile.
func (c *Cache) Compile(spec any) (*Predicate, error) {
	v, err := specValue(spec)
	if err != nil {
		return nil, err
	}
	return c.CompileValue(v)
}

// CompileJSON is the cached form of the package-level CompileJSON.
func (c *Cache) CompileJSON(data []byte) (*Predicate, error) {
	v, err := value.ParseJSON(data)
	if err != nil {
		return nil, &ConfigurationError{Code: CodeInvalidJSON, Message: "invalid filter JSON", Cause: err}
	}
	return c.CompileValue(v)
}

// CompileValue is the cached form of the package-level CompileValue.
func (c *Cache) CompileValue(spec value.Value) (*Predicate, error) {
	key := value.Key(spec)
	if p, ok := c.get(key); ok {
		c.hits.Add(1)
		return p, nil
	}
	c.misses.Add(1)

	res, err, _ := c.group.Do(key, func() (any, error) {
		if p, ok := c.get(key); ok {
			return p, nil
		}
		p, err := CompileValue(spec)
		if err != nil {
			return nil, err
		}
		c.add(key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*Predicate), nil
}

// Len returns the number of cached predicates.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// Purge drops every entry. Counters are kept.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.items)
}

func (c *Cache) get(key string) (*Predicate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).pred, true
}

func (c *Cache) add(key string, p *Predicate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*cacheEntry).pred = p
		return
	}
	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, pred: p})
	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}
