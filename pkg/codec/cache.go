package codec

import (
	"sync"
	"sync/atomic"
)

// parseCacheLimit is the number of distinct strings a parse cache holds
// before it is dropped and started over.
const parseCacheLimit = 16384

var (
	cachingEnabled atomic.Bool

	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
)

func init() {
	cachingEnabled.Store(true)
}

// Stats holds cumulative cache counters for all codec caches.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// CacheStats returns the process-wide cache counters.
func CacheStats() Stats {
	return Stats{
		Hits:   cacheHits.Load(),
		Misses: cacheMisses.Load(),
	}
}

// SetCaching turns the format and parse caches on or off. Turning them off
// does not change any result, only how it is computed.
func SetCaching(enabled bool) {
	cachingEnabled.Store(enabled)
}

// ResetCaches empties every cache and zeroes the counters.
func ResetCaches() {
	numberStrings.reset()
	dateStrings.reset()
	numberValues.reset()
	dateValues.reset()
	cacheHits.Store(0)
	cacheMisses.Store(0)
}

func caching() bool {
	return cachingEnabled.Load()
}

func hit() {
	cacheHits.Add(1)
}

func miss() {
	cacheMisses.Add(1)
}

// stringCache is a fixed-size table of formatted strings indexed by a value
// derived from the formatted input. Slots are published atomically, so
// concurrent readers and writers never race and never block.
type stringCache struct {
	slots []atomic.Pointer[string]
}

func newStringCache(size int) *stringCache {
	return &stringCache{slots: make([]atomic.Pointer[string], size)}
}

func (c *stringCache) load(i int) (string, bool) {
	if s := c.slots[i].Load(); s != nil {
		return *s, true
	}
	return "", false
}

func (c *stringCache) store(i int, s string) {
	c.slots[i].Store(&s)
}

func (c *stringCache) reset() {
	for i := range c.slots {
		c.slots[i].Store(nil)
	}
}

// parseCache memoizes parsed values by their source text. It is a best-effort
// structure: when it grows past its limit the whole map is swapped for an
// empty one instead of evicting entries one by one.
type parseCache[V any] struct {
	limit int64
	size  atomic.Int64
	m     atomic.Pointer[sync.Map]
}

func newParseCache[V any](limit int) *parseCache[V] {
	c := &parseCache[V]{limit: int64(limit)}
	c.m.Store(&sync.Map{})
	return c
}

func (c *parseCache[V]) get(key string) (V, bool) {
	v, ok := c.m.Load().Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (c *parseCache[V]) put(key string, v V) {
	if c.size.Load() >= c.limit {
		c.reset()
	}
	if _, loaded := c.m.Load().LoadOrStore(key, v); !loaded {
		c.size.Add(1)
	}
}

func (c *parseCache[V]) reset() {
	c.m.Store(&sync.Map{})
	c.size.Store(0)
}
