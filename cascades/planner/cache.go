package planner

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/wbrown/janus-cascades/cascades/properties"
)

// PlanCache caches planning results to avoid re-planning identical queries.
// Results are shared; callers must not change them.
type PlanCache struct {
	cache map[uint64]*cachedPlan
	mu    sync.RWMutex

	// Statistics
	hits   int64
	misses int64

	// Configuration
	maxSize int
	ttl     time.Duration
}

type cachedPlan struct {
	result    *Result
	timestamp time.Time
}

// NewPlanCache creates a new plan cache
func NewPlanCache(maxSize int, ttl time.Duration) *PlanCache {
	if maxSize <= 0 {
		maxSize = 1000 // Default to 1000 cached plans
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute // Default to 5 minute TTL
	}

	return &PlanCache{
		cache:   make(map[uint64]*cachedPlan),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get retrieves a cached result if it exists and is not expired. The
// requested ordering is part of the key.
func (c *PlanCache) Get(key string, ordering properties.RequestedOrdering, config Configuration) (*Result, bool) {
	if c == nil {
		return nil, false
	}

	k := computeKey(key, ordering, config)

	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.cache[k]
	if !ok || time.Since(cached.timestamp) > c.ttl {
		// expired entries are removed lazily by Set
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return cached.result, true
}

// Set stores a result in the cache
func (c *PlanCache) Set(key string, ordering properties.RequestedOrdering, config Configuration, result *Result) {
	if c == nil || result == nil {
		return
	}

	k := computeKey(key, ordering, config)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cache) >= c.maxSize {
		c.evictExpired()

		// If still full, evict oldest
		if len(c.cache) >= c.maxSize {
			c.evictOldest()
		}
	}

	c.cache[k] = &cachedPlan{result: result, timestamp: time.Now()}
}

// Clear removes all cached plans
func (c *PlanCache) Clear() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[uint64]*cachedPlan)
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
}

// Stats returns cache statistics
func (c *PlanCache) Stats() (hits, misses int64, size int) {
	if c == nil {
		return 0, 0, 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses), len(c.cache)
}

// computeKey hashes the query key and requested ordering with the options
// that change plans.
func computeKey(key string, ordering properties.RequestedOrdering, config Configuration) uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "QUERY:%s;", key)
	fmt.Fprintf(h, "ORDER:%s/%s;", ordering, ordering.Distinctness)

	disabled := append([]string(nil), config.DisabledRules...)
	sort.Strings(disabled)
	fmt.Fprintf(h, "OPTIONS:")
	fmt.Fprintf(h, "IndexMatching:%v;", config.EnableIndexMatching)
	fmt.Fprintf(h, "Disabled:%v;", disabled)
	fmt.Fprintf(h, "MaxTasks:%d;", config.MaxTaskCount)

	return h.Sum64()
}

// evictExpired removes expired entries from the cache
func (c *PlanCache) evictExpired() {
	now := time.Now()
	for key, cached := range c.cache {
		if now.Sub(cached.timestamp) > c.ttl {
			delete(c.cache, key)
		}
	}
}

// evictOldest removes the oldest entry from the cache
func (c *PlanCache) evictOldest() {
	var oldestKey uint64
	var oldestTime time.Time
	found := false

	for key, cached := range c.cache {
		if !found || cached.timestamp.Before(oldestTime) {
			oldestKey, oldestTime, found = key, cached.timestamp, true
		}
	}

	if found {
		delete(c.cache, oldestKey)
	}
}
