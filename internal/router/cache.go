package router

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/af-corp/helmsman/internal/types"
)

// DefaultCacheTTL bounds how long a routing decision may be replayed.
const DefaultCacheTTL = 5 * time.Minute

// DefaultCacheMaxEntries is the bounded-size safety valve.
const DefaultCacheMaxEntries = 1024

// fingerprint derives the cache key from the query class, the normalized
// constraint set, and the registry version. Baking the version into the key
// invalidates every entry from an older model set without a flush call.
func fingerprint(class types.QueryClass, c types.Constraints, registryVersion uint64) string {
	caps := make([]string, len(c.RequiredCapabilities))
	for i, cap := range c.RequiredCapabilities {
		caps[i] = string(cap)
	}
	sort.Strings(caps)

	return fmt.Sprintf("%s|v%d|cost=%.6f|lat=%d|caps=%s",
		class, registryVersion, c.MaxCostUSD, c.MaxLatency.Milliseconds(), strings.Join(caps, ","))
}

type cacheEntry struct {
	decision  types.RoutingDecision
	expiresAt time.Time
}

// decisionCache memoizes recent routing decisions. Concurrent misses for
// the same key may both compute; the last write wins, which is safe because
// both decisions came from the same registry version.
type decisionCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]cacheEntry
	now        func() time.Time
}

func newDecisionCache(ttl time.Duration, maxEntries int, now func() time.Time) *decisionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	if now == nil {
		now = time.Now
	}
	return &decisionCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]cacheEntry),
		now:        now,
	}
}

func (c *decisionCache) get(key string) (types.RoutingDecision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return types.RoutingDecision{}, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return types.RoutingDecision{}, false
	}
	return e.decision, true
}

func (c *decisionCache) put(key string, d types.RoutingDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = cacheEntry{decision: d, expiresAt: c.now().Add(c.ttl)}
}

// evictLocked frees one slot: expired entries go first, otherwise an
// arbitrary entry. Eviction order for live entries is deliberately
// unspecified.
func (c *decisionCache) evictLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			return
		}
	}
	for k := range c.entries {
		delete(c.entries, k)
		return
	}
}

func (c *decisionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
