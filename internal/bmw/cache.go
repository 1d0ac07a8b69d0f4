package bmw

import (
	"sync"
	"time"
)

// staleGrace is how long an expired cache entry keeps being served
// after the first caller has gone to the network for a refresh. This
// dedupes pile-ons without a singleflight mechanism.
const staleGrace = 3 * time.Second

type cacheEntry struct {
	res          *apiResponse
	lastModified time.Time
}

// responseCache is a small in-memory response cache keyed by
// method+path. It is owned by a Client, not shared process-wide.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	now     func() time.Time
}

func newResponseCache(now func() time.Time) *responseCache {
	if now == nil {
		now = time.Now
	}
	return &responseCache{
		entries: make(map[string]*cacheEntry),
		now:     now,
	}
}

// get returns the cached response if it is still fresh for ttl. On
// expiry the entry's timestamp is nudged into the future instead of
// being evicted, so concurrent refreshes within the grace window keep
// getting the stale body while the first caller refetches.
func (c *responseCache) get(key string, ttl time.Duration) (*apiResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if entry.lastModified.Add(ttl).After(c.now()) {
		return entry.res, true
	}

	entry.lastModified = c.now().Add(staleGrace)
	return nil, false
}

func (c *responseCache) put(key string, res *apiResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{res: res, lastModified: c.now()}
}

func (c *responseCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
