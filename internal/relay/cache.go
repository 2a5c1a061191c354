package relay

import (
	"sync"
	"time"
)

// cacheTTL is how long a cached response remains valid for an identical
// outgoing command.
const cacheTTL = 5 * time.Second

type cacheEntry struct {
	response []byte
	at       time.Time
}

// responseCache memoizes the most recent response for a given raw
// command so that bursts of identical status polls within the TTL don't
// each pay for a round trip to the device. Expiration is lazy: entries
// are only evicted when looked up again after they've gone stale.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newResponseCache() *responseCache {
	return &responseCache{entries: make(map[string]cacheEntry)}
}

func (c *responseCache) get(cmd []byte) ([]byte, bool) {
	key := string(cmd)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.at) > cacheTTL {
		delete(c.entries, key)
		return nil, false
	}
	return entry.response, true
}

func (c *responseCache) put(cmd, response []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[string(cmd)] = cacheEntry{response: response, at: time.Now()}
}
