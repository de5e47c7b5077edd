package cache

import (
	"encoding/json"
	"sync"
	"time"
)

type localEntry struct {
	payload   json.RawMessage
	writtenAt time.Time
}

// ttlCache is the in-process layer in front of the remote mirror. Entries
// expire after a fixed TTL; BulkUpsert clears it wholesale.
type ttlCache struct {
	mu      sync.Mutex
	entries map[string]localEntry
	ttl     time.Duration
	now     func() time.Time
}

func newTTLCache(ttl time.Duration, now func() time.Time) *ttlCache {
	if now == nil {
		now = time.Now
	}
	return &ttlCache{
		entries: make(map[string]localEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *ttlCache) get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.writtenAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.payload, true
}

func (c *ttlCache) set(key string, payload json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = localEntry{payload: payload, writtenAt: c.now()}
}

func (c *ttlCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]localEntry)
}

func (c *ttlCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
