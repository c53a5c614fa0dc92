// internal/domain/notify/dedup.go
package notify

import (
	"fmt"
	"sync"
	"time"
)

// DedupCache is a process-wide, time-bucketed set of notification keys. A key
// marked in one TTL bucket suppresses repeat notifications until wall-clock
// time rolls into the next bucket. Entries are cleared wholesale on a fixed
// interval by the periodic runner rather than expiring individually, so
// suppression is best-effort: a key marked just before a clear is forgotten
// slightly before its nominal TTL.
//
// Safe for concurrent use by independent triggers.
type DedupCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]struct{}
}

func NewDedupCache(ttl time.Duration) *DedupCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DedupCache{
		ttl:  ttl,
		seen: make(map[string]struct{}),
	}
}

// HasSeen reports whether the key was already marked in the current bucket.
func (c *DedupCache) HasSeen(key string, now time.Time) bool {
	bk := c.bucketed(key, now)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[bk]
	return ok
}

// MarkSeen records the key in the current bucket.
func (c *DedupCache) MarkSeen(key string, now time.Time) {
	bk := c.bucketed(key, now)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[bk] = struct{}{}
}

// MarkIfNew records the key and reports true if it was not already present in
// the current bucket. Check and insert happen under one lock so two
// concurrent dispatchers cannot both claim the same key.
func (c *DedupCache) MarkIfNew(key string, now time.Time) bool {
	bk := c.bucketed(key, now)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[bk]; ok {
		return false
	}
	c.seen[bk] = struct{}{}
	return true
}

// Clear removes all entries.
func (c *DedupCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = make(map[string]struct{})
}

// Count returns the number of tracked entries.
func (c *DedupCache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *DedupCache) bucketed(key string, now time.Time) string {
	return fmt.Sprintf("%s#%d", key, now.UnixNano()/int64(c.ttl))
}
