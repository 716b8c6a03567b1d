// Package infra provides the process-wide shared state behind the
// analysis pipeline: the result cache, the per-client admission
// limiter, and an outbound request throttle. All types are safe for
// concurrent use by multiple in-flight requests.
package infra

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// --- Result cache ---

// CachedResult holds a cached pipeline response with its creation time.
type CachedResult struct {
	Key       string
	Value     any
	CreatedAt time.Time
}

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

type cacheEntry struct {
	res       CachedResult
	expiresAt time.Time
}

// ResultCache is a thread-safe in-memory cache with per-entry TTL and a
// least-recently-used capacity bound. Get on an expired entry behaves
// as a miss and removes the entry. Racing puts are last-write-wins.
//
// Recency is one global order shared by every key, so the cache cannot
// be sharded the way ClientLimiter is: eviction must see the true
// least-recently-used entry across all keys. One mutex guards it
// instead, and every critical section is O(1) map and list work, so
// the lock is never held across fetches or inference.
type ResultCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	hits       int64
	misses     int64
}

// NewResultCache creates a cache holding at most maxEntries values for
// at most ttl each. maxEntries <= 0 means no capacity bound.
func NewResultCache(ttl time.Duration, maxEntries int) *ResultCache {
	return &ResultCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get retrieves a cached result. The second return is false when the
// key is absent or expired.
func (c *ResultCache) Get(key string) (CachedResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return CachedResult{}, false
	}
	ent := el.Value.(*cacheEntry)
	if time.Now().After(ent.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses++
		return CachedResult{}, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return ent.res, true
}

// Put stores a value under key, evicting the least-recently-used entry
// when the capacity bound is exceeded.
func (c *ResultCache) Put(key string, value any) {
	now := time.Now()
	ent := &cacheEntry{
		res:       CachedResult{Key: key, Value: value, CreatedAt: now},
		expiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value = ent
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(ent)

	if c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).res.Key)
		}
	}
}

// Invalidate removes a key from the cache.
func (c *ResultCache) Invalidate(key string) {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
	c.mu.Unlock()
}

// Stats returns current cache counters.
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// --- Per-client admission limiter ---

// idleWindows is how many windows a client may stay silent before its
// entry is swept.
const idleWindows = 3

// limiterShards spreads client identities over independent locks so
// unrelated clients never contend on one mutex.
const limiterShards = 16

type limiterShard struct {
	mu      sync.Mutex
	clients map[string][]time.Time
}

// ClientLimiter admits at most limit requests per client identity
// within a sliding time window. Rejection has no side effect beyond
// pruning stale timestamps. The client map is sharded by identity
// hash; an admission locks only the caller's shard.
type ClientLimiter struct {
	limit     int
	window    time.Duration
	shards    [limiterShards]limiterShard
	lastSweep atomic.Int64 // unix nanos of the last idle sweep
}

// NewClientLimiter creates a sliding-window limiter allowing limit
// requests per window for each client identity.
func NewClientLimiter(limit int, window time.Duration) *ClientLimiter {
	l := &ClientLimiter{
		limit:  limit,
		window: window,
	}
	for i := range l.shards {
		l.shards[i].clients = make(map[string][]time.Time)
	}
	l.lastSweep.Store(time.Now().UnixNano())
	return l
}

// shard maps a client identity to its shard. The same identity always
// lands on the same shard, so its check-then-append stays atomic.
func (l *ClientLimiter) shard(clientID string) *limiterShard {
	h := fnv.New32a()
	h.Write([]byte(clientID)) //nolint:errcheck // fnv never fails
	return &l.shards[h.Sum32()%limiterShards]
}

// Admit records and admits the request when the client is under its
// limit, and rejects it otherwise. The check and the append happen
// under the shard lock, so concurrent requests cannot exceed the limit.
func (l *ClientLimiter) Admit(clientID string) bool {
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.maybeSweep(now)

	s := l.shard(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()

	stamps := s.clients[clientID]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		s.clients[clientID] = kept
		return false
	}
	s.clients[clientID] = append(kept, now)
	return true
}

// Remaining returns how many requests the client may still make in the
// current window.
func (l *ClientLimiter) Remaining(clientID string) int {
	cutoff := time.Now().Add(-l.window)

	s := l.shard(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, ts := range s.clients[clientID] {
		if ts.After(cutoff) {
			active++
		}
	}
	if active >= l.limit {
		return 0
	}
	return l.limit - active
}

// maybeSweep drops clients whose newest timestamp is older than
// idleWindows windows, bounding memory under churning identities.
// At most one goroutine sweeps per window; it visits the shards one at
// a time so admissions on other shards keep flowing.
func (l *ClientLimiter) maybeSweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.Sub(time.Unix(0, last)) < l.window {
		return
	}
	if !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return // another goroutine claimed this sweep
	}

	idleCutoff := now.Add(-time.Duration(idleWindows) * l.window)
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for id, stamps := range s.clients {
			if len(stamps) == 0 || stamps[len(stamps)-1].Before(idleCutoff) {
				delete(s.clients, id)
			}
		}
		s.mu.Unlock()
	}
}

// --- Outbound throttle ---

// Throttle paces outbound requests to upstream sites with a simple
// token bucket. Unlike ClientLimiter it blocks instead of rejecting.
type Throttle struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// NewThrottle creates a throttle allowing maxTokens requests per
// refillRate duration.
func NewThrottle(maxTokens int, refillRate time.Duration) *Throttle {
	return &Throttle{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (t *Throttle) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		t.refill()
		if t.tokens > 0 {
			t.tokens--
			t.mu.Unlock()
			return nil
		}
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
			// Check again after a short sleep.
		}
	}
}

// refill adds tokens based on elapsed time. Must be called with mu held.
func (t *Throttle) refill() {
	now := time.Now()
	elapsed := now.Sub(t.lastRefill)
	if elapsed >= t.refillRate {
		periods := int(elapsed / t.refillRate)
		t.tokens += periods
		if t.tokens > t.maxTokens {
			t.tokens = t.maxTokens
		}
		t.lastRefill = t.lastRefill.Add(time.Duration(periods) * t.refillRate)
	}
}
