package entitlement

import (
	"sync"
	"time"
)

// DefaultCacheTTL is the status cache window for UI-grade queries.
const DefaultCacheTTL = 60 * time.Second

// CacheEntry wraps the last reconciled entitlement with its fetch time.
type CacheEntry struct {
	Entitlement ReconciledEntitlement
	FetchedAt   time.Time
}

// StatusCache holds the last-known reconciled entitlement. Fresh entries
// short-circuit backend status checks for UI-grade queries; stale entries
// are still served fail-open when the backend is unreachable. It never
// gates purchase-critical decisions.
type StatusCache struct {
	mu    sync.RWMutex
	entry *CacheEntry
	ttl   time.Duration
}

// NewStatusCache creates a cache with the given TTL.
func NewStatusCache(ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &StatusCache{ttl: ttl}
}

// Fresh returns the cached entitlement if it is within TTL.
func (c *StatusCache) Fresh(now time.Time) (ReconciledEntitlement, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil || now.Sub(c.entry.FetchedAt) > c.ttl {
		return ReconciledEntitlement{}, false
	}
	return c.entry.Entitlement, true
}

// Last returns the cached entry regardless of age.
func (c *StatusCache) Last() (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return CacheEntry{}, false
	}
	return *c.entry, true
}

// Put replaces the cached entitlement.
func (c *StatusCache) Put(ent ReconciledEntitlement, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = &CacheEntry{Entitlement: ent, FetchedAt: now}
}

// Invalidate drops the cached entry, forcing the next query to refresh.
func (c *StatusCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
}
