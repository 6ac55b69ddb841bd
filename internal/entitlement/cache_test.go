package entitlement

import (
	"testing"
	"time"
)

func TestCacheFreshWithinTTL(t *testing.T) {
	cache := NewStatusCache(60 * time.Second)
	ent := ReconciledEntitlement{HasAccess: true, Status: StatusActive, Source: SourceBackend, AsOf: t0}

	cache.Put(ent, t0)

	got, ok := cache.Fresh(t0.Add(30 * time.Second))
	if !ok {
		t.Fatal("expected fresh hit within TTL")
	}
	if got != ent {
		t.Fatalf("got %+v, want %+v", got, ent)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	cache := NewStatusCache(60 * time.Second)
	ent := ReconciledEntitlement{HasAccess: true, Status: StatusActive}

	cache.Put(ent, t0)

	if _, ok := cache.Fresh(t0.Add(61 * time.Second)); ok {
		t.Fatal("expected miss after TTL")
	}

	// The stale entry is still reachable for fail-open serving.
	entry, ok := cache.Last()
	if !ok {
		t.Fatal("expected stale entry from Last")
	}
	if entry.Entitlement != ent {
		t.Fatalf("got %+v, want %+v", entry.Entitlement, ent)
	}
}

func TestCacheInvalidate(t *testing.T) {
	cache := NewStatusCache(60 * time.Second)
	cache.Put(ReconciledEntitlement{Status: StatusTrial}, t0)
	cache.Invalidate()

	if _, ok := cache.Fresh(t0); ok {
		t.Fatal("expected miss after invalidate")
	}
	if _, ok := cache.Last(); ok {
		t.Fatal("expected no entry after invalidate")
	}
}

func TestCacheEmpty(t *testing.T) {
	cache := NewStatusCache(0) // falls back to the default TTL
	if _, ok := cache.Fresh(time.Now()); ok {
		t.Fatal("empty cache must miss")
	}
	if _, ok := cache.Last(); ok {
		t.Fatal("empty cache must have no last entry")
	}
}
