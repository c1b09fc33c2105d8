package clientauth

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ReplayCache remembers client assertion IDs for their lifetime so a captured
// assertion cannot authenticate twice.
type ReplayCache interface {
	// Remember records key for ttl and reports whether it was new. A false
	// return means the key was already present.
	Remember(ctx context.Context, key string, ttl time.Duration) bool
}

// MemoryReplayCache is a process-local ReplayCache backed by go-cache, which
// sweeps expired entries in the background.
type MemoryReplayCache struct {
	c *gocache.Cache
}

func NewMemoryReplayCache() *MemoryReplayCache {
	return &MemoryReplayCache{c: gocache.New(gocache.NoExpiration, 5*time.Minute)}
}

// Remember uses go-cache's Add as the put-if-absent primitive: Add errors
// when the key already exists.
func (m *MemoryReplayCache) Remember(_ context.Context, key string, ttl time.Duration) bool {
	return m.c.Add(key, struct{}{}, ttl) == nil
}
