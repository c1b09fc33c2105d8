package redis

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-oauth2-server/clientauth"
)

var _ clientauth.ReplayCache = (*ReplayCache)(nil)

// ReplayCache remembers client assertion IDs in Redis so a captured assertion
// cannot authenticate twice against any instance.
type ReplayCache struct {
	client    rdb.UniversalClient
	keyPrefix string
}

func NewReplayCache(client rdb.UniversalClient, keyPrefix string) *ReplayCache {
	return &ReplayCache{client: client, keyPrefix: keyPrefix}
}

// Remember uses SET NX as the put-if-absent primitive. A Redis failure
// reports the key as already seen, which refuses the assertion.
func (r *ReplayCache) Remember(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := r.client.SetNX(ctx, r.keyPrefix+"jti:"+key, "1", ttl).Result()
	if err != nil {
		return false
	}
	return ok
}
