package orchestrator

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker is the cross-process per-hash lock DistributedLocker needs,
// backed by Redis SetNX.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker wraps an existing redis client (pkg/cache.Client) as a
// DistributedLocker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire attempts to take the named lock with ttl, returning false (no
// error) if another process already holds it.
func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, "1", ttl).Result()
}

// Release drops the lock. Errors are not actionable for the caller — the
// lock's ttl bounds how long a missed release can linger.
func (r *RedisLocker) Release(ctx context.Context, key string) {
	r.client.Del(ctx, key)
}
