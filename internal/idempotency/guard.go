// Package idempotency provides short-lived claim markers that let only the
// first caller within a TTL window proceed.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisGuard claims keys with SET NX PX.
//
// When Redis is unreachable the guard fails open by default: the claim is
// reported as granted and a warning is logged. With FailOpen disabled the
// store error is returned and the claim is refused.
type RedisGuard struct {
	client   redis.UniversalClient
	prefix   string
	failOpen bool
	logger   *zap.Logger
}

func NewRedisGuard(client redis.UniversalClient, prefix string, failOpen bool, logger *zap.Logger) *RedisGuard {
	return &RedisGuard{client: client, prefix: prefix, failOpen: failOpen, logger: logger}
}

// Key namespaces parts under the guard's prefix, joined by ':'.
func (g *RedisGuard) Key(parts ...string) string {
	key := g.prefix
	for _, p := range parts {
		if key == "" {
			key = p
			continue
		}
		key += ":" + p
	}
	return key
}

// Claim reports whether the caller is the first to claim key within ttl.
// The guard's prefix is prepended to key.
func (g *RedisGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	key = g.Key(key)
	ok, err := g.client.SetNX(ctx, key, "1", ttl).Result()
	if err == nil {
		return ok, nil
	}

	if g.failOpen {
		g.logger.Warn("idempotency store unavailable, claim granted",
			zap.String("key", key),
			zap.Error(err),
		)
		return true, nil
	}
	return false, fmt.Errorf("claim %s: %w", key, err)
}
