package limiter

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a limiter keeping counters and blocks as expiring Redis keys.
// It is used when the durable store has no auth_limiter table.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	policy Policy
}

// NewRedis constructs a Redis-backed limiter.
func NewRedis(rdb redis.UniversalClient, p Policy) *Redis {
	return &Redis{rdb: rdb, prefix: "limiter:", policy: p}
}

func (l *Redis) keys(email string, ipHash []byte) (fails, block string) {
	id := email + ":" + hex.EncodeToString(ipHash)
	return l.prefix + "fails:" + id, l.prefix + "block:" + id
}

// Allow reports whether (email, ip) is currently unblocked.
func (l *Redis) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	_, block := l.keys(email, ipHash)
	ttl, err := l.rdb.PTTL(ctx, block).Result()
	if err != nil {
		return false, 0, err
	}
	// -2: no key, -1: no expiry (never written by this limiter)
	if ttl > 0 {
		return false, ttl, nil
	}
	return true, 0, nil
}

// Success clears counters and any block for (email, ip).
func (l *Redis) Success(ctx context.Context, email string, ipHash []byte) error {
	fails, block := l.keys(email, ipHash)
	return l.rdb.Del(ctx, fails, block).Err()
}

// Failure increments the failure counter. The counter expires Window after the first failure.
func (l *Redis) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	fails, block := l.keys(email, ipHash)

	n, err := l.rdb.Incr(ctx, fails).Result()
	if err != nil {
		return false, 0, err
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, fails, l.policy.Window).Err(); err != nil {
			return false, 0, err
		}
	}
	if int(n) < l.policy.MaxFails {
		return false, 0, nil
	}

	pipe := l.rdb.TxPipeline()
	pipe.Set(ctx, block, 1, l.policy.BlockFor)
	pipe.Del(ctx, fails)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	return true, l.policy.BlockFor, nil
}
