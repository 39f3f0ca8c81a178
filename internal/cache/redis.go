// Package cache stores session projections in Redis and supervises the Redis connection.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/and161185/ecoreport/internal/model"
	"github.com/and161185/ecoreport/internal/token"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrMiss is returned when no entry exists for a token (expired, evicted or never written).
	ErrMiss = errors.New("cache miss")
	// ErrUnavailable wraps transport failures and timeouts.
	ErrUnavailable = errors.New("cache unavailable")
	// ErrCorrupt is returned when an entry cannot be decoded or fails its digest check.
	ErrCorrupt = errors.New("cache entry corrupt")
)

// DefaultPrefix namespaces session keys.
const DefaultPrefix = "session:"

// entry is the stored value: the projection plus its content digest.
type entry struct {
	Digest string            `json:"digest"`
	User   *model.Projection `json:"user"`
}

var errGaveUp = fmt.Errorf("%w: reconnection gave up", ErrUnavailable)

// Redis is a session cache keyed by session token.
// It is safe for concurrent use; all session state lives in Redis.
type Redis struct {
	rdb       redis.UniversalClient
	prefix    string
	opTimeout time.Duration
	gaveUp    atomic.Bool
}

// NewClient builds a Redis client with dial and read/write timeouts.
func NewClient(addr, password string, db int, timeout time.Duration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   1,
	})
}

// NewRedis wraps rdb. opTimeout, when positive, bounds every call.
func NewRedis(rdb redis.UniversalClient, prefix string, opTimeout time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix, opTimeout: opTimeout}
}

func (c *Redis) key(tok string) string { return c.prefix + tok }

// Track follows supervisor state. Once reconnection has failed, Get, Set and Delete
// return ErrUnavailable without touching the network; Ping still dials.
func (c *Redis) Track(st State) { c.gaveUp.Store(st == StateFailed) }

func (c *Redis) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

// Get returns the projection stored under tok.
func (c *Redis) Get(ctx context.Context, tok string) (*model.Projection, error) {
	if c.gaveUp.Load() {
		return nil, errGaveUp
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	raw, err := c.rdb.Get(ctx, c.key(tok)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if e.User == nil || e.Digest != token.Digest(e.User) {
		return nil, ErrCorrupt
	}
	return e.User, nil
}

// Set replaces the entry under tok and resets its expiry to ttl.
func (c *Redis) Set(ctx context.Context, tok string, p *model.Projection, ttl time.Duration) error {
	if c.gaveUp.Load() {
		return errGaveUp
	}
	raw, err := json.Marshal(entry{Digest: token.Digest(p), User: p})
	if err != nil {
		return err
	}

	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.rdb.Set(ctx, c.key(tok), raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes the entry under tok. Deleting a missing entry is not an error.
func (c *Redis) Delete(ctx context.Context, tok string) error {
	if c.gaveUp.Load() {
		return errGaveUp
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.rdb.Del(ctx, c.key(tok)).Err(); err != nil {
		return fmt.Errorf("%w: del: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping checks connectivity.
func (c *Redis) Ping(ctx context.Context) error {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}
