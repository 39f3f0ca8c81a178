// Package limiter throttles login attempts per (email, client IP) pair.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether a login attempt is currently allowed and, if not, the retry-after.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt and reports whether it placed a block.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// Policy is the shared throttling policy.
type Policy struct {
	Window   time.Duration // failures older than this are forgotten
	MaxFails int           // failures within Window that trigger a block
	BlockFor time.Duration
}

// HashIP returns a stable hash of an IP so raw addresses are never stored.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
