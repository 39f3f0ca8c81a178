package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed limiter over the auth_limiter table.
type PG struct {
	db     querier
	policy Policy
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter. db is usually a *pgxpool.Pool.
func NewPG(db querier, p Policy) *PG {
	return &PG{db: db, policy: p}
}

// Allow reports whether (email, ip) is currently unblocked.
func (l *PG) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM auth_limiter WHERE email=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.db.QueryRow(ctx, q, email, ipHash).Scan(&blockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	if d := time.Until(blockedUntil); d > 0 {
		return false, d, nil
	}
	return true, 0, nil
}

// Success resets counters for (email, ip).
func (l *PG) Success(ctx context.Context, email string, ipHash []byte) error {
	const q = `
INSERT INTO auth_limiter (email, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,0,'epoch',now())
ON CONFLICT (email, ip_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=now()`
	_, err := l.db.Exec(ctx, q, email, ipHash)
	return err
}

// Failure records a failed attempt; at the threshold it blocks the pair for BlockFor.
func (l *PG) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO auth_limiter (email, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,1,'epoch',now())
ON CONFLICT (email, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN now() - auth_limiter.updated_at > $3::interval THEN 1 ELSE auth_limiter.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	var fails int
	if err := l.db.QueryRow(ctx, q, email, ipHash, l.policy.Window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.policy.MaxFails {
		return false, 0, nil
	}

	const upd = `UPDATE auth_limiter SET blocked_until=$3 WHERE email=$1 AND ip_hash=$2`
	if _, err := l.db.Exec(ctx, upd, email, ipHash, time.Now().Add(l.policy.BlockFor)); err != nil {
		return false, 0, err
	}
	return true, l.policy.BlockFor, nil
}
