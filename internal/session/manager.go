// Package session keeps the Redis session cache consistent with the durable user store.
//
// The store is authoritative. A cache entry is keyed by an opaque session token and holds a
// projection of the user record; entries are repaired lazily on read (Resolve) and rewritten
// eagerly after profile edits (UpdateProfile). Cache expiry ends a session.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/ecoreport/internal/cache"
	"github.com/and161185/ecoreport/internal/errs"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/and161185/ecoreport/internal/token"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// DefaultTTL is the session lifetime applied on every cache write.
const DefaultTTL = 90 * 24 * time.Hour

// Store is the part of the user repository the session layer needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetBySessionKey(ctx context.Context, token string) (*model.User, error)
	SetSessionKey(ctx context.Context, id uuid.UUID, token string) error
	ClearSessionKey(ctx context.Context, token string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, name, phone string) error
}

// Cache stores projections under session tokens. Get must return cache.ErrMiss,
// cache.ErrCorrupt or cache.ErrUnavailable (possibly wrapped) on failure.
type Cache interface {
	Get(ctx context.Context, token string) (*model.Projection, error)
	Set(ctx context.Context, token string, p *model.Projection, ttl time.Duration) error
}

// Manager issues, resolves and updates sessions.
type Manager struct {
	users    Store
	cache    Cache
	ttl      time.Duration
	log      *zap.Logger
	newToken func() (string, error)
}

// NewManager constructs a Manager. ttl <= 0 selects DefaultTTL.
func NewManager(users Store, c Cache, ttl time.Duration, log *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{users: users, cache: c, ttl: ttl, log: log, newToken: token.New}
}

// Establish returns a live session for an authenticated user.
// If the user's current token still has a cache entry it is reused and nothing is written.
// Otherwise a new token is minted, persisted as the user's session pointer and cached.
func (m *Manager) Establish(ctx context.Context, u *model.User) (string, *model.Projection, error) {
	if u.SessionKey != "" {
		p, err := m.cache.Get(ctx, u.SessionKey)
		if err == nil {
			return u.SessionKey, p, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			m.log.Warn("session lookup failed, issuing new token",
				zap.String("user_id", u.ID.String()), zap.Error(err))
		}
	}

	tok, err := m.newToken()
	if err != nil {
		return "", nil, fmt.Errorf("new token: %w", err)
	}
	p := model.NewProjection(u)

	if err := m.users.SetSessionKey(ctx, u.ID, tok); err != nil {
		return "", nil, fmt.Errorf("set session key: %w", err)
	}
	if err := m.cache.Set(ctx, tok, p, m.ttl); err != nil {
		return "", nil, fmt.Errorf("cache session: %w", err)
	}
	u.SessionKey = tok

	m.log.Info("session established", zap.String("user_id", u.ID.String()), zap.String("token", token.Short(tok)))
	return tok, p, nil
}

// Resolve returns the current projection for tok, repairing the cache entry if it drifted
// from the store. A missing cache entry ends the session: the store pointer is cleared and
// errs.ErrSessionExpired returned. When the cache cannot be read the store alone decides.
func (m *Manager) Resolve(ctx context.Context, tok string) (*model.Projection, error) {
	if tok == "" {
		return nil, errs.ErrSessionExpired
	}

	cached, err := m.cache.Get(ctx, tok)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrMiss):
		m.expire(ctx, tok)
		return nil, errs.ErrSessionExpired
	case errors.Is(err, cache.ErrCorrupt):
		m.log.Warn("corrupt session entry, repairing", zap.String("token", token.Short(tok)))
	default:
		m.log.Warn("session cache unavailable, resolving from store",
			zap.String("token", token.Short(tok)), zap.Error(err))
	}

	u, err := m.users.GetBySessionKey(ctx, tok)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}

	cur := model.NewProjection(u)
	if cached != nil && cached.Equal(cur) {
		return cached, nil
	}

	if err := m.cache.Set(ctx, tok, cur, m.ttl); err != nil {
		m.log.Warn("session repair failed", zap.String("token", token.Short(tok)), zap.Error(err))
		return cur, nil
	}
	if cached != nil {
		m.log.Info("session repaired", zap.String("user_id", u.ID.String()))
	}
	return cur, nil
}

// expire clears the store pointer for tok. Failures are logged only.
func (m *Manager) expire(ctx context.Context, tok string) {
	if err := m.users.ClearSessionKey(ctx, tok); err != nil {
		m.log.Warn("clear session key failed", zap.String("token", token.Short(tok)), zap.Error(err))
	}
}
