package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/ecoreport/internal/cache"
	"github.com/and161185/ecoreport/internal/errs"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/and161185/ecoreport/internal/token"
	"go.uber.org/zap"
)

// ProfileUpdate carries the mutable profile fields. A nil field keeps its current value.
type ProfileUpdate struct {
	Name  *string
	Phone *string
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool { return u.Name == nil && u.Phone == nil }

// UpdateProfile applies upd to the user owning tok, then overwrites the cache entry with the
// new projection. The store is written first; if the cache write fails the error is returned
// and the next Resolve repairs the entry.
func (m *Manager) UpdateProfile(ctx context.Context, tok string, upd ProfileUpdate) (*model.Projection, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: token is required", errs.ErrValidation)
	}
	if upd.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", errs.ErrValidation)
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, fmt.Errorf("%w: name must not be empty", errs.ErrValidation)
	}

	u, err := m.users.GetBySessionKey(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}

	_, err = m.cache.Get(ctx, tok)
	switch {
	case err == nil, errors.Is(err, cache.ErrCorrupt):
	case errors.Is(err, cache.ErrMiss):
		m.expire(ctx, tok)
		return nil, errs.ErrSessionExpired
	default:
		return nil, fmt.Errorf("session cache: %w", err)
	}

	name, phone := u.Name, u.Phone
	if upd.Name != nil {
		name = strings.TrimSpace(*upd.Name)
	}
	if upd.Phone != nil {
		phone = strings.TrimSpace(*upd.Phone)
	}
	if err := m.users.UpdateProfile(ctx, u.ID, name, phone); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	u, err = m.users.GetByID(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	p := model.NewProjection(u)

	if err := m.cache.Set(ctx, tok, p, m.ttl); err != nil {
		m.log.Error("store ahead of cache", zap.String("user_id", u.ID.String()),
			zap.String("token", token.Short(tok)), zap.Error(err))
		return nil, fmt.Errorf("cache profile: %w", err)
	}
	return p, nil
}
