// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/ecoreport/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to durable user records.
type UserRepository interface {
	// Create inserts a new user. Returns errs.ErrAlreadyExists on duplicate email.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by lower-cased email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetBySessionKey loads the user whose session pointer equals token.
	GetBySessionKey(ctx context.Context, token string) (*model.User, error)
	// SetSessionKey points the user's session pointer at token.
	SetSessionKey(ctx context.Context, id uuid.UUID, token string) error
	// ClearSessionKey nulls the session pointer of whichever user references token.
	// It is not an error when no user does.
	ClearSessionKey(ctx context.Context, token string) error
	// UpdateProfile overwrites the mutable profile fields.
	UpdateProfile(ctx context.Context, id uuid.UUID, name, phone string) error
	// UpdatePassword replaces the password hash and salt.
	UpdatePassword(ctx context.Context, id uuid.UUID, hash, salt []byte) error
	// MarkResetIssued records a freshly issued reset token (used=false, time=issuedAt).
	MarkResetIssued(ctx context.Context, id uuid.UUID, issuedAt time.Time) error
	// ConsumeReset sets a new password and marks the reset token used, only if the token
	// issued at issuedAt is still unused. Returns errs.ErrVersionConflict otherwise.
	ConsumeReset(ctx context.Context, id uuid.UUID, issuedAt time.Time, hash, salt []byte) error
}
