package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/ecoreport/internal/errs"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, name, phone, pwd_hash, pwd_salt, session_key, reset_token_used, reset_token_time, created_at`

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	const q = `
INSERT INTO users (id, email, name, phone, pwd_hash, pwd_salt)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, u.ID, u.Email, u.Name, u.Phone, u.PwdHash, u.PwdSalt).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return r.getOne(ctx, q, id)
}

// GetByEmail selects a user by lower-cased email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return r.getOne(ctx, q, email)
}

// GetBySessionKey selects the user whose session pointer equals token.
func (r *UserRepo) GetBySessionKey(ctx context.Context, token string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE session_key=$1`
	return r.getOne(ctx, q, token)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*model.User, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	var (
		u          model.User
		sessionKey *string
	)
	err := r.db.Pool.QueryRow(ctx, q, arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.Phone, &u.PwdHash, &u.PwdSalt,
		&sessionKey, &u.ResetTokenUsed, &u.ResetTokenTime, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if sessionKey != nil {
		u.SessionKey = *sessionKey
	}
	return &u, nil
}

// SetSessionKey points the user's session pointer at token.
func (r *UserRepo) SetSessionKey(ctx context.Context, id uuid.UUID, token string) error {
	const q = `UPDATE users SET session_key=$2 WHERE id=$1`
	return r.execOne(ctx, q, id, token)
}

// ClearSessionKey nulls the session pointer referencing token, if any.
func (r *UserRepo) ClearSessionKey(ctx context.Context, token string) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	const q = `UPDATE users SET session_key=NULL WHERE session_key=$1`
	_, err := r.db.Pool.Exec(ctx, q, token)
	return err
}

// UpdateProfile overwrites name and phone.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, name, phone string) error {
	const q = `UPDATE users SET name=$2, phone=$3 WHERE id=$1`
	return r.execOne(ctx, q, id, name, phone)
}

// UpdatePassword replaces the password hash and salt.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash, salt []byte) error {
	const q = `UPDATE users SET pwd_hash=$2, pwd_salt=$3 WHERE id=$1`
	return r.execOne(ctx, q, id, hash, salt)
}

// MarkResetIssued stores the issue time of a new reset token and marks it unused.
func (r *UserRepo) MarkResetIssued(ctx context.Context, id uuid.UUID, issuedAt time.Time) error {
	const q = `UPDATE users SET reset_token_used=false, reset_token_time=$2 WHERE id=$1`
	return r.execOne(ctx, q, id, issuedAt)
}

// ConsumeReset updates the password only if the reset token issued at issuedAt is unused.
func (r *UserRepo) ConsumeReset(ctx context.Context, id uuid.UUID, issuedAt time.Time, hash, salt []byte) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	const q = `
UPDATE users
SET pwd_hash=$3, pwd_salt=$4, reset_token_used=true
WHERE id=$1 AND reset_token_used=false AND reset_token_time=$2`
	tag, err := r.db.Pool.Exec(ctx, q, id, issuedAt, hash, salt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrVersionConflict
	}
	return nil
}

// execOne runs an UPDATE expected to touch exactly one row.
func (r *UserRepo) execOne(ctx context.Context, q string, args ...any) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
