// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates a conditional update matched no row (stale precondition).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates the caller is not authenticated for the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates missing or malformed client input. Wrapped with details.
	ErrValidation = errors.New("validation failed")

	// ErrUserNotFound indicates no user is registered under the given email.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials indicates a password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken indicates a malformed, expired or already used one-time token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionExpired indicates the session token no longer resolves to a live session.
	ErrSessionExpired = errors.New("session expired")

	// ErrPayloadTooLarge indicates an uploaded body exceeds the configured limit.
	ErrPayloadTooLarge = errors.New("payload too large")
)
