// Package service contains application services for accounts, sessions and reports.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/ecoreport/internal/crypto"
	"github.com/and161185/ecoreport/internal/errs"
	"github.com/and161185/ecoreport/internal/limiter"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/and161185/ecoreport/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// resetAudience scopes password-reset JWTs so they cannot be replayed elsewhere.
const resetAudience = "password-reset"

// AuthService defines account and login operations.
type AuthService interface {
	// Register creates a new account.
	Register(ctx context.Context, in RegisterInput) (uuid.UUID, error)
	// Login applies rate limiting, verifies credentials and establishes a session.
	Login(ctx context.Context, email, password, ip string) (LoginResult, error)
	// ChangePassword replaces the password of the session's user.
	ChangePassword(ctx context.Context, sessionToken string, in ChangePasswordInput) error
	// ForgotPassword issues a one-time reset token for a known email.
	ForgotPassword(ctx context.Context, email string) error
	// ResetPassword consumes a reset token and sets a new password.
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
}

// Sessions is the session layer used by AuthService.
type Sessions interface {
	Establish(ctx context.Context, u *model.User) (string, *model.Projection, error)
	Resolve(ctx context.Context, token string) (*model.Projection, error)
}

// RegisterInput carries a new account.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// ChangePasswordInput carries a password change. UserID is optional; when set it must
// match the session's user.
type ChangePasswordInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token string
	User  model.PublicProfile
}

// ResetConfig configures password-reset tokens.
type ResetConfig struct {
	SignKey []byte
	TTL     time.Duration
}

type AuthServiceImpl struct {
	users    repository.UserRepository
	sessions Sessions
	lim      limiter.Limiter
	notifier ResetNotifier
	reset    ResetConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, sessions Sessions, lim limiter.Limiter,
	notifier ResetNotifier, reset ResetConfig, log *zap.Logger) *AuthServiceImpl {
	if reset.TTL <= 0 {
		reset.TTL = time.Hour
	}
	return &AuthServiceImpl{
		users:    users,
		sessions: sessions,
		lim:      lim,
		notifier: notifier,
		reset:    reset,
		log:      log,
		now:      time.Now,
	}
}

// Register validates input, hashes the password and stores the user.
func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput) (uuid.UUID, error) {
	for _, f := range [...]struct{ name, v string }{
		{"name", in.Name}, {"email", in.Email}, {"phone", in.Phone}, {"password", in.Password},
	} {
		if err := required(f.name, f.v); err != nil {
			return uuid.Nil, err
		}
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return uuid.Nil, err
	}
	if err := checkPassword(in.Password); err != nil {
		return uuid.Nil, err
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	hash, salt, err := pkgcrypto.HashPassword(in.Password)
	if err != nil {
		return uuid.Nil, err
	}

	u := &model.User{
		ID:      uid,
		Email:   email,
		Name:    strings.TrimSpace(in.Name),
		Phone:   strings.TrimSpace(in.Phone),
		PwdHash: hash,
		PwdSalt: salt,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return uuid.Nil, err
	}
	s.log.Info("user registered", zap.String("user_id", uid.String()))
	return uid, nil
}

// Login authenticates with rate limiting by (email, ip) and returns a session token.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, ip string) (LoginResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return LoginResult{}, err
	}
	if err := required("password", password); err != nil {
		return LoginResult{}, err
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return LoginResult{}, err
	}
	if !allowed {
		return LoginResult{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return LoginResult{}, s.loginFailed(ctx, email, ipHash, errs.ErrUserNotFound)
	case err != nil:
		return LoginResult{}, err
	}
	if !pkgcrypto.VerifyPassword(password, u.PwdSalt, u.PwdHash) {
		return LoginResult{}, s.loginFailed(ctx, email, ipHash, errs.ErrInvalidCredentials)
	}

	if err := s.lim.Success(ctx, email, ipHash); err != nil {
		s.log.Warn("limiter reset failed", zap.Error(err))
	}

	tok, _, err := s.sessions.Establish(ctx, u)
	if err != nil {
		return LoginResult{}, fmt.Errorf("establish session: %w", err)
	}
	return LoginResult{Token: tok, User: model.NewPublicProfile(u)}, nil
}

// loginFailed records a failure and returns ErrRateLimited if it triggered a block, else cause.
func (s *AuthServiceImpl) loginFailed(ctx context.Context, email string, ipHash []byte, cause error) error {
	blocked, _, err := s.lim.Failure(ctx, email, ipHash)
	if err != nil {
		s.log.Warn("limiter failure record failed", zap.Error(err))
		return cause
	}
	if blocked {
		return errs.ErrRateLimited
	}
	return cause
}

// ChangePassword verifies the current password of the session's user and replaces it.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, sessionToken string, in ChangePasswordInput) error {
	if sessionToken == "" {
		return errs.ErrUnauthorized
	}
	if err := required("currentPassword", in.CurrentPassword); err != nil {
		return err
	}
	if err := required("newPassword", in.NewPassword); err != nil {
		return err
	}
	if err := checkPassword(in.NewPassword); err != nil {
		return err
	}
	if in.NewPassword == in.CurrentPassword {
		return fmt.Errorf("%w: new password must differ from the current one", errs.ErrValidation)
	}

	p, err := s.sessions.Resolve(ctx, sessionToken)
	if err != nil {
		return err
	}
	if in.UserID != "" && in.UserID != p.UserID.String() {
		return errs.ErrUnauthorized
	}

	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if !pkgcrypto.VerifyPassword(in.CurrentPassword, u.PwdSalt, u.PwdHash) {
		return errs.ErrInvalidCredentials
	}

	hash, salt, err := pkgcrypto.HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash, salt); err != nil {
		return err
	}
	s.log.Info("password changed", zap.String("user_id", u.ID.String()))
	return nil
}

// ForgotPassword records a reset issue time and hands a signed reset token to the notifier.
// Unknown emails succeed silently.
func (s *AuthServiceImpl) ForgotPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		s.log.Debug("password reset for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	// JWT iat has second precision; the stored time must match it exactly.
	now := s.now().UTC().Truncate(time.Second)
	if err := s.users.MarkResetIssued(ctx, u.ID, now); err != nil {
		return err
	}
	tok, exp, err := s.issueResetToken(u.ID, now)
	if err != nil {
		return err
	}
	if err := s.notifier.NotifyReset(ctx, u, tok, exp); err != nil {
		return fmt.Errorf("notify reset: %w", err)
	}
	return nil
}

// ResetPassword verifies a reset token and sets the new password if the token is still unused.
func (s *AuthServiceImpl) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if err := required("token", resetToken); err != nil {
		return err
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}

	uid, issuedAt, err := s.parseResetToken(resetToken)
	if err != nil {
		return err
	}

	hash, salt, err := pkgcrypto.HashPassword(newPassword)
	if err != nil {
		return err
	}
	err = s.users.ConsumeReset(ctx, uid, issuedAt, hash, salt)
	if errors.Is(err, errs.ErrVersionConflict) || errors.Is(err, errs.ErrNotFound) {
		return errs.ErrInvalidToken
	}
	if err != nil {
		return err
	}
	s.log.Info("password reset", zap.String("user_id", uid.String()))
	return nil
}

// issueResetToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueResetToken(userID uuid.UUID, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.reset.TTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{resetAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.reset.SignKey)
	return signed, exp, err
}

func (s *AuthServiceImpl) parseResetToken(raw string) (uuid.UUID, time.Time, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.reset.SignKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(resetAudience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.IssuedAt == nil {
		return uuid.Nil, time.Time{}, errs.ErrInvalidToken
	}
	uid, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, time.Time{}, errs.ErrInvalidToken
	}
	return uid, claims.IssuedAt.UTC(), nil
}
