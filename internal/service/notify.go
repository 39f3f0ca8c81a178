package service

import (
	"context"
	"time"

	"github.com/and161185/ecoreport/internal/model"
	"go.uber.org/zap"
)

// ResetNotifier delivers password-reset tokens to users.
type ResetNotifier interface {
	NotifyReset(ctx context.Context, u *model.User, resetToken string, expiresAt time.Time) error
}

// LogNotifier writes reset tokens to the log. Development use only.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier { return &LogNotifier{log: log} }

func (n *LogNotifier) NotifyReset(_ context.Context, u *model.User, resetToken string, expiresAt time.Time) error {
	n.log.Info("password reset issued",
		zap.String("user_id", u.ID.String()),
		zap.String("email", u.Email),
		zap.String("reset_token", resetToken),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}
