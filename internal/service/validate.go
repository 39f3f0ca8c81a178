package service

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/and161185/ecoreport/internal/errs"
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 6

// normalizeEmail validates a bare address and lower-cases it.
func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: email is required", errs.ErrValidation)
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", fmt.Errorf("%w: invalid email", errs.ErrValidation)
	}
	return strings.ToLower(addr.Address), nil
}

func checkPassword(pw string) error {
	if len(pw) < MinPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", errs.ErrValidation, MinPasswordLen)
	}
	return nil
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s is required", errs.ErrValidation, field)
	}
	return nil
}
