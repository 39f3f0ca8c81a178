package httpserver

import (
	"errors"
	"strings"
	"time"

	"github.com/and161185/ecoreport/internal/errs"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

const localSession = "session"

// requestLogger logs one line per request. Bodies and tokens are never logged.
func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status, _, _ = classify(err)
			}
		}
		log.Info("http",
			zap.String("method", c.Method()),
			zap.String("route", c.Route().Path),
			zap.Int("status", status),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", c.IP()),
		)
		return err
	}
}

// requireSession resolves the bearer token and stores the projection in locals.
func (s *Server) requireSession(c fiber.Ctx) error {
	tok := bearerToken(c)
	if tok == "" {
		return errs.ErrUnauthorized
	}
	p, err := s.sessions.Resolve(c.Context(), tok)
	if err != nil {
		return err
	}
	c.Locals(localSession, p)
	return c.Next()
}

func sessionFrom(c fiber.Ctx) *model.Projection {
	p, _ := c.Locals(localSession).(*model.Projection)
	return p
}

// bearerToken extracts a token from "Authorization: Bearer <token>".
func bearerToken(c fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
