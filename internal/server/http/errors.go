package httpserver

import (
	"errors"
	"strings"

	"github.com/and161185/ecoreport/internal/errs"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classify maps an error to HTTP status, machine code and client message.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return fiber.StatusBadRequest, "VALIDATION_ERROR", clientMessage(err, errs.ErrValidation)
	case errors.Is(err, errs.ErrUserNotFound):
		return fiber.StatusBadRequest, "INVALID_CREDENTIALS", "user not found"
	case errors.Is(err, errs.ErrInvalidCredentials):
		return fiber.StatusBadRequest, "INVALID_CREDENTIALS", "invalid credentials"
	case errors.Is(err, errs.ErrInvalidToken):
		return fiber.StatusBadRequest, "INVALID_TOKEN", "invalid or expired token"
	case errors.Is(err, errs.ErrUnauthorized):
		return fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"
	case errors.Is(err, errs.ErrSessionExpired):
		return fiber.StatusUnauthorized, "SESSION_EXPIRED", "session expired"
	case errors.Is(err, errs.ErrAlreadyExists):
		return fiber.StatusConflict, "CONFLICT", "already exists"
	case errors.Is(err, errs.ErrNotFound):
		return fiber.StatusNotFound, "NOT_FOUND", "not found"
	case errors.Is(err, errs.ErrRateLimited):
		return fiber.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, try again later"
	case errors.Is(err, errs.ErrPayloadTooLarge):
		return fiber.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "payload too large"
	default:
		return fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal error"
	}
}

// clientMessage strips the sentinel prefix from a wrapped validation error.
func clientMessage(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}

// errorHandler is the app-wide fiber error handler.
func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(errorBody{Error: fe.Message, Code: fiberCode(fe.Code)})
		}

		status, code, msg := classify(err)
		if status == fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		return c.Status(status).JSON(errorBody{Error: msg, Code: code})
	}
}

func fiberCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return "VALIDATION_ERROR"
	default:
		if status >= 500 {
			return "INTERNAL_ERROR"
		}
		return "ERROR"
	}
}
