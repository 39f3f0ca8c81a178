// Package httpserver exposes the ecoreport HTTP API.
package httpserver

import (
	"context"
	"runtime/debug"

	"github.com/and161185/ecoreport/internal/cache"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/and161185/ecoreport/internal/service"
	"github.com/and161185/ecoreport/internal/session"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// SessionService resolves and updates sessions.
type SessionService interface {
	Resolve(ctx context.Context, token string) (*model.Projection, error)
	UpdateProfile(ctx context.Context, token string, upd session.ProfileUpdate) (*model.Projection, error)
}

// ReportService creates and lists reports.
type ReportService interface {
	Create(ctx context.Context, userID uuid.UUID, in service.ReportInput) (*model.Report, error)
	List(ctx context.Context, userID uuid.UUID) ([]model.Report, error)
	Exists(ctx context.Context, imageURL string) (bool, error)
	MaxBytes() int64
}

// CacheState reports the session cache connection state.
type CacheState interface {
	State() cache.State
}

// Server wires services into fiber handlers.
type Server struct {
	app      *fiber.App
	auth     service.AuthService
	sessions SessionService
	reports  ReportService
	cache    CacheState
	log      *zap.Logger
}

// New constructs the HTTP server and registers routes.
func New(auth service.AuthService, sessions SessionService, reports ReportService, cs CacheState, log *zap.Logger) *Server {
	s := &Server{auth: auth, sessions: sessions, reports: reports, cache: cs, log: log}

	// room for multipart framing around the largest accepted image
	bodyLimit := int(reports.MaxBytes()) + 1<<20
	s.app = fiber.New(fiber.Config{
		AppName:      "ecoreport",
		BodyLimit:    bodyLimit,
		ErrorHandler: errorHandler(log),
	})
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Error("panic",
				zap.Any("reason", e),
				zap.ByteString("stack", debug.Stack()),
				zap.String("path", c.Path()),
			)
		},
	}))
	s.app.Use(requestLogger(log))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.health)

	s.app.Post("/register", s.register)
	s.app.Post("/login", s.login)

	s.app.Get("/userfromsession/:token", s.userFromSession)
	s.app.Put("/updateprofile", s.updateProfile)

	pw := s.app.Group("/password")
	pw.Post("/change", s.changePassword)
	pw.Post("/forgot", s.forgotPassword)
	pw.Post("/reset", s.resetPassword)

	r := s.app.Group("/reports")
	r.Post("/check", s.checkReport)
	r.Post("/", s.requireSession, s.createReport)
	r.Get("/", s.requireSession, s.listReports)
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) health(c fiber.Ctx) error {
	state := "unknown"
	if s.cache != nil {
		state = s.cache.State().String()
	}
	return c.JSON(fiber.Map{"status": "ok", "cache": state})
}
