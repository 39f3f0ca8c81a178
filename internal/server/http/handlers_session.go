package httpserver

import (
	"github.com/and161185/ecoreport/internal/session"
	"github.com/and161185/ecoreport/internal/token"
	"github.com/gofiber/fiber/v3"
)

type updateProfileRequest struct {
	Token string  `json:"token"`
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

func (s *Server) userFromSession(c fiber.Ctx) error {
	p, err := s.sessions.Resolve(c.Context(), c.Params("token"))
	if err != nil {
		return err
	}

	etag := `"` + token.Digest(p) + `"`
	c.Set(fiber.HeaderETag, etag)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	if c.Get(fiber.HeaderIfNoneMatch) == etag {
		return c.SendStatus(fiber.StatusNotModified)
	}
	return c.JSON(fiber.Map{"user": p})
}

func (s *Server) updateProfile(c fiber.Ctx) error {
	var in updateProfileRequest
	if err := bind(c, &in); err != nil {
		return err
	}
	tok := in.Token
	if tok == "" {
		tok = bearerToken(c)
	}
	p, err := s.sessions.UpdateProfile(c.Context(), tok, session.ProfileUpdate{Name: in.Name, Phone: in.Phone})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": p})
}
