package httpserver

import (
	"fmt"

	"github.com/and161185/ecoreport/internal/errs"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/and161185/ecoreport/internal/service"
	"github.com/gofiber/fiber/v3"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string              `json:"token"`
	User  model.PublicProfile `json:"user"`
}

type changePasswordRequest struct {
	Token           string `json:"token"`
	UserID          string `json:"userId"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func bind(c fiber.Ctx, v any) error {
	if err := c.Bind().Body(v); err != nil {
		return fmt.Errorf("%w: invalid request body", errs.ErrValidation)
	}
	return nil
}

func (s *Server) register(c fiber.Ctx) error {
	var in registerRequest
	if err := bind(c, &in); err != nil {
		return err
	}
	id, err := s.auth.Register(c.Context(), service.RegisterInput(in))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "user registered",
		"userId":  id.String(),
	})
}

func (s *Server) login(c fiber.Ctx) error {
	var in loginRequest
	if err := bind(c, &in); err != nil {
		return err
	}
	res, err := s.auth.Login(c.Context(), in.Email, in.Password, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(loginResponse{Token: res.Token, User: res.User})
}

func (s *Server) changePassword(c fiber.Ctx) error {
	var in changePasswordRequest
	if err := bind(c, &in); err != nil {
		return err
	}
	tok := bearerToken(c)
	if tok == "" {
		tok = in.Token
	}
	err := s.auth.ChangePassword(c.Context(), tok, service.ChangePasswordInput{
		UserID:          in.UserID,
		CurrentPassword: in.CurrentPassword,
		NewPassword:     in.NewPassword,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "password changed"})
}

func (s *Server) forgotPassword(c fiber.Ctx) error {
	var in forgotPasswordRequest
	if err := bind(c, &in); err != nil {
		return err
	}
	if err := s.auth.ForgotPassword(c.Context(), in.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "if the account exists, a reset link has been sent"})
}

func (s *Server) resetPassword(c fiber.Ctx) error {
	var in resetPasswordRequest
	if err := bind(c, &in); err != nil {
		return err
	}
	if err := s.auth.ResetPassword(c.Context(), in.Token, in.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "password updated"})
}
