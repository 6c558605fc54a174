package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/campuspoints/internal/services"
)

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	auth *services.AuthService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Utorid   string `json:"utorid"`
	Password string `json:"password"`
}

// Tokens exchanges a utorid and password for a bearer token.
func (h *AuthHandler) Tokens(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	token, expiresAt, err := h.auth.Login(c.UserContext(), req.Utorid, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"token":     token,
		"expiresAt": expiresAt,
	})
}

type resetRequest struct {
	Utorid string `json:"utorid"`
}

// Resets issues a password reset token.
func (h *AuthHandler) Resets(c *fiber.Ctx) error {
	var req resetRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	token, expiresAt, err := h.auth.RequestReset(c.UserContext(), req.Utorid)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"expiresAt":  expiresAt,
		"resetToken": token,
	})
}

type completeResetRequest struct {
	Utorid   string `json:"utorid"`
	Password string `json:"password"`
}

// ResetWithToken sets a new password using a reset or activation token.
func (h *AuthHandler) ResetWithToken(c *fiber.Ctx) error {
	var req completeResetRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if err := h.auth.CompleteReset(c.UserContext(), c.Params("resetToken"), req.Utorid, req.Password); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"message": "password updated"})
}
