package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/depix-gateway/internal/config"
	"github.com/example/depix-gateway/internal/utils"
)

// AuthHandler manages operator authentication.
type AuthHandler struct {
	cfg *config.Config
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates the configured admin and issues a JWT.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if h.cfg.AdminEmail == "" || h.cfg.AdminPasswordHash == "" {
		return fiber.NewError(fiber.StatusServiceUnavailable, "admin access not configured")
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email != strings.ToLower(h.cfg.AdminEmail) || !utils.CheckPassword(h.cfg.AdminPasswordHash, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, email, h.cfg.TokenExpires)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"token":      token,
		"expires_in": int64(h.cfg.TokenExpires.Seconds()),
	})
}
