package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// WebhookAuthMiddleware validates the static shared-secret header the
// provider sends with status webhooks. Rejection happens before any
// business logic and stays generic so nothing about the order leaks.
func WebhookAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" || c.Get("X-API-KEY") != secret {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status":  "error",
				"message": "unauthorized",
			})
		}
		return c.Next()
	}
}
