package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/campuspoints/internal/access"
)

// Require rejects callers whose role lacks the capability. It must run after
// AuthMiddleware.
func Require(action access.Action, resource access.Resource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := CurrentUser(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		if !access.Can(user.Role, action, resource) {
			return fiber.NewError(fiber.StatusForbidden, "Permission denied")
		}
		return c.Next()
	}
}
