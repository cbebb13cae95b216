package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// BearerAuth extracts the caller's bearer token and stores it as
// user_id, rejecting the request if a non-empty allowlist is configured
// and the token is not in it (spec.md §6's Authorization contract).
func BearerAuth(allowlist []string) fiber.Handler {
	allowed := make(map[string]struct{}, len(allowlist))
	for _, t := range allowlist {
		allowed[t] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": true, "message": "missing bearer token",
			})
		}

		if len(allowed) > 0 {
			if _, ok := allowed[token]; !ok {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": true, "message": "token not allowed",
				})
			}
		}

		c.Locals("user_id", token)
		return c.Next()
	}
}
