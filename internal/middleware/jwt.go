package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/novelink/novelink/internal/auth"
	"github.com/novelink/novelink/internal/user"
)

// JWTAuth validates bearer tokens and resolves the caller against the user
// store. The role comes from the stored record, not the token, so demotions
// take effect immediately.
func JWTAuth(secret string, users user.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := auth.ParseAndVerifyHS256(tokenStr, []byte(secret))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		sub, _ := claims["sub"].(string)

		record, err := users.Get(c.UserContext(), sub)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "unknown user")
		}

		c.Locals("user_id", record.ID)
		c.Locals("user_role", record.Role)
		return c.Next()
	}
}

// RequireRole gates a route group to one role. Must run after JWTAuth.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if actual, _ := c.Locals("user_role").(string); actual != role {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}
