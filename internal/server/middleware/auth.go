// Package middleware holds the fiber middleware shared across handlers:
// session auth, request rate limiting, and request observability.
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"roomly/identity/internal/security"
)

const claimsLocal = "session_claims"

// TokenValidator validates a session token and returns its claims.
type TokenValidator interface {
	ValidateAndDecode(token string) (*security.SessionClaims, error)
}

// RequireSession rejects requests without a valid Bearer session token and
// stores the decoded claims in the request locals.
func RequireSession(tokens TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get(fiber.HeaderAuthorization)
		if auth == "" {
			return unauthorized(c, "missing authorization")
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return unauthorized(c, "invalid authorization")
		}
		claims, err := tokens.ValidateAndDecode(parts[1])
		if err != nil {
			return unauthorized(c, "invalid or expired token")
		}
		c.Locals(claimsLocal, claims)
		return c.Next()
	}
}

// Claims returns the session claims stored by RequireSession, or nil.
func Claims(c *fiber.Ctx) *security.SessionClaims {
	claims, _ := c.Locals(claimsLocal).(*security.SessionClaims)
	return claims
}

// Subject returns the authenticated identity id, or "".
func Subject(c *fiber.Ctx) string {
	if claims := Claims(c); claims != nil {
		return claims.Subject
	}
	return ""
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": fiber.Map{"code": "unauthorized", "message": msg},
	})
}
