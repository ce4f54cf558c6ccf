package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"ffp-admin/services"
)

const (
	userIDKey    = "user_id"
	userEmailKey = "user_email"

	// SessionCookie is the cookie a browser session travels in.
	SessionCookie = "session"
)

// SessionParser is satisfied by *services.SessionManager.
type SessionParser interface {
	Parse(token string) (*services.SessionClaims, error)
}

// Session resolves the acting user from a Bearer token or the session cookie
// and stores it on the request. Requests without a valid session pass through
// unauthenticated; services reject them where an actor is required.
func Session(sessions SessionParser, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			token = c.Cookies(SessionCookie)
		}
		if token == "" {
			return c.Next()
		}

		claims, err := sessions.Parse(token)
		if err != nil {
			log.Debug("session rejected", zap.String("path", c.Path()), zap.Error(err))
			return c.Next()
		}
		c.Locals(userIDKey, claims.Subject)
		c.Locals(userEmailKey, claims.Email)
		return c.Next()
	}
}

// ActingUser returns the resolved user id, or "" when the request carries no
// valid session.
func ActingUser(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}

func ActingEmail(c *fiber.Ctx) string {
	email, _ := c.Locals(userEmailKey).(string)
	return email
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
