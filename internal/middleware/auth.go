// Package middleware holds the Fiber middleware of the HTTP API.
package middleware

import (
	"strings"

	"vortexx/internal/models"
	"vortexx/internal/session"

	"github.com/gofiber/fiber/v2"
)

// sessionLocal is the Fiber locals key holding the resolved *session.Session.
const sessionLocal = "session"

// Auth resolves bearer tokens into sessions.
type Auth struct {
	sessions *session.Manager
}

func NewAuth(sessions *session.Manager) *Auth {
	return &Auth{sessions: sessions}
}

// Required rejects requests without a valid session.
func (a *Auth) Required(c *fiber.Ctx) error {
	token, err := bearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, err)
	}
	sess, err := a.sessions.Resolve(c.UserContext(), token)
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	attach(c, sess)
	return c.Next()
}

// Optional attaches the session when a valid token is presented and lets
// anonymous requests through. An invalid token is treated as anonymous.
func (a *Auth) Optional(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return c.Next()
	}
	token, err := bearerToken(header)
	if err != nil {
		return c.Next()
	}
	if sess, err := a.sessions.Resolve(c.UserContext(), token); err == nil {
		attach(c, sess)
	}
	return c.Next()
}

// CurrentSession returns the session attached by Required or Optional, or nil.
func CurrentSession(c *fiber.Ctx) *session.Session {
	sess, _ := c.Locals(sessionLocal).(*session.Session)
	return sess
}

func attach(c *fiber.Ctx, sess *session.Session) {
	c.Locals(sessionLocal, sess)
	c.Locals("username", sess.Username())
	ctx := session.With(c.UserContext(), sess)
	c.SetUserContext(ctx)
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", models.NewUnauthorizedError("Authorization header required")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", models.NewUnauthorizedError("Invalid authorization header format")
	}
	return token, nil
}
