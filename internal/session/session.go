// Package session issues and resolves login sessions. A session is a signed
// token plus a record in the local mirror; deleting the record revokes the token.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vortexx/internal/mirror"
	"vortexx/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "vortexx-api"

// Session is the authenticated viewer of a request.
type Session struct {
	ID        string      `json:"id"`
	User      models.User `json:"user"`
	IssuedAt  time.Time   `json:"issuedAt"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Username returns the session's user name, or "" for a nil session.
func (s *Session) Username() string {
	if s == nil {
		return ""
	}
	return s.User.Username
}

// Manager owns the signing secret and the session records.
type Manager struct {
	mirror *mirror.Mirror
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager builds a Manager. now may be nil to use the wall clock.
func NewManager(m *mirror.Mirror, secret string, ttl time.Duration, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{mirror: m, secret: []byte(secret), ttl: ttl, now: now}
}

// Login starts a session for user and returns its signed token.
func (m *Manager) Login(ctx context.Context, user models.User) (string, *Session, error) {
	if len(m.secret) == 0 {
		return "", nil, models.NewInternalError(errors.New("JWT secret not configured"))
	}

	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		User:      user.Public(),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	claims := jwt.RegisteredClaims{
		Subject:   user.Username,
		Issuer:    issuer,
		ID:        s.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, models.NewInternalError(fmt.Errorf("sign token: %w", err))
	}

	if err := m.mirror.PutSession(ctx, s.ID, s, m.ttl); err != nil {
		return "", nil, models.NewInternalError(err)
	}
	return token, s, nil
}

// Resolve validates token and loads its session record. Unknown, expired and
// revoked tokens are unauthorized.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return nil, models.NewUnauthorizedError("Invalid or expired token")
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, models.NewUnauthorizedError("Invalid token structure")
	}

	var s Session
	ok, err := m.mirror.GetSession(ctx, claims.ID, &s)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if !ok || s.User.Username != claims.Subject {
		return nil, models.NewUnauthorizedError("Session has been revoked")
	}
	return &s, nil
}

// Refresh replaces the user snapshot held by s.
func (m *Manager) Refresh(ctx context.Context, s *Session, user models.User) error {
	s.User = user.Public()
	remaining := s.ExpiresAt.Sub(m.now())
	if remaining <= 0 {
		return m.Logout(ctx, s)
	}
	if err := m.mirror.PutSession(ctx, s.ID, s, remaining); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Logout revokes s.
func (m *Manager) Logout(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	if err := m.mirror.DeleteSession(ctx, s.ID); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

type ctxKey struct{}

// With returns a context carrying s.
func With(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// From returns the session carried by ctx, or nil.
func From(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
