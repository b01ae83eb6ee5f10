package session

import (
	"context"
	"testing"
	"time"

	"vortexx/internal/mirror"
	"vortexx/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

func newManager(now func() time.Time) *Manager {
	return NewManager(mirror.New(mirror.NewMemoryStore()), testSecret, time.Hour, now)
}

func TestLoginResolveLogout(t *testing.T) {
	ctx := context.Background()
	m := newManager(nil)

	token, s, err := m.Login(ctx, models.User{Username: "abc", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.Empty(t, s.User.PasswordHash)

	resolved, err := m.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, resolved.ID)
	assert.Equal(t, "abc", resolved.Username())

	require.NoError(t, m.Logout(ctx, resolved))
	_, err = m.Resolve(ctx, token)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))
}

func TestResolve_Rejects(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := newManager(func() time.Time { return now })

	token, _, err := m.Login(ctx, models.User{Username: "abc"})
	require.NoError(t, err)

	other := NewManager(mirror.New(mirror.NewMemoryStore()), "another-secret", time.Hour, nil)
	foreign, _, err := other.Login(ctx, models.User{Username: "abc"})
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "abc", Issuer: issuer, ID: "x"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	later := newManager(func() time.Time { return now.Add(2 * time.Hour) })
	later.mirror = m.mirror

	tests := []struct {
		name  string
		m     *Manager
		token string
	}{
		{"garbage", m, "not-a-token"},
		{"wrong secret", m, foreign},
		{"alg none", m, unsigned},
		{"expired", later, token},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.m.Resolve(ctx, tt.token)
			assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))
		})
	}
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	m := newManager(nil)

	token, s, err := m.Login(ctx, models.User{Username: "abc", Name: "Old"})
	require.NoError(t, err)
	require.NoError(t, m.Refresh(ctx, s, models.User{Username: "abc", Name: "New", PasswordHash: "h"}))

	resolved, err := m.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "New", resolved.User.Name)
	assert.Empty(t, resolved.User.PasswordHash)
}

func TestLogin_SessionRecordExpiresWithToken(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := mirror.NewRedisClient(ctx, mr.Addr())
	require.NoError(t, err)
	m := NewManager(mirror.New(mirror.NewRedisStore(client)), testSecret, time.Hour, nil)
	t.Cleanup(func() { _ = m.mirror.Close() })

	token, s, err := m.Login(ctx, models.User{Username: "abc"})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL(mirror.KeyPrefix+"session:"+s.ID))

	_, err = m.Resolve(ctx, token)
	require.NoError(t, err)

	mr.FastForward(time.Hour + time.Second)
	assert.False(t, mr.Exists(mirror.KeyPrefix+"session:"+s.ID))
	_, err = m.Resolve(ctx, token)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))
}

func TestRefresh_ExpiredSessionIsDropped(t *testing.T) {
	ctx := context.Background()
	clock := time.Now()
	m := newManager(func() time.Time { return clock })

	_, s, err := m.Login(ctx, models.User{Username: "abc"})
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)
	require.NoError(t, m.Refresh(ctx, s, models.User{Username: "abc", Name: "New"}))

	var stored Session
	ok, err := m.mirror.GetSession(ctx, s.ID, &stored)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogin_RequiresSecret(t *testing.T) {
	m := NewManager(mirror.New(mirror.NewMemoryStore()), "", time.Hour, nil)
	_, _, err := m.Login(context.Background(), models.User{Username: "abc"})
	assert.Equal(t, models.CodeInternal, models.ErrorCode(err))
}

func TestContextHelpers(t *testing.T) {
	assert.Nil(t, From(context.Background()))

	s := &Session{ID: "1", User: models.User{Username: "abc"}}
	assert.Same(t, s, From(With(context.Background(), s)))

	var nilSession *Session
	assert.Empty(t, nilSession.Username())
}
