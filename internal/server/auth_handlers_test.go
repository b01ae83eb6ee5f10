package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vortexx/internal/docstore"
	"vortexx/internal/models"
	"vortexx/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLoginLogout(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, jsonRequest(http.MethodPost, "/api/auth/register", map[string]string{
		"name":            "Alice",
		"username":        "alice",
		"password":        "secret1",
		"confirmPassword": "secret1",
	}), "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	registered := decode[service.AuthResult](t, resp)
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, "alice", registered.User.Username)
	assert.Empty(t, registered.User.PasswordHash)

	resp = env.do(t, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"username": "alice",
		"password": "secret1",
	}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := decode[service.AuthResult](t, resp).Token

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[struct {
		User  models.User       `json:"user"`
		Stats service.UserStats `json:"stats"`
	}](t, resp)
	assert.Equal(t, "Alice", me.User.Name)

	resp = env.do(t, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegister_Multipart(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, http.MethodPost, "/api/auth/register", map[string]string{
		"name":            "Bob",
		"username":        "bob",
		"password":        "secret1",
		"confirmPassword": "secret1",
	}, pngUpload(t, "profilePic"))
	resp := env.do(t, req, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	res := decode[service.AuthResult](t, resp)
	assert.True(t, strings.HasPrefix(res.User.ProfilePic, "https://files.example.test/"))
	assert.Len(t, env.blobs.Uploads(), 1)
}

func TestRegister_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.host.SeedJSON(t, docstore.UserPath("taken"), models.User{Username: "taken"})

	tests := []struct {
		name   string
		body   map[string]string
		status int
		code   string
	}{
		{
			name:   "password mismatch",
			body:   map[string]string{"name": "A", "username": "abc", "password": "secret1", "confirmPassword": "secret2"},
			status: http.StatusBadRequest,
			code:   models.CodeValidation,
		},
		{
			name:   "missing fields",
			body:   map[string]string{},
			status: http.StatusBadRequest,
			code:   models.CodeValidation,
		},
		{
			name:   "duplicate username",
			body:   map[string]string{"name": "A", "username": "taken", "password": "secret1", "confirmPassword": "secret1"},
			status: http.StatusConflict,
			code:   models.CodeConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, jsonRequest(http.MethodPost, "/api/auth/register", tt.body), "")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decode[models.ErrorResponse](t, resp).Code)
		})
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"username": "ghost",
		"password": "whatever",
	}), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_InvalidBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp := env.do(t, req, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProfileRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, models.User{Username: "carol", Name: "Carol", Bio: "old"})

	resp := env.do(t, jsonRequest(http.MethodPatch, "/api/users/me", map[string]string{"bio": "new bio"}), token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[models.User](t, resp)
	assert.Equal(t, "new bio", updated.Bio)
	assert.Equal(t, "Carol", updated.Name)

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/users/carol", nil), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "new bio", decode[models.User](t, resp).Bio)

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/users/nobody", nil), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/users", nil), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	users := decode[[]models.UserIndex](t, resp)
	require.Len(t, users, 1)
	assert.Equal(t, "carol", users[0].Username)

	req := multipartRequest(t, http.MethodPatch, "/api/users/me", map[string]string{"name": "Caroline"}, pngUpload(t, "profilePic"))
	resp = env.do(t, req, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated = decode[models.User](t, resp)
	assert.Equal(t, "Caroline", updated.Name)
	assert.Equal(t, "new bio", updated.Bio)
	assert.NotEmpty(t, updated.ProfilePic)

	resp = env.do(t, jsonRequest(http.MethodPatch, "/api/users/me", map[string]string{"bio": "x"}), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
