package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"vortexx/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIcons(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/icons", nil), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decode[[]string](t, resp), "verified")

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/icons/verified.svg", nil), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<svg")

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/icons/nope", nil), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetUserAvatar(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, models.User{Username: "jdoe", Name: "Jane Doe"})
	env.login(t, models.User{Username: "pic", ProfilePic: "https://files.example.test/pic.jpg"})

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/users/jdoe/avatar", nil), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), ">JD</text>")

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/users/pic/avatar", nil), "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://files.example.test/pic.jpg", resp.Header.Get("Location"))

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/users/ghost/avatar", nil), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
