package service

import (
	"context"
	"strings"
	"testing"

	"vortexx/internal/docstore"
	"vortexx/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func validRegistration(username string) RegisterInput {
	return RegisterInput{
		Name:            "Alice Example",
		Username:        username,
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
}

func TestRegister_CreatesUserIndexAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.auth().Register(ctx, validRegistration("abc"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "abc", res.User.Username)
	assert.Empty(t, res.User.PasswordHash)
	assert.Equal(t, "2023-11-14T22:13:20Z", res.User.JoinDate)

	var stored models.User
	f.host.DecodeFile(t, docstore.UserPath("abc"), &stored)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")))

	var index []models.UserIndex
	f.host.DecodeFile(t, docstore.IndexPath(docstore.CollectionUsers), &index)
	require.Len(t, index, 1)
	assert.Equal(t, "abc", index[0].Username)

	exists, err := f.store.UsernameExists(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = f.store.UsernameExists(ctx, "xyz")
	require.NoError(t, err)
	assert.False(t, exists)

	cached, ok, err := f.mirror.User(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, cached.PasswordHash)

	sess, err := f.sessions.Resolve(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, "abc", sess.Username())
}

func TestRegister_DuplicateUsernameWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.host.SeedJSON(t, docstore.UserPath("abc"), models.User{Username: "abc"})

	_, err := f.auth().Register(context.Background(), validRegistration("abc"))
	assertCode(t, models.CodeConflict, err)
	assert.Zero(t, f.host.CountWrites())
	assert.Empty(t, f.blobs.Uploads())
}

func TestRegister_ValidationHappensBeforeNetwork(t *testing.T) {
	tests := []struct {
		name string
		edit func(*RegisterInput)
	}{
		{"missing name", func(in *RegisterInput) { in.Name = " " }},
		{"short password", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "abc", "abc" }},
		{"mismatch", func(in *RegisterInput) { in.ConfirmPassword = "secret2" }},
		{"bad username", func(in *RegisterInput) { in.Username = "a b" }},
		{"profile pic not an image", func(in *RegisterInput) { in.ProfilePic = videoFile() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validRegistration("abc")
			tt.edit(&in)

			_, err := f.auth().Register(context.Background(), in)
			assertCode(t, models.CodeValidation, err)
			assert.Empty(t, f.host.Requests())
		})
	}
}

func TestRegister_UploadsProfilePic(t *testing.T) {
	f := newFixture(t)
	in := validRegistration("abc")
	in.ProfilePic = pngFile(t, 8, 8)

	res, err := f.auth().Register(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, f.blobs.Uploads(), 1)
	assert.True(t, strings.HasPrefix(res.User.ProfilePic, "https://files.example.test/"))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.auth().Register(ctx, validRegistration("abc"))
	require.NoError(t, err)
	require.NoError(t, f.mirror.Flush(ctx))

	res, err := f.auth().Login(ctx, "abc", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "Alice Example", res.User.Name)

	_, ok, err := f.mirror.User(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.auth().Login(ctx, "abc", "wrong-password")
	assertCode(t, models.CodeUnauthorized, err)

	_, err = f.auth().Login(ctx, "nobody", "secret1")
	assertCode(t, models.CodeUnauthorized, err)

	_, err = f.auth().Login(ctx, "", "")
	assertCode(t, models.CodeValidation, err)
}

func TestLogin_StoreDown(t *testing.T) {
	f := newFixture(t)
	f.host.SetDown(503)

	_, err := f.auth().Login(context.Background(), "abc", "secret1")
	assertCode(t, models.CodeUpstream, err)
}

func TestLogout_RevokesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.auth().Register(ctx, validRegistration("abc"))
	require.NoError(t, err)

	sess, err := f.sessions.Resolve(ctx, res.Token)
	require.NoError(t, err)
	require.NoError(t, f.auth().Logout(ctx, sess))

	_, err = f.sessions.Resolve(ctx, res.Token)
	assertCode(t, models.CodeUnauthorized, err)
}
