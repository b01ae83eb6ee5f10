package seed

import (
	"context"
	"testing"

	"vortexx/internal/bootstrap"
	"vortexx/internal/config"
	"vortexx/internal/docstore"
	"vortexx/internal/models"
	"vortexx/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuntime(t *testing.T) (*bootstrap.Runtime, *testutil.RepoHost, *testutil.BlobHost) {
	t.Helper()
	host := testutil.NewRepoHost(t)
	blobs := testutil.NewBlobHost(t)
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		Env:               "test",
		JWTSecret:         "seed-test-secret-long-enough-for-hs256",
		SessionTTLHrs:     1,
		FeatureFlags:      "stories=on",
		RepoAPIURL:        host.APIURL(),
		RepoRawURL:        host.RawURL(),
		RepoOwner:         host.Owner,
		RepoName:          host.Repo,
		RepoBranch:        host.Branch,
		RepoToken:         "token",
		RepoTimeoutSecs:   5,
		RepoMaxRetries:    2,
		BlobUploadURL:     blobs.URL(),
		BlobFileField:     "fileToUpload",
		BlobTimeoutSecs:   5,
		MediaMaxUploadMB:  10,
		MediaMaxDimension: 64,
		MediaFormat:       "jpeg",
		MirrorDriver:      "memory",
		RedisURL:          mr.Addr(),
	}
	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{InitRepo: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return rt, host, blobs
}

func services(rt *bootstrap.Runtime) Services {
	return Services{
		Auth:     rt.Auth,
		Users:    rt.Users,
		Posts:    rt.Posts,
		Comments: rt.Comments,
		Stories:  rt.Stories,
		Sessions: rt.Sessions,
	}
}

func TestSeeder_Run(t *testing.T) {
	rt, host, blobs := newRuntime(t)
	ctx := context.Background()

	res, err := NewSeeder(services(rt), Options{
		NumUsers:    3,
		NumPosts:    4,
		NumComments: 5,
		NumLikes:    2,
		NumStories:  1,
		Seed:        42,
	}).Run(ctx)
	require.NoError(t, err)

	assert.Len(t, res.Users, 3)
	assert.Len(t, res.Posts, 4)
	assert.Equal(t, 5, res.Comments)
	assert.Equal(t, 1, res.Stories)
	assert.Len(t, blobs.Uploads(), 1)

	for _, username := range res.Users {
		_, ok := host.File(docstore.UserPath(username))
		assert.True(t, ok, username)
	}

	users := rt.Users.ListUsers(ctx)
	assert.Len(t, users, 3)

	feed := rt.Posts.ListPosts(ctx, nil, "latest")
	assert.Len(t, feed, 4)

	comments := 0
	for _, id := range res.Posts {
		list, err := rt.Comments.ListComments(ctx, id)
		require.NoError(t, err)
		comments += len(list)
	}
	assert.Equal(t, 5, comments)

	stories := rt.Stories.Feed(ctx)
	require.Len(t, stories, 1)
}

func TestSeeder_SeedsLogin(t *testing.T) {
	rt, _, _ := newRuntime(t)
	ctx := context.Background()

	res, err := NewSeeder(services(rt), Options{NumUsers: 1, Password: "hunter22"}).Run(ctx)
	require.NoError(t, err)
	require.Len(t, res.Users, 1)

	auth, err := rt.Auth.Login(ctx, res.Users[0], "hunter22")
	require.NoError(t, err)
	assert.Equal(t, res.Users[0], auth.User.Username)
	assert.NotEmpty(t, auth.User.Bio)
}

func TestSeeder_DuplicateUsername(t *testing.T) {
	rt, _, _ := newRuntime(t)
	ctx := context.Background()

	first, err := NewSeeder(services(rt), Options{NumUsers: 1, Seed: 7}).Run(ctx)
	require.NoError(t, err)

	_, err = NewSeeder(services(rt), Options{NumUsers: 1, Seed: 7}).Run(ctx)
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeConflict, appErr.Code)
	assert.Len(t, first.Users, 1)
}

func TestUsernameFrom(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Kozey.Isom", "kozeyisom"},
		{"anna_b", "anna_b"},
		{"!!!", "user"},
		{"ÄÖü", "user"},
		{"abcdefghijklmnopqrstuvwxyz", "abcdefghijklmnopqrst"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, usernameFrom(tt.in), tt.in)
	}
}
