package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vortexx/internal/config"
	"vortexx/internal/docstore"
	"vortexx/internal/models"
	"vortexx/internal/server"
	"vortexx/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(host *testutil.RepoHost, blobs *testutil.BlobHost, redisAddr string) *config.Config {
	return &config.Config{
		Env:               "test",
		Port:              "0",
		JWTSecret:         "bootstrap-test-secret-long-enough-1234",
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
		MediaMaxDimension: 256,
		MediaFormat:       "jpeg",
		MirrorDriver:      "memory",
		RedisURL:          redisAddr,
	}
}

func TestInitRuntime(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	host := testutil.NewRepoHost(t)
	blobs := testutil.NewBlobHost(t)
	mr := miniredis.RunT(t)
	ctx := context.Background()

	rt, err := InitRuntime(ctx, testConfig(host, blobs, mr.Addr()), Options{InitRepo: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	assert.NotNil(t, rt.Redis)
	for _, c := range []string{docstore.CollectionUsers, docstore.CollectionPosts, docstore.CollectionStories} {
		_, ok := host.File(docstore.IndexPath(c))
		assert.True(t, ok, c)
	}

	srv := server.NewServer(rt.ServerDeps())
	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInitRuntime_WithoutRedis(t *testing.T) {
	host := testutil.NewRepoHost(t)
	blobs := testutil.NewBlobHost(t)
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	ctx := context.Background()

	rt, err := InitRuntime(ctx, testConfig(host, blobs, addr), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	assert.Nil(t, rt.Redis)
	assert.NotNil(t, rt.Posts)
	assert.Empty(t, host.Paths())
}

func TestInitRuntime_BadMirrorDriver(t *testing.T) {
	host := testutil.NewRepoHost(t)
	blobs := testutil.NewBlobHost(t)
	cfg := testConfig(host, blobs, "")
	cfg.MirrorDriver = "cassandra"

	_, err := InitRuntime(context.Background(), cfg, Options{})
	assert.Error(t, err)
}

func TestInitRuntime_ReloadMirror(t *testing.T) {
	host := testutil.NewRepoHost(t)
	blobs := testutil.NewBlobHost(t)
	mr := miniredis.RunT(t)
	ctx := context.Background()

	host.SeedJSON(t, docstore.UserPath("alice"), models.User{ID: "id-alice", Username: "alice", Name: "Alice"})
	host.SeedJSON(t, docstore.PostPath("p1"), models.Post{
		ID:        "p1",
		Author:    models.Author{ID: "id-alice", Username: "alice"},
		Caption:   "written by another instance",
		Timestamp: time.Now().UnixMilli(),
	})

	rt, err := InitRuntime(ctx, testConfig(host, blobs, mr.Addr()), Options{ReloadMirror: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	_, sess, err := rt.Sessions.Login(ctx, models.User{ID: "id-alice", Username: "alice"})
	require.NoError(t, err)
	mine, err := rt.Posts.MyPosts(ctx, sess)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "p1", mine[0].ID)

	users, err := rt.Mirror.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestInitRuntime_ReloadMirrorFails(t *testing.T) {
	host := testutil.NewRepoHost(t)
	blobs := testutil.NewBlobHost(t)
	host.SetDown(http.StatusServiceUnavailable)

	_, err := InitRuntime(context.Background(), testConfig(host, blobs, ""), Options{ReloadMirror: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror reload failed")
}
