package docstore

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"vortexx/internal/models"
	"vortexx/internal/testutil"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func newTestStore(t *testing.T, host *testutil.RepoHost, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	s, err := New(context.Background(), Config{
		APIURL:     host.APIURL(),
		RawURL:     host.RawURL(),
		Owner:      host.Owner,
		Repo:       host.Repo,
		Branch:     host.Branch,
		Token:      "test-token",
		MaxRetries: 3,
	}, opts...)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresOwnerAndRepo(t *testing.T) {
	_, err := New(context.Background(), Config{Repo: "x"})
	assert.Error(t, err)
}

func TestGetRevision_MissingIsNotAnError(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)

	rev, found, err := s.GetRevision(context.Background(), "users/nobody.json")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, rev)
}

func TestReadDocument_NotFound(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)

	var u models.User
	_, err := s.ReadDocument(context.Background(), UserPath("ghost"), &u)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteDocument_ChangesRevision(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	ctx := context.Background()

	doc := models.User{ID: "1", Username: "abc", Name: "Abc"}
	host.SeedJSON(t, UserPath("abc"), doc)

	before, found, err := s.GetRevision(ctx, UserPath("abc"))
	require.NoError(t, err)
	require.True(t, found)

	rev, err := s.WriteDocument(ctx, UserPath("abc"), doc)
	require.NoError(t, err)

	after, _, err := s.GetRevision(ctx, UserPath("abc"))
	require.NoError(t, err)
	assert.Equal(t, rev, after)
	assert.NotEqual(t, before, after)
	assert.Equal(t, "Bearer test-token", host.LastAuthorization())
}

func TestPutDocument_Conflicts(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	ctx := context.Background()
	host.SeedJSON(t, PostPath("p1"), models.Post{ID: "p1"})

	_, err := s.PutDocument(ctx, PostPath("p1"), models.Post{ID: "p1", Caption: "x"}, "stale")
	assert.True(t, IsConflict(err), "stale revision: %v", err)

	_, err = s.PutDocument(ctx, PostPath("p1"), models.Post{ID: "p1"}, "")
	assert.True(t, IsConflict(err), "create over existing: %v", err)

	rev, err := s.PutDocument(ctx, PostPath("p2"), models.Post{ID: "p2"}, "")
	require.NoError(t, err)
	assert.Equal(t, host.SHA(PostPath("p2")), rev)
}

func TestUpdate_ReappliesDeltaAfterConflict(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	p := PostPath("p1")
	host.SeedJSON(t, p, models.Post{ID: "p1", LikedBy: []string{}})

	// another writer likes the post between our read and our write
	host.InterleaveWrites(p, 1, func(current []byte) []byte {
		return []byte(`{"id":"p1","likedBy":["bob"],"likes":1}`)
	})

	post, err := UpdateJSON(context.Background(), s, p, func(doc *models.Post, found bool) error {
		require.True(t, found)
		doc.ToggleLike("alice")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "alice"}, post.LikedBy)
	assert.Equal(t, 2, post.Likes)

	var stored models.Post
	host.DecodeFile(t, p, &stored)
	assert.Equal(t, []string{"bob", "alice"}, stored.LikedBy)
	assert.Equal(t, 2, host.CountRequests(http.MethodPut, p))
}

func TestUpdate_GivesUpAfterMaxRetries(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	p := PostPath("hot")
	host.SeedJSON(t, p, models.Post{ID: "hot"})
	host.InterleaveWrites(p, 100, func(current []byte) []byte { return current })

	_, err := s.WriteDocument(context.Background(), p, models.Post{ID: "hot", Caption: "mine"})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, 4, host.CountRequests(http.MethodPut, p), "one attempt plus three retries")
}

func TestUpdate_NoChangeSkipsWrite(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	p := PostPath("p1")
	sha := host.SeedJSON(t, p, models.Post{ID: "p1"})

	rev, err := s.Update(context.Background(), p, func([]byte, bool) ([]byte, error) {
		return nil, ErrNoChange
	})
	require.NoError(t, err)
	assert.Equal(t, sha, rev)
	assert.Zero(t, host.CountWrites())
}

func TestUpdate_MutateErrorIsNotRetried(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	boom := errors.New("boom")

	calls := 0
	_, err := s.Update(context.Background(), PostPath("p1"), func([]byte, bool) ([]byte, error) {
		calls++
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDeleteDocument(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	ctx := context.Background()
	host.SeedJSON(t, PostPath("p1"), models.Post{ID: "p1"})

	require.NoError(t, s.DeleteDocument(ctx, PostPath("p1")))
	_, ok := host.File(PostPath("p1"))
	assert.False(t, ok)

	require.NoError(t, s.DeleteDocument(ctx, PostPath("p1")), "missing document is a no-op")
}

func TestUpsertIndexRecord_KeepsSingleEntryFirst(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	ctx := context.Background()
	host.SeedJSON(t, IndexPath(CollectionPosts), []models.PostIndex{{ID: "p0", Timestamp: 1}})

	require.NoError(t, s.UpsertIndexRecord(ctx, CollectionPosts, "p1", models.PostIndex{ID: "p1", Timestamp: 2}))
	require.NoError(t, s.UpsertIndexRecord(ctx, CollectionPosts, "p1", models.PostIndex{ID: "p1", Timestamp: 2, Likes: 1}))

	var index []models.PostIndex
	host.DecodeFile(t, IndexPath(CollectionPosts), &index)
	require.Len(t, index, 2)
	assert.Equal(t, "p1", index[0].ID)
	assert.Equal(t, 1, index[0].Likes)
	assert.Equal(t, "p0", index[1].ID)
}

func TestUpsertIndexRecord_UsersKeyedByUsername(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	ctx := context.Background()

	require.NoError(t, s.UpsertIndexRecord(ctx, CollectionUsers, "abc", models.UserIndex{ID: "1", Username: "abc"}))
	require.NoError(t, s.UpsertIndexRecord(ctx, CollectionUsers, "abc", models.UserIndex{ID: "1", Username: "abc", Verified: true}))

	var index []models.UserIndex
	host.DecodeFile(t, IndexPath(CollectionUsers), &index)
	require.Len(t, index, 1)
	assert.True(t, index[0].Verified)
}

func TestRemoveIndexRecord(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	ctx := context.Background()
	host.SeedJSON(t, IndexPath(CollectionPosts), []models.PostIndex{{ID: "a"}, {ID: "b"}})

	require.NoError(t, s.RemoveIndexRecord(ctx, CollectionPosts, "a"))
	writes := host.CountWrites()
	require.NoError(t, s.RemoveIndexRecord(ctx, CollectionPosts, "a"))
	assert.Equal(t, writes, host.CountWrites(), "removing an absent key does not commit")

	var index []models.PostIndex
	host.DecodeFile(t, IndexPath(CollectionPosts), &index)
	require.Len(t, index, 1)
	assert.Equal(t, "b", index[0].ID)
}

func TestReadCollection_Sorting(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	host.SeedJSON(t, IndexPath(CollectionPosts), []models.PostIndex{
		{ID: "a", Timestamp: 4, Likes: 1},
		{ID: "b", Timestamp: 1, Likes: 2, Comments: 1},
		{ID: "c", Timestamp: 3, Comments: 1},
		{ID: "d", Timestamp: 2, Likes: 3},
	})

	popular := ReadCollection[models.PostIndex](context.Background(), s, CollectionPosts, SortPopular)
	assert.Equal(t, []string{"b", "d", "a", "c"}, postIDs(popular))

	latest := ReadCollection[models.PostIndex](context.Background(), s, CollectionPosts, SortLatest)
	assert.Equal(t, []string{"a", "c", "d", "b"}, postIDs(latest))
}

func TestReadCollection_FailureIsEmpty(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)

	missing := ReadCollection[models.PostIndex](context.Background(), s, CollectionPosts, SortLatest)
	assert.NotNil(t, missing)
	assert.Empty(t, missing)

	host.Seed(IndexPath(CollectionPosts), []byte("not json"))
	assert.Empty(t, ReadCollection[models.PostIndex](context.Background(), s, CollectionPosts, SortLatest))

	host.SetDown(http.StatusBadGateway)
	assert.Empty(t, ReadCollection[models.PostIndex](context.Background(), s, CollectionPosts, SortLatest))
}

func TestParseSortOrder(t *testing.T) {
	assert.Equal(t, SortPopular, ParseSortOrder("popular"))
	assert.Equal(t, SortLatest, ParseSortOrder("latest"))
	assert.Equal(t, SortLatest, ParseSortOrder(""))
}

func TestStoryFeed_Window(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	day := models.StoryLifetime.Milliseconds()
	now := fixedNow.UnixMilli()

	host.SeedJSON(t, IndexPath(CollectionStories), []models.StoryIndex{
		{ID: "just-in", Timestamp: now - day + 1},
		{ID: "edge", Timestamp: now - day},
		{ID: "just-out", Timestamp: now - day - 1},
		{ID: "fresh", Timestamp: now - 1000},
	})

	feed := s.StoryFeed(context.Background())
	ids := make([]string, 0, len(feed))
	for _, st := range feed {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []string{"fresh", "just-in"}, ids)
	assert.Positive(t, host.CountRequests(http.MethodGet, "/raw/vortexx/vortexx-data/main/stories/index.json"))
}

func TestUsernameExists(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	ctx := context.Background()
	host.SeedJSON(t, UserPath("abc"), models.User{Username: "abc"})

	ok, err := s.UsernameExists(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UsernameExists(ctx, "xyz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListDocuments(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	ctx := context.Background()
	host.Seed("posts/b.json", []byte("{}"))
	host.Seed("posts/a.json", []byte("{}"))
	host.Seed("posts/index.json", []byte("[]"))
	host.Seed("posts/README.md", []byte("#"))

	paths, err := s.ListDocuments(ctx, CollectionPosts)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts/a.json", "posts/b.json"}, paths)

	paths, err = s.ListDocuments(ctx, CollectionStories)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestRebuildIndex_IsIdempotent(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	ctx := context.Background()
	host.SeedJSON(t, PostPath("old"), models.Post{ID: "old", Timestamp: 100, Author: models.Author{Username: "a"}})
	host.SeedJSON(t, PostPath("new"), models.Post{ID: "new", Timestamp: 200, Likes: 2, LikedBy: []string{"x", "y"}})
	host.Seed(IndexPath(CollectionPosts), []byte(`[{"id":"gone"}]`))

	project, err := ProjectionFor(CollectionPosts)
	require.NoError(t, err)

	n, err := s.RebuildIndex(ctx, CollectionPosts, project)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var index []models.PostIndex
	host.DecodeFile(t, IndexPath(CollectionPosts), &index)
	require.Len(t, index, 2)
	assert.Equal(t, "new", index[0].ID)
	assert.Equal(t, 2, index[0].Likes)
	assert.Equal(t, "old", index[1].ID)

	writes := host.CountWrites()
	_, err = s.RebuildIndex(ctx, CollectionPosts, project)
	require.NoError(t, err)
	assert.Equal(t, writes, host.CountWrites())
}

func TestProjectionFor_UnknownCollection(t *testing.T) {
	_, err := ProjectionFor(CollectionComments)
	assert.Error(t, err)
}

func TestCompactStories_RemovesOnlyExpired(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	ctx := context.Background()
	now := fixedNow.UnixMilli()
	expired := models.Story{ID: "old", Timestamp: now - models.StoryLifetime.Milliseconds() - 1}
	live := models.Story{ID: "live", Timestamp: now - 1000}

	host.SeedJSON(t, StoryPath("old"), expired)
	host.SeedJSON(t, StoryPath("live"), live)
	host.SeedJSON(t, IndexPath(CollectionStories), []models.StoryIndex{live.IndexRecord(), expired.IndexRecord()})

	n, err := s.CompactStories(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok := host.File(StoryPath("old"))
	assert.False(t, ok)
	_, ok = host.File(StoryPath("live"))
	assert.True(t, ok)

	var index []models.StoryIndex
	host.DecodeFile(t, IndexPath(CollectionStories), &index)
	require.Len(t, index, 1)
	assert.Equal(t, "live", index[0].ID)
}

func TestInitStructure_CreatesOnlyMissing(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	ctx := context.Background()
	host.Seed(IndexPath(CollectionUsers), []byte(`[{"username":"keep"}]`))

	require.NoError(t, s.InitStructure(ctx))
	assert.Equal(t, []string{
		"comments/README.md",
		"posts/README.md",
		"posts/index.json",
		"stories/README.md",
		"stories/index.json",
		"users/README.md",
		"users/index.json",
	}, host.Paths())

	users, _ := host.File(IndexPath(CollectionUsers))
	assert.JSONEq(t, `[{"username":"keep"}]`, string(users))

	writes := host.CountWrites()
	require.NoError(t, s.InitStructure(ctx))
	assert.Equal(t, writes, host.CountWrites())
}

func TestPing(t *testing.T) {
	host := testutil.NewRepoHost(t)
	s := newTestStore(t, host)
	require.NoError(t, s.Ping(context.Background()))

	other, err := New(context.Background(), Config{APIURL: host.APIURL(), Owner: host.Owner, Repo: "missing"})
	require.NoError(t, err)
	err = other.Ping(context.Background())
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusNotFound, upstream.Status)
	assert.Contains(t, err.Error(), "not found")
}

func postIDs(records []models.PostIndex) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
