package service

import (
	"context"
	"strings"
	"testing"

	"vortexx/internal/docstore"
	"vortexx/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.login(t, models.User{Username: "alice"})
	bob := f.login(t, models.User{Username: "bob", Name: "Bob"})
	post, err := f.posts().CreatePost(ctx, alice, CreatePostInput{Caption: "hi"})
	require.NoError(t, err)

	c, err := f.comments().AddComment(ctx, bob, post.ID, "  first!  ")
	require.NoError(t, err)
	assert.Equal(t, "first!", c.Text)
	assert.Equal(t, "Bob", c.Author.Name)
	assert.Equal(t, post.ID, c.PostID)

	_, err = f.comments().AddComment(ctx, alice, post.ID, "thanks")
	require.NoError(t, err)

	var stored []models.Comment
	f.host.DecodeFile(t, docstore.CommentsPath(post.ID), &stored)
	require.Len(t, stored, 2)
	assert.Equal(t, "first!", stored[0].Text)
	assert.Equal(t, "thanks", stored[1].Text)

	var doc models.Post
	f.host.DecodeFile(t, docstore.PostPath(post.ID), &doc)
	assert.Equal(t, 2, doc.Comments)

	var index []models.PostIndex
	f.host.DecodeFile(t, docstore.IndexPath(docstore.CollectionPosts), &index)
	require.Len(t, index, 1)
	assert.Equal(t, 2, index[0].Comments)

	cached, _, err := f.mirror.Post(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cached.Comments)

	list, err := f.comments().ListComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAddComment_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.login(t, models.User{Username: "alice"})
	closed, err := f.posts().CreatePost(ctx, alice, CreatePostInput{Caption: "quiet", AllowComments: boolPtr(false)})
	require.NoError(t, err)

	_, err = f.comments().AddComment(ctx, alice, closed.ID, "hello")
	assertCode(t, models.CodeForbidden, err)

	_, err = f.comments().AddComment(ctx, alice, closed.ID, "   ")
	assertCode(t, models.CodeValidation, err)

	_, err = f.comments().AddComment(ctx, alice, closed.ID, strings.Repeat("é", models.MaxCommentLength+1))
	assertCode(t, models.CodeValidation, err)

	_, err = f.comments().AddComment(ctx, alice, "", "hello")
	assertCode(t, models.CodeValidation, err)

	_, err = f.comments().AddComment(ctx, alice, "missing", "hello")
	assertCode(t, models.CodeNotFound, err)

	_, err = f.comments().AddComment(ctx, nil, closed.ID, "hello")
	assertCode(t, models.CodeUnauthorized, err)

	_, ok := f.host.File(docstore.CommentsPath(closed.ID))
	assert.False(t, ok)
}

func TestAddComment_AtLengthLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.login(t, models.User{Username: "alice"})
	post, err := f.posts().CreatePost(ctx, alice, CreatePostInput{Caption: "hi"})
	require.NoError(t, err)

	_, err = f.comments().AddComment(ctx, alice, post.ID, strings.Repeat("é", models.MaxCommentLength))
	assert.NoError(t, err)
}

func TestListComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.comments().ListComments(ctx, "no-comments-yet")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = f.comments().ListComments(ctx, "")
	assertCode(t, models.CodeValidation, err)
}

func TestListComments_FallsBackToMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.host.SeedJSON(t, docstore.CommentsPath("p1"), []models.Comment{{ID: "c1", PostID: "p1", Text: "hi"}})

	// a successful read refreshes the mirror
	_, err := f.comments().ListComments(ctx, "p1")
	require.NoError(t, err)

	f.host.SetDown(503)
	list, err := f.comments().ListComments(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].ID)

	list, err = f.comments().ListComments(ctx, "p2")
	require.NoError(t, err)
	assert.Empty(t, list)
}
