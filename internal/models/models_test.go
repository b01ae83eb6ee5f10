package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestPostToggleLikeIsReversible(t *testing.T) {
	t.Parallel()

	post := Post{ID: "1", LikedBy: []string{"bob"}, Likes: 1}

	assert.True(t, post.ToggleLike("alice"))
	assert.Equal(t, 2, post.Likes)
	assert.True(t, post.ForViewer("alice").Liked)

	assert.False(t, post.ToggleLike("alice"))
	assert.Equal(t, 1, post.Likes)
	assert.Equal(t, []string{"bob"}, post.LikedBy)
	assert.False(t, post.ForViewer("alice").Liked)
	assert.True(t, post.ForViewer("bob").Liked)
}

func TestStoryVisibilityWindow(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1_700_000_000_000)
	day := StoryLifetime.Milliseconds()

	tests := []struct {
		name    string
		age     int64
		visible bool
	}{
		{"fresh", 0, true},
		{"just inside", day - 1, true},
		{"exactly 24h", day, false},
		{"just outside", day + 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.visible, StoryVisible(now.UnixMilli()-tt.age, now))
		})
	}
}

func TestStoryAddViewIsSet(t *testing.T) {
	t.Parallel()

	story := Story{}
	assert.True(t, story.AddView("alice"))
	assert.False(t, story.AddView("alice"))
	assert.False(t, story.AddView(""))
	assert.Equal(t, []string{"alice"}, story.Views)
}

func TestUserPublicDropsCredentials(t *testing.T) {
	t.Parallel()

	u := User{Username: "alice", PasswordHash: "$2a$10$hash"}
	assert.Empty(t, u.Public().PasswordHash)
	assert.Equal(t, "$2a$10$hash", u.PasswordHash)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("create post: %w", NewValidationError("caption required"))

	assert.Equal(t, fiber.StatusBadRequest, StatusFor(wrapped))
	assert.Equal(t, fiber.StatusConflict, StatusFor(NewConflictError("taken")))
	assert.Equal(t, fiber.StatusBadGateway, StatusFor(NewUpstreamError("upload failed", errors.New("boom"))))
	assert.Equal(t, fiber.StatusInternalServerError, StatusFor(errors.New("plain")))
}
