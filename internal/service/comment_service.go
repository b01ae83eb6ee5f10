package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"vortexx/internal/docstore"
	"vortexx/internal/mirror"
	"vortexx/internal/models"
	"vortexx/internal/session"

	"github.com/google/uuid"
)

type CommentService struct {
	store  *docstore.Store
	mirror *mirror.Mirror
}

func NewCommentService(store *docstore.Store, m *mirror.Mirror) *CommentService {
	return &CommentService{store: store, mirror: m}
}

// AddComment appends a comment to the post's comment list and bumps the
// post's comment count.
func (s *CommentService) AddComment(ctx context.Context, sess *session.Session, postID, text string) (models.Comment, error) {
	if sess == nil {
		return models.Comment{}, models.NewUnauthorizedError("Authentication required")
	}
	if postID == "" {
		return models.Comment{}, models.NewValidationError("postId is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Comment{}, models.NewValidationError("Comment cannot be empty")
	}
	if utf8.RuneCountInString(text) > models.MaxCommentLength {
		return models.Comment{}, models.NewValidationError(fmt.Sprintf("Comment must not exceed %d characters", models.MaxCommentLength))
	}

	var post models.Post
	if _, err := s.store.ReadDocument(ctx, docstore.PostPath(postID), &post); err != nil {
		return models.Comment{}, storeError(err, "Post", postID)
	}
	if !post.Settings.AllowComments {
		return models.Comment{}, models.NewForbiddenError("Comments are disabled for this post")
	}

	comment := models.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		Author:    sess.User.Author(),
		Text:      text,
		Timestamp: s.store.Now().UnixMilli(),
	}
	_, err := docstore.UpdateJSON(ctx, s.store, docstore.CommentsPath(postID), func(list *[]models.Comment, _ bool) error {
		*list = append(*list, comment)
		return nil
	})
	if err != nil {
		return models.Comment{}, storeError(err, "Comments", postID)
	}

	updated, err := docstore.UpdateJSON(ctx, s.store, docstore.PostPath(postID), func(p *models.Post, found bool) error {
		if !found {
			return docstore.ErrNoChange
		}
		p.Comments++
		return nil
	})
	fields := map[string]any{"post_id": postID}
	bestEffort(ctx, "post_comment_count", err, fields)
	if err == nil && updated.ID != "" {
		s.store.UpsertIndexBestEffort(ctx, docstore.CollectionPosts, postID, updated.IndexRecord())
		_, mErr := s.mirror.UpdatePost(ctx, postID, func(p *models.Post) { p.Comments = updated.Comments })
		bestEffort(ctx, "mirror_update_post", mErr, fields)
	}
	bestEffort(ctx, "mirror_append_comment", s.mirror.AppendComment(ctx, comment), fields)
	return comment, nil
}

// ListComments returns the comments of a post, oldest first. A post without
// comments yields an empty list; an unreachable store falls back to the mirror.
func (s *CommentService) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	if postID == "" {
		return nil, models.NewValidationError("postId is required")
	}

	var list []models.Comment
	_, err := s.store.ReadDocument(ctx, docstore.CommentsPath(postID), &list)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return []models.Comment{}, nil
	case err != nil:
		cached, mErr := s.mirror.Comments(ctx)
		if mErr != nil {
			return nil, storeError(err, "Comments", postID)
		}
		if list := cached[postID]; list != nil {
			return list, nil
		}
		return []models.Comment{}, nil
	}

	if list == nil {
		list = []models.Comment{}
	}
	bestEffort(ctx, "mirror_set_comments", s.mirror.SetComments(ctx, postID, list), map[string]any{"post_id": postID})
	return list, nil
}
