package service

import (
	"context"
	"fmt"
	"strings"

	"vortexx/internal/docstore"
	"vortexx/internal/featureflags"
	"vortexx/internal/media"
	"vortexx/internal/mirror"
	"vortexx/internal/models"
	"vortexx/internal/session"
	"vortexx/internal/validation"

	"github.com/google/uuid"
)

type PostService struct {
	store  *docstore.Store
	mirror *mirror.Mirror
	media  *MediaPipeline
	flags  *featureflags.Manager
	limits media.Limits
}

// MaxPostMedia caps the files attached to one post.
const MaxPostMedia = 10

type CreatePostInput struct {
	Caption string
	Type    models.PostType
	// Media files share the post type; the first one decides it for text posts.
	Media []media.File
	// nil means allowed
	AllowComments *bool
	AllowLikes    *bool
}

func NewPostService(store *docstore.Store, m *mirror.Mirror, pipeline *MediaPipeline, flags *featureflags.Manager, limits media.Limits) *PostService {
	return &PostService{store: store, mirror: m, media: pipeline, flags: flags, limits: limits}
}

func (s *PostService) CreatePost(ctx context.Context, sess *session.Session, in CreatePostInput) (models.Post, error) {
	if sess == nil {
		return models.Post{}, models.NewUnauthorizedError("Authentication required")
	}

	postType := in.Type
	if postType == "" {
		postType = models.PostTypeText
	}
	if !postType.Valid() {
		return models.Post{}, models.NewValidationError("Invalid post type")
	}
	if err := validation.ValidateCaption(in.Caption); err != nil {
		return models.Post{}, models.NewValidationError(err.Error())
	}

	switch postType {
	case models.PostTypeText:
		if len(in.Media) == 0 && strings.TrimSpace(in.Caption) == "" {
			return models.Post{}, models.NewValidationError("Please write something to post")
		}
	case models.PostTypeImage, models.PostTypeVideo:
		if len(in.Media) == 0 {
			return models.Post{}, models.NewValidationError("Please select a file for a " + string(postType) + " post")
		}
	}
	if len(in.Media) > MaxPostMedia {
		return models.Post{}, models.NewValidationError(fmt.Sprintf("A post can have at most %d files", MaxPostMedia))
	}

	for _, f := range in.Media {
		if err := media.Validate(f, s.limits); err != nil {
			return models.Post{}, err
		}
		kind := mediaKind(f.Type())
		switch {
		case postType == models.PostTypeText && kind != "":
			postType = kind
		case postType != models.PostTypeText && kind != postType:
			return models.Post{}, models.NewValidationError("File does not match the " + string(postType) + " post type")
		}
	}

	items, err := s.media.ProcessAll(ctx, in.Media, s.limits)
	if err != nil {
		return models.Post{}, err
	}

	post := models.Post{
		ID:        uuid.NewString(),
		Author:    sess.User.Author(),
		Caption:   strings.TrimSpace(in.Caption),
		Type:      postType,
		Media:     items,
		LikedBy:   []string{},
		Timestamp: s.store.Now().UnixMilli(),
		Settings: models.PostSettings{
			AllowComments: in.AllowComments == nil || *in.AllowComments,
			AllowLikes:    in.AllowLikes == nil || *in.AllowLikes,
		},
	}
	if _, err := s.store.PutDocument(ctx, docstore.PostPath(post.ID), post, ""); err != nil {
		return models.Post{}, storeError(err, "Post", post.ID)
	}

	s.store.UpsertIndexBestEffort(ctx, docstore.CollectionPosts, post.ID, post.IndexRecord())
	bestEffort(ctx, "user_post_count", adjustPostCount(ctx, s.store, sess.Username(), 1), map[string]any{"username": sess.Username()})
	bestEffort(ctx, "mirror_upsert_post", s.mirror.UpsertPost(ctx, post), map[string]any{"post_id": post.ID})
	return post, nil
}

// ListPosts returns the posts index in the requested order. The viewer's
// liked flag is filled in for posts held by the mirror.
func (s *PostService) ListPosts(ctx context.Context, viewer *session.Session, sort string) []models.PostIndex {
	order := docstore.ParseSortOrder(sort)
	if order == docstore.SortPopular && !s.flags.Enabled(featureflags.PopularFeed, viewer.Username()) {
		order = docstore.SortLatest
	}
	records := docstore.ReadCollection[models.PostIndex](ctx, s.store, docstore.CollectionPosts, order)

	username := viewer.Username()
	if username == "" || len(records) == 0 {
		return records
	}
	cached, err := s.mirror.Posts(ctx)
	if err != nil {
		bestEffort(ctx, "mirror_read_posts", err, nil)
		return records
	}
	liked := make(map[string]bool, len(cached))
	for _, p := range cached {
		liked[p.ID] = p.LikedByViewer(username)
	}
	for i := range records {
		records[i].Liked = liked[records[i].ID]
	}
	return records
}

// GetPost reads one post for viewer, using the mirror when the store is unreachable.
func (s *PostService) GetPost(ctx context.Context, viewer *session.Session, id string) (models.Post, error) {
	post, err := s.loadPost(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	return post.ForViewer(viewer.Username()), nil
}

// MyPosts lists the viewer's posts held by the mirror, newest first.
func (s *PostService) MyPosts(ctx context.Context, sess *session.Session) ([]models.Post, error) {
	if sess == nil {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	cached, err := s.mirror.Posts(ctx)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	out := []models.Post{}
	for _, p := range cached {
		if p.Author.Username == sess.Username() {
			out = append(out, p.ForViewer(sess.Username()))
		}
	}
	return out, nil
}

// ToggleLike likes or unlikes a post for the viewer.
func (s *PostService) ToggleLike(ctx context.Context, sess *session.Session, id string) (models.Post, error) {
	if sess == nil {
		return models.Post{}, models.NewUnauthorizedError("Authentication required")
	}
	username := sess.Username()
	post, err := docstore.UpdateJSON(ctx, s.store, docstore.PostPath(id), func(p *models.Post, found bool) error {
		if !found {
			return docstore.ErrNotFound
		}
		if !p.Settings.AllowLikes {
			return models.NewValidationError("Likes are disabled for this post")
		}
		p.ToggleLike(username)
		p.Liked = false
		return nil
	})
	if err != nil {
		return models.Post{}, storeError(err, "Post", id)
	}

	s.store.UpsertIndexBestEffort(ctx, docstore.CollectionPosts, post.ID, post.IndexRecord())
	s.syncMirror(ctx, post)
	return post.ForViewer(username), nil
}

// DeletePost removes a post, its comments and its index entry. Only the author may delete.
func (s *PostService) DeletePost(ctx context.Context, sess *session.Session, id string) error {
	if sess == nil {
		return models.NewUnauthorizedError("Authentication required")
	}
	var post models.Post
	if _, err := s.store.ReadDocument(ctx, docstore.PostPath(id), &post); err != nil {
		return storeError(err, "Post", id)
	}
	if post.Author.Username != sess.Username() {
		return models.NewForbiddenError("Only the author can delete this post")
	}

	if err := s.store.DeleteDocument(ctx, docstore.PostPath(id)); err != nil {
		return storeError(err, "Post", id)
	}
	fields := map[string]any{"post_id": id}
	bestEffort(ctx, "index_remove", s.store.RemoveIndexRecord(ctx, docstore.CollectionPosts, id), fields)
	bestEffort(ctx, "comments_delete", s.store.DeleteDocument(ctx, docstore.CommentsPath(id)), fields)
	bestEffort(ctx, "user_post_count", adjustPostCount(ctx, s.store, post.Author.Username, -1), fields)
	bestEffort(ctx, "mirror_remove_post", s.mirror.RemovePost(ctx, id), fields)
	return nil
}

// SavePost adds a post to the viewer's saved list. It reports false when the
// post was already saved.
func (s *PostService) SavePost(ctx context.Context, sess *session.Session, id string) (bool, error) {
	if sess == nil {
		return false, models.NewUnauthorizedError("Authentication required")
	}
	if _, err := s.loadPost(ctx, id); err != nil {
		return false, err
	}
	added, err := s.mirror.SavePost(ctx, sess.Username(), id)
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return added, nil
}

// SavedPosts returns the viewer's saved posts that the mirror still holds.
func (s *PostService) SavedPosts(ctx context.Context, sess *session.Session) ([]models.Post, error) {
	if sess == nil {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	ids, err := s.mirror.SavedPosts(ctx, sess.Username())
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	cached, err := s.mirror.Posts(ctx)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	byID := make(map[string]models.Post, len(cached))
	for _, p := range cached {
		byID[p.ID] = p
	}
	out := []models.Post{}
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p.ForViewer(sess.Username()))
		}
	}
	return out, nil
}

func (s *PostService) loadPost(ctx context.Context, id string) (models.Post, error) {
	if id == "" {
		return models.Post{}, models.NewValidationError("Post id is required")
	}
	var post models.Post
	_, err := s.store.ReadDocument(ctx, docstore.PostPath(id), &post)
	if err == nil {
		return post, nil
	}
	if unreachable(err) {
		if cached, ok, mErr := s.mirror.Post(ctx, id); mErr == nil && ok {
			return cached, nil
		}
	}
	return models.Post{}, storeError(err, "Post", id)
}

// syncMirror replaces the cached copy of post when the mirror holds one.
func (s *PostService) syncMirror(ctx context.Context, post models.Post) {
	post.Liked = false
	_, err := s.mirror.UpdatePost(ctx, post.ID, func(p *models.Post) { *p = post })
	bestEffort(ctx, "mirror_update_post", err, map[string]any{"post_id": post.ID})
}

func mediaKind(contentType string) models.PostType {
	switch {
	case media.IsImage(contentType):
		return models.PostTypeImage
	case media.IsVideo(contentType):
		return models.PostTypeVideo
	}
	return ""
}
