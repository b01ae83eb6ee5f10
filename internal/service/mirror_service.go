package service

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"vortexx/internal/docstore"
	"vortexx/internal/mirror"
	"vortexx/internal/models"
	"vortexx/internal/observability"
)

// MirrorService rebuilds the local mirror from the document store.
type MirrorService struct {
	store  *docstore.Store
	mirror *mirror.Mirror
}

// ReloadResult counts what a reload put into the mirror.
type ReloadResult struct {
	Users    int `json:"users"`
	Posts    int `json:"posts"`
	Stories  int `json:"stories"`
	Comments int `json:"comments"`
}

func NewMirrorService(store *docstore.Store, m *mirror.Mirror) *MirrorService {
	return &MirrorService{store: store, mirror: m}
}

// Reload reads every user, post, story and comment document and replaces the
// mirror collections with them, newest first. Expired stories are left out.
// Sessions and saved posts are not touched.
func (s *MirrorService) Reload(ctx context.Context) (ReloadResult, error) {
	var res ReloadResult

	users, err := readCollection[models.User](ctx, s.store, docstore.CollectionUsers)
	if err != nil {
		return res, err
	}
	for i := range users {
		users[i] = users[i].Public()
	}
	slices.SortStableFunc(users, func(a, b models.User) int {
		return cmp.Compare(b.IndexRecord().SortTimestamp(), a.IndexRecord().SortTimestamp())
	})

	posts, err := readCollection[models.Post](ctx, s.store, docstore.CollectionPosts)
	if err != nil {
		return res, err
	}
	for i := range posts {
		posts[i].Liked = false
	}
	slices.SortStableFunc(posts, func(a, b models.Post) int { return cmp.Compare(b.Timestamp, a.Timestamp) })

	now := s.store.Now()
	stories, err := readCollection[models.Story](ctx, s.store, docstore.CollectionStories)
	if err != nil {
		return res, err
	}
	stories = slices.DeleteFunc(stories, func(st models.Story) bool { return st.Expired(now) })
	for i := range stories {
		stories[i].Liked = false
	}
	slices.SortStableFunc(stories, func(a, b models.Story) int { return cmp.Compare(b.Timestamp, a.Timestamp) })

	comments := make(map[string][]models.Comment, len(posts))
	for _, p := range posts {
		var list []models.Comment
		_, err := s.store.ReadDocument(ctx, docstore.CommentsPath(p.ID), &list)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("read comments of %s: %w", p.ID, err)
		}
		if len(list) > 0 {
			comments[p.ID] = list
			res.Comments += len(list)
		}
	}

	for key, list := range map[string]any{
		mirror.KeyUsers:    users,
		mirror.KeyPosts:    posts,
		mirror.KeyStories:  stories,
		mirror.KeyComments: comments,
	} {
		if err := s.mirror.Replace(ctx, key, list); err != nil {
			return res, err
		}
	}

	res.Users, res.Posts, res.Stories = len(users), len(posts), len(stories)
	observability.GlobalLogger.InfoContext(ctx, "mirror reloaded",
		slog.Int("users", res.Users),
		slog.Int("posts", res.Posts),
		slog.Int("stories", res.Stories),
		slog.Int("comments", res.Comments),
	)
	return res, nil
}

// readCollection decodes every document of collection. Documents that vanish
// mid-listing or fail to decode are skipped.
func readCollection[T any](ctx context.Context, store *docstore.Store, collection string) ([]T, error) {
	paths, err := store.ListDocuments(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]T, 0, len(paths))
	for _, p := range paths {
		var doc T
		_, err := store.ReadDocument(ctx, p, &doc)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if undecodable(err) {
			observability.GlobalLogger.WarnContext(ctx, "skipping undecodable document",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func undecodable(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
