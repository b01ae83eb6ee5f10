package mirror

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"vortexx/internal/models"
	"vortexx/internal/observability"
)

// Collection keys.
const (
	KeyUsers    = "users"
	KeyPosts    = "posts"
	KeyStories  = "stories"
	KeyComments = "comments"
)

func savedKey(username string) string { return "saved_posts:" + username }
func sessionKey(id string) string     { return "session:" + id }

// Mirror is the typed view over a Store. Every collection mutation is a
// read-modify-write of the whole list, serialized by one mutex; concurrent
// processes sharing a store resolve by last writer wins.
type Mirror struct {
	store Store
	mu    sync.Mutex
}

// New wraps store.
func New(store Store) *Mirror {
	return &Mirror{store: store}
}

// Close releases the underlying store.
func (m *Mirror) Close() error {
	return m.store.Close()
}

func (m *Mirror) Users(ctx context.Context) ([]models.User, error) {
	return load[[]models.User](ctx, m, KeyUsers)
}

func (m *Mirror) Posts(ctx context.Context) ([]models.Post, error) {
	return load[[]models.Post](ctx, m, KeyPosts)
}

func (m *Mirror) Stories(ctx context.Context) ([]models.Story, error) {
	return load[[]models.Story](ctx, m, KeyStories)
}

// Comments returns the comment lists keyed by post id.
func (m *Mirror) Comments(ctx context.Context) (map[string][]models.Comment, error) {
	comments, err := load[map[string][]models.Comment](ctx, m, KeyComments)
	if comments == nil {
		comments = map[string][]models.Comment{}
	}
	return comments, err
}

// User looks up one cached user.
func (m *Mirror) User(ctx context.Context, username string) (models.User, bool, error) {
	users, err := m.Users(ctx)
	if err != nil {
		return models.User{}, false, err
	}
	for _, u := range users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return models.User{}, false, nil
}

// Post looks up one cached post.
func (m *Mirror) Post(ctx context.Context, id string) (models.Post, bool, error) {
	posts, err := m.Posts(ctx)
	if err != nil {
		return models.Post{}, false, err
	}
	if i := slices.IndexFunc(posts, func(p models.Post) bool { return p.ID == id }); i >= 0 {
		return posts[i], true, nil
	}
	return models.Post{}, false, nil
}

// UpsertUser replaces the cached user with the same username or prepends it.
// Credentials are never cached.
func (m *Mirror) UpsertUser(ctx context.Context, u models.User) error {
	u = u.Public()
	return modify(ctx, m, KeyUsers, func(users *[]models.User) bool {
		*users = upsert(*users, u, func(x models.User) bool { return x.Username == u.Username })
		return true
	})
}

// UpsertPost replaces the cached post with the same id or prepends it.
func (m *Mirror) UpsertPost(ctx context.Context, p models.Post) error {
	p.Liked = false
	return modify(ctx, m, KeyPosts, func(posts *[]models.Post) bool {
		*posts = upsert(*posts, p, func(x models.Post) bool { return x.ID == p.ID })
		return true
	})
}

// UpdatePost applies fn to the cached post with id. It reports whether the
// post was cached.
func (m *Mirror) UpdatePost(ctx context.Context, id string, fn func(*models.Post)) (bool, error) {
	found := false
	err := modify(ctx, m, KeyPosts, func(posts *[]models.Post) bool {
		i := slices.IndexFunc(*posts, func(p models.Post) bool { return p.ID == id })
		if i < 0 {
			return false
		}
		found = true
		fn(&(*posts)[i])
		return true
	})
	return found, err
}

// RemovePost drops the cached post with id.
func (m *Mirror) RemovePost(ctx context.Context, id string) error {
	return modify(ctx, m, KeyPosts, func(posts *[]models.Post) bool {
		n := len(*posts)
		*posts = slices.DeleteFunc(*posts, func(p models.Post) bool { return p.ID == id })
		return len(*posts) != n
	})
}

// UpsertStory replaces the cached story with the same id or prepends it.
func (m *Mirror) UpsertStory(ctx context.Context, s models.Story) error {
	s.Liked = false
	return modify(ctx, m, KeyStories, func(stories *[]models.Story) bool {
		*stories = upsert(*stories, s, func(x models.Story) bool { return x.ID == s.ID })
		return true
	})
}

// UpdateStory applies fn to the cached story with id.
func (m *Mirror) UpdateStory(ctx context.Context, id string, fn func(*models.Story)) (bool, error) {
	found := false
	err := modify(ctx, m, KeyStories, func(stories *[]models.Story) bool {
		i := slices.IndexFunc(*stories, func(s models.Story) bool { return s.ID == id })
		if i < 0 {
			return false
		}
		found = true
		fn(&(*stories)[i])
		return true
	})
	return found, err
}

// PruneStories drops cached stories that expired at now and returns how many.
func (m *Mirror) PruneStories(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	err := modify(ctx, m, KeyStories, func(stories *[]models.Story) bool {
		n := len(*stories)
		*stories = slices.DeleteFunc(*stories, func(s models.Story) bool { return s.Expired(now) })
		removed = n - len(*stories)
		return removed > 0
	})
	return removed, err
}

// AppendComment adds c to the list of its post.
func (m *Mirror) AppendComment(ctx context.Context, c models.Comment) error {
	return modify(ctx, m, KeyComments, func(comments *map[string][]models.Comment) bool {
		if *comments == nil {
			*comments = map[string][]models.Comment{}
		}
		(*comments)[c.PostID] = append((*comments)[c.PostID], c)
		return true
	})
}

// SetComments replaces the cached comment list of postID.
func (m *Mirror) SetComments(ctx context.Context, postID string, list []models.Comment) error {
	return modify(ctx, m, KeyComments, func(comments *map[string][]models.Comment) bool {
		if *comments == nil {
			*comments = map[string][]models.Comment{}
		}
		(*comments)[postID] = list
		return true
	})
}

// SavePost adds postID to the user's saved list. It returns false when the
// post was already saved.
func (m *Mirror) SavePost(ctx context.Context, username, postID string) (bool, error) {
	added := false
	err := modify(ctx, m, savedKey(username), func(ids *[]string) bool {
		if slices.Contains(*ids, postID) {
			return false
		}
		*ids = append(*ids, postID)
		added = true
		return true
	})
	return added, err
}

// SavedPosts returns the ids the user saved, oldest first.
func (m *Mirror) SavedPosts(ctx context.Context, username string) ([]string, error) {
	return load[[]string](ctx, m, savedKey(username))
}

// PutSession stores a session record under its token id. The record
// disappears once ttl has passed.
func (m *Mirror) PutSession(ctx context.Context, id string, record any, ttl time.Duration) error {
	if err := m.store.SetTTL(ctx, sessionKey(id), record, ttl); err != nil {
		return m.fail("put_session", err)
	}
	return nil
}

// GetSession decodes the session record of id into dest.
func (m *Mirror) GetSession(ctx context.Context, id string, dest any) (bool, error) {
	ok, err := m.store.Get(ctx, sessionKey(id), dest)
	if err != nil {
		return false, m.fail("get_session", err)
	}
	return ok, nil
}

// DeleteSession removes the session record of id.
func (m *Mirror) DeleteSession(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, sessionKey(id)); err != nil {
		return m.fail("delete_session", err)
	}
	return nil
}

// PruneSessions sweeps expired session records from stores that do not
// expire keys on their own.
func (m *Mirror) PruneSessions(ctx context.Context, now time.Time) (int, error) {
	sweeper, ok := m.store.(Sweeper)
	if !ok {
		return 0, nil
	}
	removed, err := sweeper.DeleteExpired(ctx, now)
	if err != nil {
		return removed, m.fail("prune_sessions", err)
	}
	return removed, nil
}

// Replace overwrites a whole collection, used after a full reload from the
// document store.
func (m *Mirror) Replace(ctx context.Context, collection string, list any) error {
	switch collection {
	case KeyUsers, KeyPosts, KeyStories, KeyComments:
	default:
		return fmt.Errorf("mirror: unknown collection %q", collection)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Set(ctx, collection, list); err != nil {
		return m.fail("replace", err)
	}
	return nil
}

// Flush removes everything the mirror holds.
func (m *Mirror) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Flush(ctx); err != nil {
		return m.fail("flush", err)
	}
	return nil
}

func (m *Mirror) fail(op string, err error) error {
	observability.MirrorErrorRate.WithLabelValues(op).Inc()
	return fmt.Errorf("mirror %s: %w", op, err)
}

func load[T any](ctx context.Context, m *Mirror, key string) (T, error) {
	var v T
	if _, err := m.store.Get(ctx, key, &v); err != nil {
		var zero T
		return zero, m.fail("get", err)
	}
	return v, nil
}

// modify loads key, applies fn and writes the value back when fn reports a change.
func modify[T any](ctx context.Context, m *Mirror, key string, fn func(*T) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var v T
	if _, err := m.store.Get(ctx, key, &v); err != nil {
		return m.fail("get", err)
	}
	if !fn(&v) {
		return nil
	}
	if err := m.store.Set(ctx, key, v); err != nil {
		return m.fail("set", err)
	}
	return nil
}

func upsert[T any](list []T, item T, match func(T) bool) []T {
	if i := slices.IndexFunc(list, match); i >= 0 {
		list[i] = item
		return list
	}
	return append([]T{item}, list...)
}
