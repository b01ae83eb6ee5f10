package service

import (
	"context"
	"log/slog"
	"strings"

	"vortexx/internal/docstore"
	"vortexx/internal/media"
	"vortexx/internal/mirror"
	"vortexx/internal/models"
	"vortexx/internal/observability"
	"vortexx/internal/session"
	"vortexx/internal/validation"
)

type UserService struct {
	store    *docstore.Store
	mirror   *mirror.Mirror
	sessions *session.Manager
	media    *MediaPipeline
}

// UpdateProfileInput carries the fields to change; nil fields are kept.
type UpdateProfileInput struct {
	Name       *string
	Bio        *string
	ProfilePic *media.File
}

// UserStats is the "my stats" summary.
type UserStats struct {
	Posts     int `json:"posts"`
	Followers int `json:"followers"`
	Following int `json:"following"`
}

func NewUserService(store *docstore.Store, m *mirror.Mirror, sessions *session.Manager, pipeline *MediaPipeline) *UserService {
	return &UserService{store: store, mirror: m, sessions: sessions, media: pipeline}
}

// GetProfile reads the user document, falling back to the mirror when the
// store cannot be reached.
func (s *UserService) GetProfile(ctx context.Context, username string) (models.User, error) {
	var user models.User
	_, err := s.store.ReadDocument(ctx, docstore.UserPath(username), &user)
	if err == nil {
		return user.Public(), nil
	}
	if unreachable(err) {
		if cached, ok, mErr := s.mirror.User(ctx, username); mErr == nil && ok {
			observability.GlobalLogger.WarnContext(ctx, "serving cached profile",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
			return cached, nil
		}
	}
	return models.User{}, storeError(err, "User", username)
}

// UpdateProfile merges in into the viewer's user document.
func (s *UserService) UpdateProfile(ctx context.Context, sess *session.Session, in UpdateProfileInput) (models.User, error) {
	if sess == nil {
		return models.User{}, models.NewUnauthorizedError("Authentication required")
	}
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		if err := validation.ValidateName(trimmed); err != nil {
			return models.User{}, models.NewValidationError(err.Error())
		}
		in.Name = &trimmed
	}
	if in.Bio != nil {
		if err := validation.ValidateBio(*in.Bio); err != nil {
			return models.User{}, models.NewValidationError(err.Error())
		}
	}

	var profilePic *string
	if in.ProfilePic != nil {
		item, err := s.media.Process(ctx, *in.ProfilePic, media.ProfilePicLimits)
		if err != nil {
			return models.User{}, err
		}
		profilePic = &item.URL
	}

	username := sess.Username()
	user, err := docstore.UpdateJSON(ctx, s.store, docstore.UserPath(username), func(u *models.User, found bool) error {
		if !found {
			return docstore.ErrNotFound
		}
		if in.Name != nil {
			u.Name = *in.Name
		}
		if in.Bio != nil {
			u.Bio = *in.Bio
		}
		if profilePic != nil {
			u.ProfilePic = *profilePic
		}
		return nil
	})
	if err != nil {
		return models.User{}, storeError(err, "User", username)
	}

	s.store.UpsertIndexBestEffort(ctx, docstore.CollectionUsers, user.Username, user.IndexRecord())
	bestEffort(ctx, "mirror_upsert_user", s.mirror.UpsertUser(ctx, user), map[string]any{"username": username})
	if err := s.sessions.Refresh(ctx, sess, user); err != nil {
		return models.User{}, err
	}
	return user.Public(), nil
}

// SetVerified grants or revokes the verified badge. Only verified users may post stories.
func (s *UserService) SetVerified(ctx context.Context, username string, verified bool) (models.User, error) {
	user, err := docstore.UpdateJSON(ctx, s.store, docstore.UserPath(username), func(u *models.User, found bool) error {
		if !found {
			return docstore.ErrNotFound
		}
		if u.Verified == verified {
			return docstore.ErrNoChange
		}
		u.Verified = verified
		return nil
	})
	if err != nil {
		return models.User{}, storeError(err, "User", username)
	}

	s.store.UpsertIndexBestEffort(ctx, docstore.CollectionUsers, user.Username, user.IndexRecord())
	bestEffort(ctx, "mirror_upsert_user", s.mirror.UpsertUser(ctx, user), map[string]any{"username": username})
	return user.Public(), nil
}

// ListUsers returns the users index, newest members first.
func (s *UserService) ListUsers(ctx context.Context) []models.UserIndex {
	return docstore.ReadCollection[models.UserIndex](ctx, s.store, docstore.CollectionUsers, docstore.SortLatest)
}

// Stats counts the viewer's cached posts. Followers and following come from
// the session snapshot.
func (s *UserService) Stats(ctx context.Context, sess *session.Session) (UserStats, error) {
	if sess == nil {
		return UserStats{}, models.NewUnauthorizedError("Authentication required")
	}
	posts, err := s.mirror.Posts(ctx)
	if err != nil {
		return UserStats{}, models.NewInternalError(err)
	}
	stats := UserStats{
		Followers: sess.User.Stats.Followers,
		Following: sess.User.Stats.Following,
	}
	for _, p := range posts {
		if p.Author.Username == sess.Username() {
			stats.Posts++
		}
	}
	return stats, nil
}
