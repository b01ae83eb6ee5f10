package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"vortexx/internal/docstore"
	"vortexx/internal/featureflags"
	"vortexx/internal/format"
	"vortexx/internal/media"
	"vortexx/internal/mirror"
	"vortexx/internal/models"
	"vortexx/internal/observability"
	"vortexx/internal/session"
	"vortexx/internal/validation"

	"github.com/google/uuid"
)

type StoryService struct {
	store  *docstore.Store
	mirror *mirror.Mirror
	media  *MediaPipeline
	flags  *featureflags.Manager
	limits media.Limits

	compactorOnce sync.Once
}

type CreateStoryInput struct {
	Caption string
	Media   *media.File
}

// StoryView is a story as shown to the viewer who opened it.
type StoryView struct {
	models.Story
	TimeLeft  string `json:"timeLeft"`
	Countdown string `json:"countdown"`
	Posted    string `json:"posted"`
	ViewsText string `json:"viewsText"`
	LikesText string `json:"likesText"`
}

func NewStoryService(store *docstore.Store, m *mirror.Mirror, pipeline *MediaPipeline, flags *featureflags.Manager, limits media.Limits) *StoryService {
	return &StoryService{store: store, mirror: m, media: pipeline, flags: flags, limits: limits}
}

// CreateStory publishes a 24 hour story. Only verified users may post stories.
func (s *StoryService) CreateStory(ctx context.Context, sess *session.Session, in CreateStoryInput) (models.Story, error) {
	if sess == nil {
		return models.Story{}, models.NewUnauthorizedError("Authentication required")
	}
	if !s.flags.Enabled(featureflags.Stories, sess.Username()) {
		return models.Story{}, models.NewForbiddenError("Stories are not available")
	}
	if err := validation.ValidateCaption(in.Caption); err != nil {
		return models.Story{}, models.NewValidationError(err.Error())
	}
	if in.Media == nil {
		return models.Story{}, models.NewValidationError("Please select an image or video for your story")
	}
	if err := media.Validate(*in.Media, s.limits); err != nil {
		return models.Story{}, err
	}
	if kind := mediaKind(in.Media.Type()); kind == "" {
		return models.Story{}, models.NewValidationError("Stories must be an image or a video")
	}

	// the verified badge is read from the document, not the session snapshot
	var author models.User
	if _, err := s.store.ReadDocument(ctx, docstore.UserPath(sess.Username()), &author); err != nil {
		return models.Story{}, storeError(err, "User", sess.Username())
	}
	if !author.Verified {
		return models.Story{}, models.NewUnauthorizedError("Only verified users can post stories")
	}

	item, err := s.media.Process(ctx, *in.Media, s.limits)
	if err != nil {
		return models.Story{}, err
	}

	story := models.Story{
		ID:        uuid.NewString(),
		Author:    author.Author(),
		Media:     item,
		Caption:   strings.TrimSpace(in.Caption),
		Timestamp: s.store.Now().UnixMilli(),
		Views:     []string{},
		LikedBy:   []string{},
	}
	if _, err := s.store.PutDocument(ctx, docstore.StoryPath(story.ID), story, ""); err != nil {
		return models.Story{}, storeError(err, "Story", story.ID)
	}

	s.store.UpsertIndexBestEffort(ctx, docstore.CollectionStories, story.ID, story.IndexRecord())
	bestEffort(ctx, "mirror_upsert_story", s.mirror.UpsertStory(ctx, story), map[string]any{"story_id": story.ID})
	return story, nil
}

// Feed returns the visible stories, newest first. When the store yields
// nothing the mirror's unexpired stories are used instead.
func (s *StoryService) Feed(ctx context.Context) []models.StoryIndex {
	if feed := s.store.StoryFeed(ctx); len(feed) > 0 {
		return feed
	}

	cached, err := s.mirror.Stories(ctx)
	if err != nil {
		bestEffort(ctx, "mirror_read_stories", err, nil)
		return []models.StoryIndex{}
	}
	now := s.store.Now()
	feed := make([]models.StoryIndex, 0, len(cached))
	for _, st := range cached {
		if !st.Expired(now) {
			feed = append(feed, st.IndexRecord())
		}
	}
	docstore.SortRecords(feed, docstore.SortLatest)
	return feed
}

// ViewStory records the viewer in the story's views and returns it with the
// time it has left.
func (s *StoryService) ViewStory(ctx context.Context, sess *session.Session, id string) (StoryView, error) {
	if sess == nil {
		return StoryView{}, models.NewUnauthorizedError("Authentication required")
	}
	now := s.store.Now()
	username := sess.Username()
	story, err := docstore.UpdateJSON(ctx, s.store, docstore.StoryPath(id), func(st *models.Story, found bool) error {
		if !found || st.Expired(now) {
			return docstore.ErrNotFound
		}
		if !st.AddView(username) {
			return docstore.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return StoryView{}, storeError(err, "Story", id)
	}

	_, mErr := s.mirror.UpdateStory(ctx, id, func(st *models.Story) { st.Views = story.Views })
	bestEffort(ctx, "mirror_update_story", mErr, map[string]any{"story_id": id})
	return StoryView{
		Story:     story.ForViewer(username),
		TimeLeft:  format.StoryTimeLeft(story.Timestamp, now),
		Countdown: format.StoryCountdown(story.Timestamp, now),
		Posted:    format.TimeAgo(story.Timestamp, now),
		ViewsText: format.Number(len(story.Views)),
		LikesText: format.Number(story.Likes),
	}, nil
}

// ToggleLike likes or unlikes a visible story for the viewer.
func (s *StoryService) ToggleLike(ctx context.Context, sess *session.Session, id string) (models.Story, error) {
	if sess == nil {
		return models.Story{}, models.NewUnauthorizedError("Authentication required")
	}
	now := s.store.Now()
	username := sess.Username()
	story, err := docstore.UpdateJSON(ctx, s.store, docstore.StoryPath(id), func(st *models.Story, found bool) error {
		if !found || st.Expired(now) {
			return docstore.ErrNotFound
		}
		st.ToggleLike(username)
		st.Liked = false
		return nil
	})
	if err != nil {
		return models.Story{}, storeError(err, "Story", id)
	}

	_, mErr := s.mirror.UpdateStory(ctx, id, func(st *models.Story) {
		st.LikedBy, st.Likes = story.LikedBy, story.Likes
	})
	bestEffort(ctx, "mirror_update_story", mErr, map[string]any{"story_id": id})
	return story.ForViewer(username), nil
}

// CompactOnce purges expired stories from the store and the mirror, and
// sweeps expired session records the mirror store keeps around.
func (s *StoryService) CompactOnce(ctx context.Context) (int, error) {
	now := s.store.Now()
	removed, err := s.store.CompactStories(ctx, now)
	if _, mErr := s.mirror.PruneStories(ctx, now); mErr != nil {
		err = errors.Join(err, mErr)
	}
	if _, sErr := s.mirror.PruneSessions(ctx, time.Now()); sErr != nil {
		err = errors.Join(err, sErr)
	}
	return removed, err
}

// StartCompactor runs CompactOnce every interval until ctx is cancelled.
// Only the first call starts a worker.
func (s *StoryService) StartCompactor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.compactorOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.compact(ctx)
				}
			}
		}()
	})
}

func (s *StoryService) compact(ctx context.Context) {
	const op = "story_compaction"
	observability.LogAsyncOperationStart(ctx, op, nil)
	removed, err := s.CompactOnce(ctx)
	if err != nil {
		observability.LogAsyncOperationError(ctx, op, err, map[string]any{"removed": removed})
		return
	}
	observability.LogAsyncOperationEnd(ctx, op, map[string]any{"removed": removed})
}
