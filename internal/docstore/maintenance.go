package docstore

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"vortexx/internal/models"
	"vortexx/internal/observability"
)

// Projection turns one stored document into its index record and the
// timestamp used to order the rebuilt index.
type Projection func(doc []byte) (record any, timestamp int64, err error)

// RebuildIndex recomputes the collection index from the documents in the
// collection directory, most recent first. Running it twice without
// intervening writes performs no second commit. It returns the record count.
func (s *Store) RebuildIndex(ctx context.Context, collection string, project Projection) (int, error) {
	paths, err := s.ListDocuments(ctx, collection)
	if err != nil {
		return 0, err
	}

	type entry struct {
		record any
		ts     int64
		path   string
	}
	entries := make([]entry, 0, len(paths))
	for _, p := range paths {
		raw, _, err := s.fetch(ctx, p)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		record, ts, err := project(raw)
		if err != nil {
			observability.GlobalLogger.WarnContext(ctx, "skipping undecodable document",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
			continue
		}
		entries = append(entries, entry{record: record, ts: ts, path: p})
	}
	slices.SortStableFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(b.ts, a.ts); c != 0 {
			return c
		}
		return cmp.Compare(a.path, b.path)
	})

	records := make([]any, len(entries))
	for i, e := range entries {
		records[i] = e.record
	}
	next, err := encode(records)
	if err != nil {
		return 0, err
	}

	_, err = s.Update(ctx, IndexPath(collection), func(current []byte, found bool) ([]byte, error) {
		if found && bytes.Equal(current, next) {
			return nil, ErrNoChange
		}
		return next, nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// ProjectionFor returns the index projection for one of the indexed collections.
func ProjectionFor(collection string) (Projection, error) {
	switch collection {
	case CollectionUsers:
		return func(doc []byte) (any, int64, error) {
			var u models.User
			if err := json.Unmarshal(doc, &u); err != nil {
				return nil, 0, err
			}
			record := u.IndexRecord()
			return record, record.SortTimestamp(), nil
		}, nil
	case CollectionPosts:
		return func(doc []byte) (any, int64, error) {
			var p models.Post
			if err := json.Unmarshal(doc, &p); err != nil {
				return nil, 0, err
			}
			return p.IndexRecord(), p.Timestamp, nil
		}, nil
	case CollectionStories:
		return func(doc []byte) (any, int64, error) {
			var st models.Story
			if err := json.Unmarshal(doc, &st); err != nil {
				return nil, 0, err
			}
			return st.IndexRecord(), st.Timestamp, nil
		}, nil
	}
	return nil, fmt.Errorf("docstore: collection %q has no index", collection)
}

// CompactStories deletes every story document older than 24 hours at now
// and drops expired entries from the stories index. It returns the number of
// documents removed.
func (s *Store) CompactStories(ctx context.Context, now time.Time) (int, error) {
	paths, err := s.ListDocuments(ctx, CollectionStories)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range paths {
		var st models.Story
		if _, err := s.ReadDocument(ctx, p, &st); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return removed, err
		}
		if !st.Expired(now) {
			continue
		}
		if err := s.DeleteDocument(ctx, p); err != nil {
			return removed, err
		}
		removed++
	}

	_, err = s.Update(ctx, IndexPath(CollectionStories), func(current []byte, found bool) ([]byte, error) {
		if !found {
			return nil, ErrNoChange
		}
		var records []models.StoryIndex
		if err := json.Unmarshal(current, &records); err != nil {
			return nil, fmt.Errorf("docstore: decode stories index: %w", err)
		}
		kept := slices.DeleteFunc(slices.Clone(records), func(r models.StoryIndex) bool {
			return !models.StoryVisible(r.Timestamp, now)
		})
		if len(kept) == len(records) {
			return nil, ErrNoChange
		}
		return encode(kept)
	})
	if err != nil {
		return removed, err
	}

	observability.CompactedStories.Add(float64(removed))
	return removed, nil
}

var folderReadmes = map[string]string{
	CollectionUsers:    "# Users\n\nOne JSON document per account, named after the username.\n",
	CollectionPosts:    "# Posts\n\nOne JSON document per post.\n",
	CollectionStories:  "# Stories\n\nOne JSON document per story. Stories expire after 24 hours.\n",
	CollectionComments: "# Comments\n\nOne JSON list of comments per post, named after the post id.\n",
}

// InitStructure creates the collection folders with a README each and an
// empty index for users, posts and stories. Existing files are left alone.
func (s *Store) InitStructure(ctx context.Context) error {
	for _, collection := range []string{CollectionUsers, CollectionPosts, CollectionStories, CollectionComments} {
		if err := s.createIfMissing(ctx, collection+"/README.md", []byte(folderReadmes[collection])); err != nil {
			return err
		}
		if collection == CollectionComments {
			continue
		}
		if err := s.createIfMissing(ctx, IndexPath(collection), []byte("[]")); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createIfMissing(ctx context.Context, p string, content []byte) error {
	_, found, err := s.GetRevision(ctx, p)
	if err != nil || found {
		return err
	}
	_, err = s.put(ctx, p, content, "")
	if IsConflict(err) {
		return nil
	}
	return err
}
