package docstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"vortexx/internal/models"
	"vortexx/internal/observability"
)

// Collections stored in the repository.
const (
	CollectionUsers    = "users"
	CollectionPosts    = "posts"
	CollectionStories  = "stories"
	CollectionComments = "comments"
)

const indexFile = "index.json"

// Rankable is implemented by index records that can be ordered in a feed.
type Rankable interface {
	SortTimestamp() int64
	Score() int
}

// SortOrder selects how ReadCollection orders records.
type SortOrder string

const (
	// SortLatest orders by descending timestamp.
	SortLatest SortOrder = "latest"
	// SortPopular orders by descending likes plus comments; ties keep index order.
	SortPopular SortOrder = "popular"
)

// ParseSortOrder maps a query value to a SortOrder, defaulting to SortLatest.
func ParseSortOrder(v string) SortOrder {
	if SortOrder(v) == SortPopular {
		return SortPopular
	}
	return SortLatest
}

// Path helpers for every stored document.
func UserPath(username string) string   { return CollectionUsers + "/" + username + ".json" }
func PostPath(id string) string         { return CollectionPosts + "/" + id + ".json" }
func StoryPath(id string) string        { return CollectionStories + "/" + id + ".json" }
func CommentsPath(postID string) string { return CollectionComments + "/" + postID + ".json" }
func IndexPath(collection string) string {
	return collection + "/" + indexFile
}

// IndexKeyField names the field identifying a record in the collection index.
func IndexKeyField(collection string) string {
	if collection == CollectionUsers {
		return "username"
	}
	return "id"
}

// UpsertIndexRecord replaces the record whose key equals key with record and
// moves it to the front of the collection index. A missing index is treated
// as empty.
func (s *Store) UpsertIndexRecord(ctx context.Context, collection, key string, record any) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("docstore: encode index record: %w", err)
	}
	_, err = s.Update(ctx, IndexPath(collection), func(current []byte, found bool) ([]byte, error) {
		records, err := decodeIndex(current, found)
		if err != nil {
			return nil, err
		}
		records = dropKey(records, IndexKeyField(collection), key)
		return encode(append([]json.RawMessage{encoded}, records...))
	})
	return err
}

// UpsertIndexBestEffort runs UpsertIndexRecord and only logs a failure.
// Documents stay authoritative; RebuildIndex repairs a stale index.
func (s *Store) UpsertIndexBestEffort(ctx context.Context, collection, key string, record any) {
	if err := s.UpsertIndexRecord(ctx, collection, key, record); err != nil {
		observability.LogBestEffortFailure(ctx, "index_upsert", err, map[string]any{
			"collection": collection,
			"key":        key,
		})
	}
}

// RemoveIndexRecord drops the record whose key equals key from the collection index.
func (s *Store) RemoveIndexRecord(ctx context.Context, collection, key string) error {
	_, err := s.Update(ctx, IndexPath(collection), func(current []byte, found bool) ([]byte, error) {
		if !found {
			return nil, ErrNoChange
		}
		records, err := decodeIndex(current, found)
		if err != nil {
			return nil, err
		}
		kept := dropKey(records, IndexKeyField(collection), key)
		if len(kept) == len(records) {
			return nil, ErrNoChange
		}
		return encode(kept)
	})
	return err
}

// ReadCollection returns the collection index ordered by order. Any failure
// to fetch or decode the index yields an empty list.
func ReadCollection[T Rankable](ctx context.Context, s *Store, collection string, order SortOrder) []T {
	records, err := readIndex[T](ctx, s, collection)
	if err != nil {
		observability.GlobalLogger.WarnContext(ctx, "collection unavailable",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
		return []T{}
	}
	SortRecords(records, order)
	return records
}

// SortRecords orders records in place. Sorting is stable.
func SortRecords[T Rankable](records []T, order SortOrder) {
	if order == SortPopular {
		slices.SortStableFunc(records, func(a, b T) int {
			return cmp.Compare(b.Score(), a.Score())
		})
		return
	}
	slices.SortStableFunc(records, func(a, b T) int {
		return cmp.Compare(b.SortTimestamp(), a.SortTimestamp())
	})
}

// StoryFeed returns the stories created less than 24 hours before now,
// newest first.
func (s *Store) StoryFeed(ctx context.Context) []models.StoryIndex {
	records, err := readIndex[models.StoryIndex](ctx, s, CollectionStories)
	if err != nil {
		observability.GlobalLogger.WarnContext(ctx, "story feed unavailable", slog.String("error", err.Error()))
		return []models.StoryIndex{}
	}
	now := s.now()
	visible := make([]models.StoryIndex, 0, len(records))
	for _, r := range records {
		if models.StoryVisible(r.Timestamp, now) {
			visible = append(visible, r)
		}
	}
	SortRecords(visible, SortLatest)
	return visible
}

// UsernameExists reports whether users/{username}.json exists. The answer is
// advisory: a concurrent registration may still win the create.
func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, found, err := s.GetRevision(ctx, UserPath(username))
	return found, err
}

// readIndex prefers the raw file mirror when one is configured.
func readIndex[T any](ctx context.Context, s *Store, collection string) ([]T, error) {
	var (
		data []byte
		err  error
	)
	if s.cfg.RawURL != "" {
		data, err = s.fetchRaw(ctx, IndexPath(collection))
	} else {
		data, _, err = s.fetch(ctx, IndexPath(collection))
	}
	if err != nil {
		return nil, err
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s index: %w", collection, err)
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// fetchRaw reads p through the unauthenticated raw file mirror.
func (s *Store) fetchRaw(ctx context.Context, p string) (data []byte, err error) {
	ctx, done := s.begin(ctx, "raw_get", p)
	defer done(&err)

	u := fmt.Sprintf("%s%s/%s/%s/%s", withSlash(s.cfg.RawURL), s.cfg.Owner, s.cfg.Repo, s.cfg.Branch, p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.raw.Do(req)
	if err != nil {
		return nil, &UpstreamError{Op: "raw_get", Path: p, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Op: "raw_get", Path: p, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}
	return io.ReadAll(resp.Body)
}

func decodeIndex(current []byte, found bool) ([]json.RawMessage, error) {
	if !found || len(current) == 0 {
		return nil, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(current, &records); err != nil {
		return nil, fmt.Errorf("docstore: decode index: %w", err)
	}
	return records, nil
}

func dropKey(records []json.RawMessage, field, key string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		if recordKey(r, field) == key {
			continue
		}
		out = append(out, r)
	}
	return out
}

func recordKey(record json.RawMessage, field string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(record, &fields); err != nil {
		return ""
	}
	var key string
	if err := json.Unmarshal(fields[field], &key); err != nil {
		return ""
	}
	return key
}
