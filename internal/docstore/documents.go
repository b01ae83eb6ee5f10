package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"vortexx/internal/observability"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/github"
)

// MutateFunc computes the next content of a document from its current bytes.
// It is called again with fresh content after every conflict, so it must be
// a pure function of its input.
type MutateFunc func(current []byte, found bool) ([]byte, error)

// GetRevision returns the current revision of p. A missing document is
// reported with found=false and no error.
func (s *Store) GetRevision(ctx context.Context, p string) (rev string, found bool, err error) {
	ctx, done := s.begin(ctx, "get_revision", p)
	defer func() {
		if errors.Is(err, ErrNotFound) {
			err = nil
		}
		done(&err)
	}()

	_, rev, err = s.fetch(ctx, p)
	if err != nil {
		return "", false, err
	}
	return rev, true, nil
}

// ReadDocument decodes the JSON document at p into dest and returns its revision.
func (s *Store) ReadDocument(ctx context.Context, p string, dest any) (rev string, err error) {
	ctx, done := s.begin(ctx, "read", p)
	defer done(&err)

	content, rev, err := s.fetch(ctx, p)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(content, dest); err != nil {
		return "", &UpstreamError{Op: "read", Path: p, Err: fmt.Errorf("decode: %w", err)}
	}
	return rev, nil
}

// PutDocument writes doc at p if and only if the stored revision equals
// expectedRev. An empty expectedRev asserts that p does not exist yet.
// It returns the new revision or a *ConflictError.
func (s *Store) PutDocument(ctx context.Context, p string, doc any, expectedRev string) (rev string, err error) {
	ctx, done := s.begin(ctx, "put", p)
	defer done(&err)

	content, err := encode(doc)
	if err != nil {
		return "", err
	}
	return s.put(ctx, p, content, expectedRev)
}

// WriteDocument overwrites p with doc, taking the current revision as the
// precondition and retrying on conflict.
func (s *Store) WriteDocument(ctx context.Context, p string, doc any) (string, error) {
	content, err := encode(doc)
	if err != nil {
		return "", err
	}
	return s.Update(ctx, p, func([]byte, bool) ([]byte, error) {
		return content, nil
	})
}

// Update runs a read-modify-write cycle on p. On a revision conflict the
// document is read again and mutate re-applied, up to the configured number
// of retries.
func (s *Store) Update(ctx context.Context, p string, mutate MutateFunc) (rev string, err error) {
	ctx, done := s.begin(ctx, "update", p)
	defer done(&err)

	attempt := 0
	op := func() error {
		attempt++
		current, currentRev, fetchErr := s.fetch(ctx, p)
		found := fetchErr == nil
		if fetchErr != nil && !errors.Is(fetchErr, ErrNotFound) {
			return backoff.Permanent(fetchErr)
		}

		next, mutateErr := mutate(current, found)
		if errors.Is(mutateErr, ErrNoChange) {
			rev = currentRev
			return nil
		}
		if mutateErr != nil {
			return backoff.Permanent(mutateErr)
		}

		newRev, putErr := s.put(ctx, p, next, currentRev)
		if IsConflict(putErr) {
			observability.StoreConflicts.WithLabelValues(collectionOf(p)).Inc()
			s.log.LogConflict(ctx, p, attempt)
			return putErr
		}
		if putErr != nil {
			return backoff.Permanent(putErr)
		}
		rev = newRev
		s.log.LogWrite(ctx, p, newRev, attempt)
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.cfg.MaxRetries)), ctx)
	err = backoff.RetryNotify(op, policy, func(error, time.Duration) {
		observability.StoreRetries.WithLabelValues(collectionOf(p)).Inc()
	})
	if err != nil {
		return "", err
	}
	return rev, nil
}

// UpdateJSON is Update for a typed document. mutate receives a freshly decoded
// copy on every attempt; a missing document starts from the zero value.
func UpdateJSON[T any](ctx context.Context, s *Store, p string, mutate func(doc *T, found bool) error) (T, error) {
	var result T
	_, err := s.Update(ctx, p, func(current []byte, found bool) ([]byte, error) {
		var doc T
		if found {
			if err := json.Unmarshal(current, &doc); err != nil {
				return nil, &UpstreamError{Op: "update", Path: p, Err: fmt.Errorf("decode: %w", err)}
			}
		}
		if err := mutate(&doc, found); err != nil {
			if errors.Is(err, ErrNoChange) {
				result = doc
			}
			return nil, err
		}
		result = doc
		return encode(doc)
	})
	if errors.Is(err, ErrNoChange) {
		err = nil
	}
	return result, err
}

// DeleteDocument removes p. Deleting a missing document is a no-op.
func (s *Store) DeleteDocument(ctx context.Context, p string) (err error) {
	ctx, done := s.begin(ctx, "delete", p)
	defer done(&err)

	op := func() error {
		_, currentRev, fetchErr := s.fetch(ctx, p)
		if errors.Is(fetchErr, ErrNotFound) {
			return nil
		}
		if fetchErr != nil {
			return backoff.Permanent(fetchErr)
		}

		_, resp, delErr := s.gh.Repositories.DeleteFile(ctx, s.cfg.Owner, s.cfg.Repo, p, &github.RepositoryContentFileOptions{
			Message: github.String("Delete " + p),
			SHA:     github.String(currentRev),
			Branch:  github.String(s.cfg.Branch),
		})
		delErr = s.classify("delete", p, resp, delErr)
		switch {
		case delErr == nil, errors.Is(delErr, ErrNotFound):
			s.log.LogDelete(ctx, p)
			return nil
		case IsConflict(delErr):
			observability.StoreConflicts.WithLabelValues(collectionOf(p)).Inc()
			return delErr
		default:
			return backoff.Permanent(delErr)
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.cfg.MaxRetries)), ctx)
	return backoff.Retry(op, policy)
}

// ListDocuments returns the paths of the JSON documents directly under dir,
// excluding the collection index. A missing directory yields an empty list.
func (s *Store) ListDocuments(ctx context.Context, dir string) (paths []string, err error) {
	ctx, done := s.begin(ctx, "list", dir)
	defer func() {
		if errors.Is(err, ErrNotFound) {
			paths, err = nil, nil
		}
		done(&err)
	}()

	file, entries, resp, err := s.gh.Repositories.GetContents(ctx, s.cfg.Owner, s.cfg.Repo, dir, &github.RepositoryContentGetOptions{Ref: s.cfg.Branch})
	if err = s.classify("list", dir, resp, err); err != nil {
		return nil, err
	}
	if file != nil {
		return nil, &UpstreamError{Op: "list", Path: dir, Err: errors.New("path is a file")}
	}
	for _, e := range entries {
		name := e.GetName()
		if e.GetType() != "file" || !strings.HasSuffix(name, ".json") || name == indexFile {
			continue
		}
		paths = append(paths, path.Join(dir, name))
	}
	return paths, nil
}

// fetch reads the raw bytes and revision of p through the contents API.
func (s *Store) fetch(ctx context.Context, p string) ([]byte, string, error) {
	file, _, resp, err := s.gh.Repositories.GetContents(ctx, s.cfg.Owner, s.cfg.Repo, p, &github.RepositoryContentGetOptions{Ref: s.cfg.Branch})
	if err = s.classify("get", p, resp, err); err != nil {
		return nil, "", err
	}
	if file == nil {
		return nil, "", &UpstreamError{Op: "get", Path: p, Err: errors.New("path is a directory")}
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, "", &UpstreamError{Op: "get", Path: p, Err: fmt.Errorf("decode content: %w", err)}
	}
	return []byte(content), file.GetSHA(), nil
}

// put performs one conditional write.
func (s *Store) put(ctx context.Context, p string, content []byte, expectedRev string) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Content: content,
		Branch:  github.String(s.cfg.Branch),
	}

	var (
		res  *github.RepositoryContentResponse
		resp *github.Response
		err  error
	)
	if expectedRev == "" {
		opts.Message = github.String("Create " + p)
		res, resp, err = s.gh.Repositories.CreateFile(ctx, s.cfg.Owner, s.cfg.Repo, p, opts)
		// creating over an existing file is rejected as unprocessable
		if err != nil && statusOf(resp) == http.StatusUnprocessableEntity {
			return "", &ConflictError{Path: p}
		}
	} else {
		opts.Message = github.String("Update " + p)
		opts.SHA = github.String(expectedRev)
		res, resp, err = s.gh.Repositories.UpdateFile(ctx, s.cfg.Owner, s.cfg.Repo, p, opts)
	}
	if err = s.classify("put", p, resp, err); err != nil {
		return "", err
	}
	if res == nil || res.Content == nil {
		return "", &UpstreamError{Op: "put", Path: p, Status: statusOf(resp), Err: errors.New("response without content")}
	}
	return res.Content.GetSHA(), nil
}

func encode(doc any) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("docstore: encode document: %w", err)
	}
	return data, nil
}

func collectionOf(p string) string {
	if i := strings.IndexByte(p, '/'); i > 0 {
		return p[:i]
	}
	return p
}
