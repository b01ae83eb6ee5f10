// Package service implements the community features on top of the document
// store, the blob host and the local mirror.
package service

import (
	"context"
	"errors"

	"vortexx/internal/docstore"
	"vortexx/internal/media"
	"vortexx/internal/models"
	"vortexx/internal/observability"

	"golang.org/x/crypto/bcrypt"
)

// passwordCost is lowered in tests.
var passwordCost = bcrypt.DefaultCost

// Uploader stores a blob and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeHint string) (string, error)
}

// BatchUploader stores several files in one call, stopping at the first failure.
type BatchUploader interface {
	UploadMultiple(ctx context.Context, files []media.File) ([]models.MediaItem, error)
}

// MediaPipeline validates, normalizes and uploads one user file.
type MediaPipeline struct {
	uploader Uploader
	images   *media.Processor
}

// NewMediaPipeline builds a pipeline. images may be nil to upload files as received.
func NewMediaPipeline(u Uploader, images *media.Processor) *MediaPipeline {
	return &MediaPipeline{uploader: u, images: images}
}

// Process runs f through validation, normalization and upload.
func (p *MediaPipeline) Process(ctx context.Context, f media.File, limits media.Limits) (models.MediaItem, error) {
	items, err := p.ProcessAll(ctx, []media.File{f}, limits)
	if err != nil {
		return models.MediaItem{}, err
	}
	return items[0], nil
}

// ProcessAll validates and normalizes every file before uploading any of
// them. The result is never nil.
func (p *MediaPipeline) ProcessAll(ctx context.Context, files []media.File, limits media.Limits) ([]models.MediaItem, error) {
	prepared := make([]media.File, 0, len(files))
	for _, f := range files {
		if err := media.Validate(f, limits); err != nil {
			return nil, err
		}
		if p.images != nil {
			normalized, err := p.images.Normalize(f)
			if err != nil {
				return nil, err
			}
			f = normalized
		}
		prepared = append(prepared, f)
	}

	items, err := p.upload(ctx, prepared)
	if err != nil {
		return nil, models.NewUpstreamError("Failed to upload media", err)
	}
	for i := range items {
		if media.IsVideo(items[i].Type) {
			items[i].Thumbnail = media.ThumbnailURL(items[i].URL)
		}
	}
	return items, nil
}

func (p *MediaPipeline) upload(ctx context.Context, files []media.File) ([]models.MediaItem, error) {
	if batch, ok := p.uploader.(BatchUploader); ok && len(files) > 1 {
		return batch.UploadMultiple(ctx, files)
	}
	items := make([]models.MediaItem, 0, len(files))
	for _, f := range files {
		url, err := p.uploader.Upload(ctx, f.Data, f.Type())
		if err != nil {
			return nil, err
		}
		items = append(items, models.MediaItem{URL: url, Type: f.Type(), Size: f.Size()})
	}
	return items, nil
}

// storeError maps a document store failure onto the API error categories.
func storeError(err error, resource string, id any) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return models.NewNotFoundError(resource, id)
	case docstore.IsConflict(err):
		return models.NewConflictError(resource + " was modified concurrently, please retry")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return models.NewUpstreamError("Document store unavailable", err)
}

// unreachable reports whether err means the store could not answer, as
// opposed to answering "not found".
func unreachable(err error) bool {
	return err != nil && !errors.Is(err, docstore.ErrNotFound)
}

// bestEffort logs a failed secondary write without failing the request.
func bestEffort(ctx context.Context, op string, err error, fields map[string]any) {
	if err != nil {
		observability.LogBestEffortFailure(ctx, op, err, fields)
	}
}

// adjustPostCount changes the author's stats.posts by delta, never below zero.
func adjustPostCount(ctx context.Context, store *docstore.Store, username string, delta int) error {
	_, err := docstore.UpdateJSON(ctx, store, docstore.UserPath(username), func(u *models.User, found bool) error {
		if !found {
			return docstore.ErrNoChange
		}
		u.Stats.Posts = max(u.Stats.Posts+delta, 0)
		return nil
	})
	return err
}
