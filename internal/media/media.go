// Package media validates, sniffs and normalizes user uploads before they are
// sent to the blob host.
package media

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"vortexx/internal/format"
	"vortexx/internal/models"
)

const (
	// DefaultMaxSizeBytes caps post and story media.
	DefaultMaxSizeBytes = 10 << 20
	// ProfilePicMaxSizeBytes caps profile pictures.
	ProfilePicMaxSizeBytes = 5 << 20
)

// File is an upload held in memory.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the payload length in bytes.
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// Type returns the declared content type, falling back to the sniffed one.
func (f File) Type() string {
	if declared := NormalizeContentType(f.ContentType); declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return SniffType(f.Data, "")
}

// Limits bounds what Validate accepts. An AllowedTypes entry ending in "/*"
// matches the whole family.
type Limits struct {
	MaxSizeBytes int64
	AllowedTypes []string
}

// DefaultLimits apply to post and story media.
var DefaultLimits = Limits{
	MaxSizeBytes: DefaultMaxSizeBytes,
	AllowedTypes: []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
		"video/mp4",
		"video/webm",
		"audio/mpeg",
	},
}

// ProfilePicLimits apply to avatars.
var ProfilePicLimits = Limits{
	MaxSizeBytes: ProfilePicMaxSizeBytes,
	AllowedTypes: []string{"image/*"},
}

// WithMaxSize returns a copy of l with a different size cap.
func (l Limits) WithMaxSize(n int64) Limits {
	l.MaxSizeBytes = n
	return l
}

// Allows reports whether contentType is accepted.
func (l Limits) Allows(contentType string) bool {
	ct := NormalizeContentType(contentType)
	if ct == "" {
		return false
	}
	for _, allowed := range l.AllowedTypes {
		if family, ok := strings.CutSuffix(allowed, "/*"); ok {
			if strings.HasPrefix(ct, family+"/") {
				return true
			}
			continue
		}
		if allowed == ct {
			return true
		}
	}
	return false
}

// Validate rejects empty, oversized or disallowed files with a descriptive validation error.
func Validate(f File, l Limits) error {
	if len(f.Data) == 0 {
		return models.NewValidationError("No file uploaded")
	}
	if l.MaxSizeBytes > 0 && f.Size() > l.MaxSizeBytes {
		return models.NewValidationError("File size must be less than " + format.FileSize(l.MaxSizeBytes))
	}
	if !l.Allows(f.Type()) {
		return models.NewValidationError(fmt.Sprintf("File type %s is not supported", displayType(f.Type())))
	}
	return nil
}

func displayType(ct string) string {
	if ct == "" {
		return "unknown"
	}
	return ct
}

// IsImage reports whether contentType is an image type.
func IsImage(contentType string) bool {
	return strings.HasPrefix(NormalizeContentType(contentType), "image/")
}

// IsVideo reports whether contentType is a video type.
func IsVideo(contentType string) bool {
	return strings.HasPrefix(NormalizeContentType(contentType), "video/")
}

// NormalizeContentType strips parameters and lowercases a content type.
func NormalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "image/jpg" {
		return "image/jpeg"
	}
	return mediaType
}

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/bmp":  "bmp",
	"video/mp4":  "mp4",
	"video/webm": "webm",
	"video/avi":  "avi",
	"audio/mpeg": "mp3",
	"audio/wave": "wav",
	"audio/ogg":  "ogg",
}

// SniffType detects the content type from the payload. The hint is used only
// when the payload is not recognized.
func SniffType(data []byte, hint string) string {
	detected := NormalizeContentType(http.DetectContentType(data))
	if detected == "application/octet-stream" || strings.HasPrefix(detected, "text/plain") {
		if h := NormalizeContentType(hint); h != "" {
			return h
		}
	}
	return detected
}

// Extension returns the file extension for a content type, or "bin".
func Extension(contentType string) string {
	if ext, ok := extensions[NormalizeContentType(contentType)]; ok {
		return ext
	}
	return "bin"
}

// ThumbnailURL maps a video URL to its poster image sibling; other URLs are returned as is.
func ThumbnailURL(mediaURL string) string {
	ext := strings.ToLower(filepath.Ext(mediaURL))
	if slices.Contains([]string{".mp4", ".webm", ".avi"}, ext) {
		return strings.TrimSuffix(mediaURL, filepath.Ext(mediaURL)) + ".jpg"
	}
	return mediaURL
}

// FromMultipart reads a multipart upload fully into memory.
func FromMultipart(fh *multipart.FileHeader) (File, error) {
	src, err := fh.Open()
	if err != nil {
		return File{}, err
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(src)
	if err != nil {
		return File{}, err
	}
	return File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
