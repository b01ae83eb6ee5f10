// Package blob uploads media to an anonymous file host and returns the public URL.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"vortexx/internal/media"
	"vortexx/internal/models"
	"vortexx/internal/observability"
	"vortexx/internal/validation"
)

const (
	DefaultEndpoint  = "https://catbox.moe/user/api.php"
	DefaultFileField = "fileToUpload"

	// responses are a single URL; anything larger is an error page
	maxResponseBytes = 64 << 10
)

// UploadError is returned when the host answers with anything but a public https URL.
type UploadError struct {
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("blob upload failed (status %d): %s", e.Status, e.Body)
}

// Option configures a Client during construction in New.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds a single upload.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserhash attaches uploads to an account on the host.
func WithUserhash(hash string) Option {
	return func(c *Client) { c.userhash = hash }
}

// WithFileField overrides the multipart field carrying the file.
func WithFileField(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.fileField = name
		}
	}
}

// Client talks to the blob host. It never retries.
type Client struct {
	endpoint  string
	userhash  string
	fileField string
	http      *http.Client
}

// New constructs a Client for endpoint.
func New(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:  endpoint,
		fileField: DefaultFileField,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload sends data to the blob host and returns its public URL. The file
// extension is chosen from the sniffed content type; mimeHint is used only
// when sniffing fails.
func (c *Client) Upload(ctx context.Context, data []byte, mimeHint string) (string, error) {
	contentType := media.SniffType(data, mimeHint)
	filename := "file." + media.Extension(contentType)

	body, formType, err := c.buildForm(data, filename, contentType)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", formType)

	resp, err := c.http.Do(req)
	if err != nil {
		observability.BlobUploads.WithLabelValues("transport_error").Inc()
		return "", fmt.Errorf("blob upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		observability.BlobUploads.WithLabelValues("transport_error").Inc()
		return "", fmt.Errorf("read upload response: %w", err)
	}
	text := strings.TrimSpace(string(raw))

	if resp.StatusCode < 200 || resp.StatusCode > 299 || validation.ValidateHTTPSURL(text) != nil {
		observability.BlobUploads.WithLabelValues("rejected").Inc()
		observability.GlobalLogger.WarnContext(ctx, "blob host rejected upload",
			slog.Int("status", resp.StatusCode),
			slog.String("body", text),
			slog.String("content_type", contentType),
		)
		return "", &UploadError{Status: resp.StatusCode, Body: text}
	}

	observability.BlobUploads.WithLabelValues("ok").Inc()
	observability.BlobUploadBytes.Observe(float64(len(data)))
	return text, nil
}

// UploadMultiple uploads files in order and stops at the first failure.
func (c *Client) UploadMultiple(ctx context.Context, files []media.File) ([]models.MediaItem, error) {
	out := make([]models.MediaItem, 0, len(files))
	for _, f := range files {
		url, err := c.Upload(ctx, f.Data, f.Type())
		if err != nil {
			return nil, err
		}
		out = append(out, models.MediaItem{URL: url, Type: f.Type(), Size: f.Size()})
	}
	return out, nil
}

func (c *Client) buildForm(data []byte, filename, contentType string) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if err := w.WriteField("reqtype", "fileupload"); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("userhash", c.userhash); err != nil {
		return nil, "", err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, c.fileField, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
