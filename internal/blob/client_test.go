package blob

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"vortexx/internal/media"
	"vortexx/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload_SendsMultipartAndReturnsURL(t *testing.T) {
	t.Parallel()

	host := testutil.NewBlobHost(t)
	c := New(host.URL(), WithUserhash("abc123"))

	png := testutil.TinyPNG(t, 2, 2)
	url, err := c.Upload(context.Background(), png, "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.test/1.png", url)

	uploads := host.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "fileupload", uploads[0].ReqType)
	assert.Equal(t, "abc123", uploads[0].Userhash)
	assert.Equal(t, "file.png", uploads[0].Filename)
	assert.Equal(t, png, uploads[0].Data)
}

func TestUpload_UnknownContentFallsBackToBin(t *testing.T) {
	t.Parallel()

	host := testutil.NewBlobHost(t)
	c := New(host.URL())

	_, err := c.Upload(context.Background(), []byte{0x00, 0x01, 0x02}, "")
	require.NoError(t, err)
	assert.Equal(t, "file.bin", host.Uploads()[0].Filename)
}

func TestUpload_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"error text with 200", http.StatusOK, "File too large"},
		{"plain http url", http.StatusOK, "http://files.example.test/1.png"},
		{"server error", http.StatusInternalServerError, "https://files.example.test/1.png"},
		{"empty body", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := testutil.NewBlobHost(t)
			host.Respond(tt.status, tt.body)
			c := New(host.URL())

			_, err := c.Upload(context.Background(), testutil.TinyPNG(t, 1, 1), "image/png")
			require.Error(t, err)

			var uploadErr *UploadError
			require.True(t, errors.As(err, &uploadErr))
			assert.Equal(t, tt.status, uploadErr.Status)
			assert.Equal(t, tt.body, uploadErr.Body)
			assert.Len(t, host.Uploads(), 1, "uploads are never retried")
		})
	}
}

func TestUploadMultiple_StopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	host := testutil.NewBlobHost(t)
	c := New(host.URL())
	png := testutil.TinyPNG(t, 1, 1)

	items, err := c.UploadMultiple(context.Background(), []media.File{
		{ContentType: "image/png", Data: png},
		{ContentType: "image/png", Data: png},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "image/png", items[1].Type)
	assert.Equal(t, int64(len(png)), items[1].Size)

	host.Respond(http.StatusOK, "Internal error")
	_, err = c.UploadMultiple(context.Background(), []media.File{
		{ContentType: "image/png", Data: png},
		{ContentType: "image/png", Data: png},
	})
	require.Error(t, err)
	assert.Len(t, host.Uploads(), 3)
}
