package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"
)

// BlobUpload is one multipart request received by BlobHost.
type BlobUpload struct {
	ReqType  string
	Userhash string
	Filename string
	Data     []byte
}

// BlobHost is a fake anonymous upload endpoint. By default it accepts
// reqtype=fileupload requests and answers with a public https URL.
type BlobHost struct {
	Server *httptest.Server

	mu        sync.Mutex
	uploads   []BlobUpload
	status    int
	body      string
	fileField string
}

// NewBlobHost starts a fake blob host that is closed with the test.
func NewBlobHost(t testing.TB) *BlobHost {
	t.Helper()
	h := &BlobHost{fileField: "fileToUpload"}
	h.Server = httptest.NewServer(http.HandlerFunc(h.handle))
	t.Cleanup(h.Server.Close)
	return h
}

// URL is the upload endpoint.
func (h *BlobHost) URL() string { return h.Server.URL + "/user/api.php" }

// Respond forces every following upload to be answered with status and body.
func (h *BlobHost) Respond(status int, body string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
	h.body = body
}

// Uploads returns the requests received so far.
func (h *BlobHost) Uploads() []BlobUpload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]BlobUpload(nil), h.uploads...)
}

func (h *BlobHost) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "bad multipart body", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	upload := BlobUpload{
		ReqType:  r.FormValue("reqtype"),
		Userhash: r.FormValue("userhash"),
	}
	if file, header, err := r.FormFile(h.fileField); err == nil {
		upload.Filename = header.Filename
		upload.Data, _ = io.ReadAll(file)
		_ = file.Close()
	}
	h.uploads = append(h.uploads, upload)

	if h.status != 0 {
		w.WriteHeader(h.status)
		_, _ = io.WriteString(w, h.body)
		return
	}
	if upload.ReqType != "fileupload" || upload.Filename == "" {
		w.WriteHeader(http.StatusPreconditionFailed)
		_, _ = io.WriteString(w, "No request type given.")
		return
	}
	_, _ = fmt.Fprintf(w, "https://files.example.test/%d%s", len(h.uploads), path.Ext(upload.Filename))
}

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t interface {
	Helper()
	Fatalf(string, ...any)
}, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
