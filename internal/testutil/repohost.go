// Package testutil provides shared test doubles and fixtures for tests.
package testutil

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
)

type repoFile struct {
	content []byte
	sha     string
}

type concurrentWriter struct {
	remaining int
	mutate    func([]byte) []byte
}

// RepoHost is an in-memory stand-in for the repository contents API. Every
// write produces a fresh sha, even when the bytes are unchanged, and writes
// whose sha precondition does not match the stored file are answered with 409.
type RepoHost struct {
	Server *httptest.Server
	Owner  string
	Repo   string
	Branch string

	mu       sync.Mutex
	files    map[string]repoFile
	commits  int
	writers  map[string]*concurrentWriter
	requests []string
	down     int
	lastAuth string
}

// NewRepoHost starts a fake repo host that is closed with the test.
func NewRepoHost(t testing.TB) *RepoHost {
	t.Helper()

	h := &RepoHost{
		Owner:   "vortexx",
		Repo:    "vortexx-data",
		Branch:  "main",
		files:   make(map[string]repoFile),
		writers: make(map[string]*concurrentWriter),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/repos/{owner}/{repo}", h.handleRepo)
	mux.HandleFunc("GET /api/repos/{owner}/{repo}/contents/{path...}", h.handleGet)
	mux.HandleFunc("PUT /api/repos/{owner}/{repo}/contents/{path...}", h.handlePut)
	mux.HandleFunc("DELETE /api/repos/{owner}/{repo}/contents/{path...}", h.handleDelete)
	mux.HandleFunc("GET /raw/{owner}/{repo}/{branch}/{path...}", h.handleRaw)

	h.Server = httptest.NewServer(h.intercept(mux))
	t.Cleanup(h.Server.Close)
	return h
}

// APIURL is the base URL for the contents API, with trailing slash.
func (h *RepoHost) APIURL() string { return h.Server.URL + "/api/" }

// RawURL is the base URL of the raw file mirror, with trailing slash.
func (h *RepoHost) RawURL() string { return h.Server.URL + "/raw/" }

// Seed stores content at p as if it had been committed.
func (h *RepoHost) Seed(p string, content []byte) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commitLocked(p, content)
}

// SeedJSON stores v encoded as JSON at p.
func (h *RepoHost) SeedJSON(t testing.TB, p string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal seed %s: %v", p, err)
	}
	return h.Seed(p, data)
}

// File returns the stored bytes at p.
func (h *RepoHost) File(p string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.files[p]
	return f.content, ok
}

// DecodeFile unmarshals the stored JSON at p into dest.
func (h *RepoHost) DecodeFile(t testing.TB, p string, dest any) {
	t.Helper()
	data, ok := h.File(p)
	if !ok {
		t.Fatalf("file %s not found", p)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("decode %s: %v", p, err)
	}
}

// SHA returns the current sha of p, or "" when absent.
func (h *RepoHost) SHA(p string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.files[p].sha
}

// Paths lists every stored path in lexical order.
func (h *RepoHost) Paths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.files))
	for p := range h.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Remove drops p without going through the API.
func (h *RepoHost) Remove(p string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.files, p)
}

// InterleaveWrites simulates another client committing to p right before each
// of the next n write requests for p reach the store. mutate receives the
// current bytes (nil when absent) and returns the competing commit.
func (h *RepoHost) InterleaveWrites(p string, n int, mutate func([]byte) []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writers[p] = &concurrentWriter{remaining: n, mutate: mutate}
}

// SetDown makes every request fail with status until called with 0.
func (h *RepoHost) SetDown(status int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.down = status
}

// Requests returns "METHOD path" for every request seen.
func (h *RepoHost) Requests() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.requests...)
}

// CountRequests counts requests with the given method whose path has the suffix.
func (h *RepoHost) CountRequests(method, suffix string) int {
	n := 0
	for _, r := range h.Requests() {
		m, p, _ := strings.Cut(r, " ")
		if m == method && strings.HasSuffix(p, suffix) {
			n++
		}
	}
	return n
}

// CountWrites counts PUT and DELETE requests.
func (h *RepoHost) CountWrites() int {
	return h.CountRequests(http.MethodPut, "") + h.CountRequests(http.MethodDelete, "")
}

// LastAuthorization returns the Authorization header of the latest request.
func (h *RepoHost) LastAuthorization() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastAuth
}

func (h *RepoHost) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.requests = append(h.requests, r.Method+" "+r.URL.Path)
		h.lastAuth = r.Header.Get("Authorization")
		down := h.down
		h.mu.Unlock()

		if down != 0 {
			writeJSON(w, down, map[string]string{"message": http.StatusText(down)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *RepoHost) matches(r *http.Request) bool {
	return r.PathValue("owner") == h.Owner && r.PathValue("repo") == h.Repo
}

func (h *RepoHost) handleRepo(w http.ResponseWriter, r *http.Request) {
	if !h.matches(r) {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             1,
		"name":           h.Repo,
		"full_name":      h.Owner + "/" + h.Repo,
		"default_branch": h.Branch,
		"private":        false,
	})
}

func (h *RepoHost) handleGet(w http.ResponseWriter, r *http.Request) {
	if !h.matches(r) {
		notFound(w)
		return
	}
	p := strings.Trim(r.PathValue("path"), "/")

	h.mu.Lock()
	defer h.mu.Unlock()

	if f, ok := h.files[p]; ok {
		writeJSON(w, http.StatusOK, h.entryLocked(p, f, true))
		return
	}

	var dir []map[string]any
	prefix := p + "/"
	for name, f := range h.files {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		dir = append(dir, h.entryLocked(name, f, false))
	}
	if len(dir) == 0 {
		notFound(w)
		return
	}
	sort.Slice(dir, func(i, j int) bool { return dir[i]["path"].(string) < dir[j]["path"].(string) })
	writeJSON(w, http.StatusOK, dir)
}

type fileOptions struct {
	Message string  `json:"message"`
	Content []byte  `json:"content"`
	SHA     *string `json:"sha"`
	Branch  *string `json:"branch"`
}

func (h *RepoHost) handlePut(w http.ResponseWriter, r *http.Request) {
	if !h.matches(r) {
		notFound(w)
		return
	}
	p := strings.Trim(r.PathValue("path"), "/")

	var opts fileOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return
	}
	if opts.Message == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Invalid request. message wasn't supplied."})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.interleaveLocked(p)

	current, exists := h.files[p]
	switch {
	case exists && opts.SHA == nil:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": `Invalid request. "sha" wasn't supplied.`})
		return
	case exists && *opts.SHA != current.sha:
		writeJSON(w, http.StatusConflict, map[string]string{"message": fmt.Sprintf("%s does not match %s", p, *opts.SHA)})
		return
	case !exists && opts.SHA != nil && *opts.SHA != "":
		writeJSON(w, http.StatusConflict, map[string]string{"message": fmt.Sprintf("%s does not match %s", p, *opts.SHA)})
		return
	}

	sha := h.commitLocked(p, opts.Content)
	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"content": map[string]any{"name": path.Base(p), "path": p, "sha": sha, "type": "file"},
		"commit":  map[string]any{"sha": fmt.Sprintf("commit%d", h.commits), "message": opts.Message},
	})
}

func (h *RepoHost) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.matches(r) {
		notFound(w)
		return
	}
	p := strings.Trim(r.PathValue("path"), "/")

	var opts fileOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.interleaveLocked(p)

	current, exists := h.files[p]
	if !exists {
		notFound(w)
		return
	}
	if opts.SHA == nil || *opts.SHA != current.sha {
		writeJSON(w, http.StatusConflict, map[string]string{"message": fmt.Sprintf("%s does not match", p)})
		return
	}
	delete(h.files, p)
	h.commits++
	writeJSON(w, http.StatusOK, map[string]any{
		"content": nil,
		"commit":  map[string]any{"sha": fmt.Sprintf("commit%d", h.commits), "message": opts.Message},
	})
}

func (h *RepoHost) handleRaw(w http.ResponseWriter, r *http.Request) {
	if !h.matches(r) || r.PathValue("branch") != h.Branch {
		http.NotFound(w, r)
		return
	}
	p := strings.Trim(r.PathValue("path"), "/")

	h.mu.Lock()
	f, ok := h.files[p]
	h.mu.Unlock()

	if !ok {
		http.Error(w, "404: Not Found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(f.content)
}

func (h *RepoHost) interleaveLocked(p string) {
	cw, ok := h.writers[p]
	if !ok || cw.remaining <= 0 {
		return
	}
	cw.remaining--
	var current []byte
	if f, exists := h.files[p]; exists {
		current = f.content
	}
	h.commitLocked(p, cw.mutate(current))
}

func (h *RepoHost) commitLocked(p string, content []byte) string {
	h.commits++
	sum := sha1.Sum(append([]byte(fmt.Sprintf("%d:%s:", h.commits, p)), content...))
	sha := hex.EncodeToString(sum[:])
	h.files[p] = repoFile{content: append([]byte(nil), content...), sha: sha}
	return sha
}

func (h *RepoHost) entryLocked(p string, f repoFile, withContent bool) map[string]any {
	entry := map[string]any{
		"type": "file",
		"name": path.Base(p),
		"path": p,
		"sha":  f.sha,
		"size": len(f.content),
	}
	if withContent {
		entry["encoding"] = "base64"
		entry["content"] = base64.StdEncoding.EncodeToString(f.content)
	}
	return entry
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
