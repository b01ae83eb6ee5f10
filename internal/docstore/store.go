// Package docstore uses a repository contents API as a JSON document database.
// Each document is a file; its blob sha is the revision used for optimistic
// concurrency on every write.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vortexx/internal/observability"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/github"
	"golang.org/x/oauth2"
)

const (
	DefaultMaxRetries = 3
	DefaultTimeout    = 15 * time.Second
)

// Config locates the repository backing the store.
type Config struct {
	APIURL     string
	RawURL     string
	Owner      string
	Repo       string
	Branch     string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// Option configures a Store during construction in New.
type Option func(*Store)

// WithClock replaces the wall clock used for story expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBackOff replaces the retry schedule used between conflicting writes.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(s *Store) {
		if factory != nil {
			s.newBackOff = factory
		}
	}
}

// Store is a client of the repo host.
type Store struct {
	cfg        Config
	gh         *github.Client
	raw        *http.Client
	log        *observability.StoreLogger
	now        func() time.Time
	newBackOff func() backoff.BackOff
}

// New builds a Store. The token, when present, is sent as a bearer token on
// every contents API call.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("docstore: owner and repo are required")
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.Token != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
		httpClient.Timeout = cfg.Timeout
	}

	gh := github.NewClient(httpClient)
	if cfg.APIURL != "" {
		base, err := url.Parse(withSlash(cfg.APIURL))
		if err != nil {
			return nil, fmt.Errorf("docstore: invalid api url: %w", err)
		}
		gh.BaseURL = base
	}

	s := &Store{
		cfg: cfg,
		gh:  gh,
		raw: &http.Client{Timeout: cfg.Timeout},
		log: observability.NewStoreLogger("repo"),
		now: time.Now,
		newBackOff: func() backoff.BackOff {
			exp := backoff.NewExponentialBackOff()
			exp.InitialInterval = 200 * time.Millisecond
			exp.Multiplier = 2
			exp.MaxInterval = 2 * time.Second
			return exp
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

// Ping verifies that the repository is reachable with the configured credentials.
func (s *Store) Ping(ctx context.Context) (err error) {
	ctx, done := s.begin(ctx, "ping", "")
	defer done(&err)

	_, resp, err := s.gh.Repositories.Get(ctx, s.cfg.Owner, s.cfg.Repo)
	if err == nil {
		return nil
	}
	switch statusOf(resp) {
	case http.StatusUnauthorized:
		return &UpstreamError{Op: "ping", Status: http.StatusUnauthorized, Err: errors.New("invalid token")}
	case http.StatusNotFound:
		return &UpstreamError{Op: "ping", Status: http.StatusNotFound, Err: fmt.Errorf("repository %s/%s not found", s.cfg.Owner, s.cfg.Repo)}
	}
	return &UpstreamError{Op: "ping", Status: statusOf(resp), Err: err}
}

// begin opens a span and returns a function that records the outcome of the call.
func (s *Store) begin(ctx context.Context, op, p string) (context.Context, func(*error)) {
	span, ctx := observability.StartStoreSpan(ctx, op, p)
	track := observability.TrackStoreCall(op)
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil && !errors.Is(*errp, ErrNotFound) {
			span.SetError(*errp)
			s.log.LogError(ctx, *errp, op, p)
		}
		track(errp)
		span.End()
	}
}

func (s *Store) classify(op, p string, resp *github.Response, err error) error {
	if err == nil {
		return nil
	}
	switch statusOf(resp) {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return &ConflictError{Path: p}
	}
	return &UpstreamError{Op: op, Path: p, Status: statusOf(resp), Err: err}
}

func statusOf(resp *github.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
