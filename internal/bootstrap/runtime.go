// Package bootstrap wires configuration into ready-to-use runtime dependencies.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"vortexx/internal/blob"
	"vortexx/internal/config"
	"vortexx/internal/docstore"
	"vortexx/internal/featureflags"
	"vortexx/internal/media"
	"vortexx/internal/mirror"
	"vortexx/internal/observability"
	"vortexx/internal/server"
	"vortexx/internal/service"
	"vortexx/internal/session"

	"github.com/redis/go-redis/v9"
)

// Options control runtime initialization behavior.
type Options struct {
	// InitRepo creates the collection index files that are missing.
	InitRepo bool
	// Tracing installs the OpenTelemetry provider described by the config.
	Tracing bool
	// ReloadMirror replaces the mirror collections with the repository
	// contents once the services are built.
	ReloadMirror bool
}

// Runtime holds every long-lived dependency of a process.
type Runtime struct {
	Config   *config.Config
	Store    *docstore.Store
	Mirror   *mirror.Mirror
	Sessions *session.Manager
	Flags    *featureflags.Manager
	// Redis backs rate limiting. It is nil when Redis is unreachable.
	Redis *redis.Client

	Auth       *service.AuthService
	Users      *service.UserService
	Posts      *service.PostService
	Comments   *service.CommentService
	Stories    *service.StoryService
	MirrorSync *service.MirrorService

	shutdownTracing func(context.Context) error
}

// InitRuntime connects to the repo host, opens the local mirror and builds the services.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{
		Config:          cfg,
		Flags:           featureflags.NewManager(cfg.FeatureFlags),
		shutdownTracing: func(context.Context) error { return nil },
	}

	if opts.Tracing {
		shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
			ServiceName:    "vortexx-api",
			ServiceVersion: "1.0.0",
			Environment:    cfg.Env,
			Enabled:        cfg.TracingEnabled,
			Exporter:       cfg.TracingExporter,
			OTLPEndpoint:   cfg.OTLPEndpoint,
			SamplerRatio:   cfg.TracingSamplerRatio,
			Repository:     cfg.RepoOwner + "/" + cfg.RepoName,
		})
		if err != nil {
			return nil, fmt.Errorf("tracing init failed: %w", err)
		}
		rt.shutdownTracing = shutdown
	}

	store, err := docstore.New(ctx, docstore.Config{
		APIURL:     cfg.RepoAPIURL,
		RawURL:     cfg.RepoRawURL,
		Owner:      cfg.RepoOwner,
		Repo:       cfg.RepoName,
		Branch:     cfg.RepoBranch,
		Token:      cfg.RepoToken,
		Timeout:    cfg.RepoTimeout(),
		MaxRetries: cfg.RepoMaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("document store init failed: %w", err)
	}
	rt.Store = store

	if opts.InitRepo {
		if err := store.InitStructure(ctx); err != nil {
			return nil, fmt.Errorf("repo structure init failed: %w", err)
		}
	}

	mirrorStore, err := mirror.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("local mirror init failed: %w", err)
	}
	rt.Mirror = mirror.New(mirrorStore)

	// rate limiting fails open without Redis
	if client, err := mirror.NewRedisClient(ctx, cfg.RedisURL); err != nil {
		log.Printf("WARNING: Redis unavailable, rate limiting disabled: %v", err)
	} else {
		rt.Redis = client
	}

	rt.Sessions = session.NewManager(rt.Mirror, cfg.JWTSecret, cfg.SessionTTL(), nil)

	uploader := blob.New(cfg.BlobUploadURL,
		blob.WithTimeout(cfg.BlobTimeout()),
		blob.WithUserhash(cfg.BlobUserhash),
		blob.WithFileField(cfg.BlobFileField),
	)
	pipeline := service.NewMediaPipeline(uploader, media.NewProcessor(cfg.MediaMaxDimension, cfg.MediaFormat))
	limits := media.DefaultLimits.WithMaxSize(cfg.MaxUploadBytes())

	rt.Auth = service.NewAuthService(store, rt.Mirror, rt.Sessions, pipeline)
	rt.Users = service.NewUserService(store, rt.Mirror, rt.Sessions, pipeline)
	rt.Posts = service.NewPostService(store, rt.Mirror, pipeline, rt.Flags, limits)
	rt.Comments = service.NewCommentService(store, rt.Mirror)
	rt.Stories = service.NewStoryService(store, rt.Mirror, pipeline, rt.Flags, limits)
	rt.MirrorSync = service.NewMirrorService(store, rt.Mirror)

	if opts.ReloadMirror {
		if _, err := rt.MirrorSync.Reload(ctx); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("mirror reload failed: %w", err)
		}
	}

	return rt, nil
}

// ServerDeps hands the runtime to the HTTP server.
func (rt *Runtime) ServerDeps() server.Deps {
	return server.Deps{
		Config:   rt.Config,
		Store:    rt.Store,
		Mirror:   rt.Mirror,
		Sessions: rt.Sessions,
		Redis:    rt.Redis,
		Flags:    rt.Flags,
		Auth:     rt.Auth,
		Users:    rt.Users,
		Posts:    rt.Posts,
		Comments: rt.Comments,
		Stories:  rt.Stories,
	}
}

// Close releases the mirror, Redis and the tracer provider.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Mirror != nil {
		errs = append(errs, rt.Mirror.Close())
	}
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	errs = append(errs, rt.shutdownTracing(ctx))
	return errors.Join(errs...)
}
