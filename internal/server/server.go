// Package server contains the HTTP handlers for the application's API endpoints.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"vortexx/internal/config"
	"vortexx/internal/docstore"
	"vortexx/internal/featureflags"
	"vortexx/internal/middleware"
	"vortexx/internal/mirror"
	"vortexx/internal/models"
	"vortexx/internal/service"
	"vortexx/internal/session"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

// Deps are the already-initialized dependencies the server routes to.
type Deps struct {
	Config   *config.Config
	Store    *docstore.Store
	Mirror   *mirror.Mirror
	Sessions *session.Manager
	Redis    *redis.Client
	Flags    *featureflags.Manager

	Auth     *service.AuthService
	Users    *service.UserService
	Posts    *service.PostService
	Comments *service.CommentService
	Stories  *service.StoryService
}

// Server holds all dependencies and provides handlers
type Server struct {
	config   *config.Config
	store    *docstore.Store
	mirror   *mirror.Mirror
	redis    *redis.Client
	flags    *featureflags.Manager
	auth     *middleware.Auth
	limiter  *middleware.Limiter
	app      *fiber.App
	prom     *fiberprometheus.FiberPrometheus

	authService    *service.AuthService
	userService    *service.UserService
	postService    *service.PostService
	commentService *service.CommentService
	storyService   *service.StoryService
}

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// metrics returns the process-wide HTTP metrics middleware. Its collectors
// live in the default registry and can only be registered once.
func metrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New("vortexx-api")
	})
	return prom
}

// NewServer creates a server and builds its Fiber app.
func NewServer(d Deps) *Server {
	if d.Flags == nil {
		d.Flags = featureflags.NewManager(d.Config.FeatureFlags)
	}
	s := &Server{
		config:         d.Config,
		store:          d.Store,
		mirror:         d.Mirror,
		redis:          d.Redis,
		flags:          d.Flags,
		auth:           middleware.NewAuth(d.Sessions),
		limiter:        middleware.NewLimiter(d.Redis, d.Config.Env),
		prom:           metrics(),
		authService:    d.Auth,
		userService:    d.Users,
		postService:    d.Posts,
		commentService: d.Comments,
		storyService:   d.Stories,
	}

	s.app = fiber.New(fiber.Config{
		AppName:   "Vortexx API",
		BodyLimit: bodyLimit(s.config),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err.Error())
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(s.app)
	s.SetupRoutes(s.app)
	return s
}

// bodyLimit fits a post carrying the most files, each at the upload cap,
// plus a megabyte for the form fields.
func bodyLimit(cfg *config.Config) int {
	return service.MaxPostMedia*int(cfg.MaxUploadBytes()) + 1<<20
}

// App exposes the Fiber app, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// before the context middleware so the trace id reaches the logs
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())
	app.Use(s.prom.Middleware)
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health", s.ReadinessCheck)
	s.prom.RegisterAt(app, "/metrics")

	api := app.Group("/api")
	api.Get("/features", s.auth.Optional, s.GetFeatureFlags)
	api.Get("/icons", s.ListIcons)
	api.Get("/icons/:name", s.GetIcon)

	loginLimit := s.config.RateLimitPerMin
	if loginLimit <= 0 {
		loginLimit = 10
	}
	limit := func(name string, n int, window time.Duration) fiber.Handler {
		return s.limiter.Handler(middleware.Rule{Name: name, Limit: n, Window: window})
	}

	auth := api.Group("/auth")
	auth.Post("/register", limit("register", 3, 10*time.Minute), s.Register)
	auth.Post("/login", limit("login", loginLimit, time.Minute), s.Login)
	auth.Post("/logout", s.auth.Required, s.Logout)
	auth.Get("/me", s.auth.Required, s.Me)

	users := api.Group("/users")
	users.Get("/", s.GetAllUsers)
	users.Patch("/me", s.auth.Required, s.UpdateMyProfile)
	users.Get("/:username/avatar", s.GetUserAvatar)
	users.Get("/:username", s.GetUserProfile)

	posts := api.Group("/posts")
	posts.Get("/", s.auth.Optional, s.GetPosts)
	posts.Post("/", s.auth.Required, limit("create_post", 10, time.Minute), s.CreatePost)
	// specific routes before the generic /:id
	posts.Get("/mine", s.auth.Required, s.GetMyPosts)
	posts.Get("/saved", s.auth.Required, s.GetSavedPosts)
	posts.Post("/:id/like", s.auth.Required, s.LikePost)
	posts.Post("/:id/save", s.auth.Required, s.SavePost)
	posts.Get("/:id", s.auth.Optional, s.GetPost)
	posts.Delete("/:id", s.auth.Required, s.DeletePost)

	comments := api.Group("/comments")
	comments.Get("/", s.GetComments)
	comments.Post("/", s.auth.Required, limit("create_comment", 20, time.Minute), s.CreateComment)

	stories := api.Group("/stories")
	stories.Get("/", s.GetStories)
	stories.Post("/", s.auth.Required, limit("create_story", 5, time.Minute), s.CreateStory)
	stories.Post("/:id/view", s.auth.Required, s.ViewStory)
	stories.Post("/:id/like", s.auth.Required, s.LikeStory)
}

// LivenessCheck reports that the process is up
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether the repo host answers. The local mirror is
// only a cache and does not affect readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	repoStatus := "healthy"
	if err := s.store.Ping(ctx); err != nil {
		repoStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if repoStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"repo":  repoStatus,
			"redis": redisStatus,
		},
		"time": time.Now(),
	})
}

// GetFeatureFlags handles GET /api/features
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(s.flags.Snapshot(middleware.CurrentSession(c).Username()))
}

// Start starts listening and blocks until the app is shut down.
func (s *Server) Start() error {
	log.Printf("Server starting on port %s...", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting requests and waits for in-flight ones. The
// connections handed in through Deps stay open for their owner to close.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
