// Package server contains the HTTP handlers for the moderation API.
package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"clearance/internal/cache"
	"clearance/internal/config"
	"clearance/internal/content"
	"clearance/internal/database"
	"clearance/internal/featureflags"
	"clearance/internal/middleware"
	"clearance/internal/notifications"
	"clearance/internal/service"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus

	notifier     *notifications.Notifier
	featureFlags *featureflags.Manager
	store        *content.Store
	stopEventLog context.CancelFunc

	moderation  *service.ModerationService
	collections *service.CollectionService
	bulk        *service.BulkService
	workflows   *service.WorkflowService
	comments    *service.CommentService
	reconcile   *service.ReconcileService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	middleware.InitMiddleware(cfg)

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("clearance-api"),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		store:          content.NewStore(db),
	}
	server.notifier = notifications.NewNotifier(redisClient, cfg.NotificationsFailSilently)

	server.moderation = service.NewModerationService(db).
		WithDefaultComplianceBackend(cfg.DefaultComplianceBackend)
	server.collections = service.NewCollectionService(db, server.moderation, server.store, server.notifier)
	server.collections.NameLengthLimit = cfg.CollectionNameLengthLimit
	server.bulk = service.NewBulkService(db, server.moderation, server.collections, server.store, server.notifier)
	server.workflows = service.NewWorkflowService(db)
	server.comments = service.NewCommentService(db, server.featureFlags)
	server.reconcile = service.NewReconcileService(db)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Structured logging after requestid and context middleware so request
	// scoped fields are present.
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	protected := api.Group("", middleware.AuthRequired)

	workflows := protected.Group("/workflows")
	workflows.Get("/", s.ListWorkflows)
	workflows.Post("/", s.CreateWorkflow)
	workflows.Get("/:id", s.GetWorkflow)
	workflows.Post("/:id/steps", s.AddWorkflowStep)

	roles := protected.Group("/roles")
	roles.Get("/", s.ListRoles)
	roles.Post("/", s.CreateRole)

	collections := protected.Group("/collections")
	collections.Get("/", s.ListCollections)
	collections.Post("/", s.CreateCollection)
	collections.Get("/:id", s.GetCollection)
	collections.Put("/:id", s.UpdateCollection)
	collections.Post("/:id/versions", s.AddVersionToCollection)
	collections.Post("/:id/submit", s.SubmitCollectionForReview)
	collections.Post("/:id/cancel", s.CancelCollection)
	collections.Get("/:id/comments", s.ListCollectionComments)
	collections.Post("/:id/comments", s.AddCollectionComment)

	// Bulk operations over a selection of a collection's requests.
	collections.Post("/:id/approve", s.BulkApprove)
	collections.Post("/:id/reject", s.BulkReject)
	collections.Post("/:id/resubmit", s.BulkResubmit)
	collections.Post("/:id/publish", s.BulkPublish)
	collections.Delete("/:id/requests", s.BulkDelete)

	requests := protected.Group("/requests")
	requests.Get("/:id", s.GetRequest)
	requests.Post("/:id/approve", s.ApproveRequest)
	requests.Post("/:id/reject", s.RejectRequest)
	requests.Post("/:id/resubmit", s.ResubmitRequest)
	requests.Get("/:id/comments", s.ListRequestComments)
	requests.Post("/:id/comments", s.AddRequestComment)

	admin := protected.Group("/admin")
	admin.Post("/fix-states", s.FixStates)
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

// Start runs the HTTP server on the configured port.
func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName:      "clearance",
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app

	eventCtx, cancel := context.WithCancel(context.Background())
	s.stopEventLog = cancel
	if err := s.startEventLog(eventCtx); err != nil {
		cancel()
		return fmt.Errorf("start event log: %w", err)
	}

	log.Printf("Starting server on port %s", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// startEventLog consumes the notification channels and mirrors every
// delivered event into the structured log, giving operators a delivery trail
// until a real push gateway subscribes instead.
func (s *Server) startEventLog(ctx context.Context) error {
	return s.notifier.StartPatternSubscriber(ctx, func(channel, payload string) {
		middleware.Logger.InfoContext(ctx, "notification delivered",
			slog.String("channel", channel),
			slog.String("payload", payload),
		)
	})
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopEventLog != nil {
		s.stopEventLog()
	}
	if s.app == nil {
		return nil
	}
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// LivenessCheck reports that the process is up.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// ReadinessCheck reports whether the database is reachable.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(c.UserContext()) != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// GetFeatureFlags returns evaluated feature flags for the calling user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	return c.JSON(s.featureFlags.Snapshot(user.ID))
}
