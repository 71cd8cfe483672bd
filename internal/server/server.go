// Package server contains the HTTP handlers for the connection and messaging API.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "proconnect/docs" // swagger docs
	"proconnect/internal/cache"
	"proconnect/internal/config"
	"proconnect/internal/database"
	"proconnect/internal/middleware"
	"proconnect/internal/models"
	"proconnect/internal/notifications"
	"proconnect/internal/repository"
	"proconnect/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config            *config.Config
	db                *gorm.DB
	redis             *redis.Client
	promMiddleware    *fiberprometheus.FiberPrometheus
	userRepo          repository.UserRepository
	connRepo          repository.ConnectionRepository
	msgRepo           repository.MessageRepository
	notifier          *notifications.Notifier
	userService       *service.UserService
	connectionService *service.ConnectionService
	messageService    *service.MessageService
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
// A nil redis client disables caching, rate limiting and notifications.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("config and database are required")
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("proconnect-api"),
		userRepo:       repository.NewUserRepository(db),
		connRepo:       repository.NewConnectionRepository(db),
		msgRepo:        repository.NewMessageRepository(db),
		notifier:       notifications.NewNotifier(redisClient),
	}

	server.userService = service.NewUserService(server.userRepo)
	server.connectionService = service.NewConnectionService(server.connRepo, server.userRepo, server.notifier)
	server.messageService = service.NewMessageService(server.msgRepo, server.userRepo, server.notifier)

	return server, nil
}

// NewApp returns a fiber app whose error handler speaks the API's error format.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		AppName:      "ProConnect API",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: errorHandler,
	})
}

// Handler builds a fully wired app: middleware and routes.
func (s *Server) Handler() *fiber.App {
	app := NewApp()
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses carry the headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Traceparent, Tracestate",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	if s.config.Env != "test" {
		app.Use(limiter.New(limiter.Config{
			Max:        300,
			Expiration: 1 * time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return c.Method() == fiber.MethodOptions
			},
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return respondWithError(c, models.NewRateLimitedError())
			},
		}))
	}
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	app.Get("/swagger/*", swagger.HandlerDefault)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)

	protected := api.Group("", middleware.AuthRequired(s.config.JWTSecret))
	protected.Get("/auth/me", s.Me)

	users := protected.Group("/users")
	users.Get("/", s.SearchUsers)
	users.Get("/:id", s.GetUser)

	connections := protected.Group("/connections")
	connections.Get("/", s.GetConnections)
	connections.Post("/", middleware.RateLimit(s.redis, 20, 5*time.Minute, "connection_request"), s.CreateConnection)
	// Specific routes before the generic /:id ones.
	connections.Get("/pending", s.GetPendingConnections)
	connections.Get("/sent-pending", s.GetSentPendingConnections)
	connections.Get("/status/:userId", s.GetConnectionStatus)
	connections.Post("/:id/accept", s.AcceptConnection)
	connections.Post("/:id/reject", s.RejectConnection)
	connections.Patch("/:id", s.UpdateConnection)

	messages := protected.Group("/messages")
	messages.Post("/", middleware.RateLimit(s.redis, 60, time.Minute, "send_message"), s.SendMessage)
	messages.Post("/mark-as-read", s.MarkAsRead)
	messages.Get("/:counterpartId", s.GetThread)

	protected.Get("/conversations", s.GetConversations)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests.
// Redis is optional: its absence degrades caching but not correctness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus != "healthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Notifier exposes the event publisher, e.g. for a development event tap.
func (s *Server) Notifier() *notifications.Notifier {
	return s.notifier
}

// Shutdown releases resources owned by the server.
func (s *Server) Shutdown(_ context.Context) error {
	var errs []error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("database close: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
