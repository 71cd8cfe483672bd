// Package testutil provides shared fixtures for tests that need a running API.
package testutil

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"proconnect/internal/config"
	"proconnect/internal/database"
	"proconnect/internal/middleware"
	"proconnect/internal/models"
	"proconnect/internal/repository"
	"proconnect/internal/server"
	"proconnect/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestJWTSecret signs tokens for fixture users.
const TestJWTSecret = "test-secret-key-that-is-long-enough-32"

// DefaultPassword is the password of every fixture user.
const DefaultPassword = "password123"

// Backend is a fully wired API over an in-memory sqlite database.
type Backend struct {
	Config *config.Config
	DB     *gorm.DB
	Server *server.Server
	App    *fiber.App

	users *service.UserService
}

// TestConfig returns a config suitable for in-process API tests.
func TestConfig() *config.Config {
	return &config.Config{
		Env:                 "test",
		Port:                "0",
		JWTSecret:           TestJWTSecret,
		DBDriver:            "sqlite",
		SQLitePath:          ":memory:",
		TokenTTLHours:       1,
		AllowedOrigins:      "*",
		HTTPTimeout:         5 * time.Second,
		SummaryPollInterval: 50 * time.Millisecond,
		ThreadPollInterval:  20 * time.Millisecond,
		ReconcileMaxCycles:  3,
		ThreadPageSize:      50,
	}
}

// NewBackend builds the API without redis. The database is closed when the test ends.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	cfg := TestConfig()
	db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.ApplySchema(context.Background(), db, cfg))

	srv, err := server.NewServerWithDeps(cfg, db, nil)
	require.NoError(t, err)

	return &Backend{
		Config: cfg,
		DB:     db,
		Server: srv,
		App:    srv.Handler(),
		users:  service.NewUserService(repository.NewUserRepository(db)),
	}
}

// CreateUser registers a user with DefaultPassword and returns it with a bearer token.
func (b *Backend) CreateUser(t *testing.T, username string) (*models.User, string) {
	t.Helper()
	user, err := b.users.CreateUser(context.Background(), service.CreateUserInput{
		Username: username,
		Password: DefaultPassword,
	})
	require.NoError(t, err)

	token, err := middleware.GenerateToken(b.Config.JWTSecret, user.ID, time.Hour)
	require.NoError(t, err)
	return user, token
}

// HTTPServer serves the app over a real listener for net/http clients.
func (b *Backend) HTTPServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(adaptor.FiberApp(b.App))
	t.Cleanup(ts.Close)
	return ts
}
