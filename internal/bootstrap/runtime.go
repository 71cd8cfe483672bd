// Package bootstrap wires the runtime dependencies shared by the server and tooling binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"strings"

	"proconnect/internal/cache"
	"proconnect/internal/config"
	"proconnect/internal/database"
	"proconnect/internal/repository"
	"proconnect/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SkipSchema leaves the schema untouched, e.g. for cmd/migrate which manages it itself.
	SkipSchema bool
}

// InitRuntime connects to the database and redis, applies the schema and optionally seeds
// a development network.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if !opts.SkipSchema {
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return nil, nil, fmt.Errorf("schema apply failed: %w", err)
		}
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if err := ensureDevUsers(ctx, cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development users: %w", err)
	}

	return db, r, nil
}

// ensureDevUsers seeds a demo network into an empty development database.
func ensureDevUsers(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapUsers {
		return nil
	}

	n, err := repository.NewUserRepository(db).Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	res, err := seed.NewSeeder(db).SeedNetwork(ctx, seed.DefaultOptions())
	if err != nil {
		return err
	}
	log.Printf("development network seeded: %d users (password %q)", len(res.Users), seed.DefaultPassword)
	return nil
}
