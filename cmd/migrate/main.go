// Command migrate runs schema operations for the API database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"proconnect/internal/bootstrap"
	"proconnect/internal/config"
	"proconnect/internal/database"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

type contextKey int

const (
	contextKeyConfig contextKey = iota
	contextKeyDB
)

func getConfig(ctx *cli.Context) *config.Config {
	return ctx.Context.Value(contextKeyConfig).(*config.Config)
}

func getDB(ctx *cli.Context) *gorm.DB {
	return ctx.Context.Value(contextKeyDB).(*gorm.DB)
}

func connect(ctx *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, _, err := bootstrap.InitRuntime(ctx.Context, cfg, bootstrap.Options{SkipSchema: true})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	c := context.WithValue(ctx.Context, contextKeyConfig, cfg)
	ctx.Context = context.WithValue(c, contextKeyDB, db)
	return nil
}

var app = &cli.App{
	Name:   "migrate",
	Usage:  "Apply, inspect or roll back database schema changes",
	Before: connect,
	Commands: []*cli.Command{
		{
			Name:  "up",
			Usage: "Apply pending SQL migrations",
			Action: func(ctx *cli.Context) error {
				if err := database.RunMigrations(ctx.Context, getDB(ctx)); err != nil {
					return fmt.Errorf("sql migrations failed: %w", err)
				}
				log.Println("sql migrations applied")
				return nil
			},
		},
		{
			Name:  "auto",
			Usage: "Run GORM automigrations for every model",
			Action: func(ctx *cli.Context) error {
				cfg := getConfig(ctx)
				cfg.DBSchemaMode = database.SchemaModeAuto
				if err := database.ApplySchema(ctx.Context, getDB(ctx), cfg); err != nil {
					return fmt.Errorf("auto schema apply failed: %w", err)
				}
				log.Println("automigrations applied")
				return nil
			},
		},
		{
			Name:  "status",
			Usage: "Show applied and pending migrations",
			Action: func(ctx *cli.Context) error {
				status, err := database.GetSchemaStatus(ctx.Context, getDB(ctx), getConfig(ctx))
				if err != nil {
					return fmt.Errorf("schema status failed: %w", err)
				}
				log.Printf("mode=%s env=%s driver=%s run_sql=%t run_auto=%t applied=%d pending=%d",
					status.Mode, status.Environment, status.Driver, status.WillRunSQL, status.WillRunAutoMigrate,
					len(status.AppliedVersions), len(status.PendingMigrations))
				for _, m := range status.PendingMigrations {
					log.Printf("pending: %s", m.String())
				}
				return nil
			},
		},
		{
			Name:      "down",
			Usage:     "Roll back one applied migration",
			ArgsUsage: "<version>",
			Action: func(ctx *cli.Context) error {
				if ctx.NArg() != 1 {
					return cli.Exit("usage: migrate down <version>", 2)
				}
				var version int
				if _, err := fmt.Sscanf(ctx.Args().First(), "%d", &version); err != nil {
					return fmt.Errorf("invalid version %q: %w", ctx.Args().First(), err)
				}
				if err := database.RollbackMigration(ctx.Context, getDB(ctx), version); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				log.Printf("rolled back migration %d", version)
				return nil
			},
		},
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
