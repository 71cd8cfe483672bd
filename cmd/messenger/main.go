// Command messenger is a terminal client for the ProConnect API. It drives the
// same session core a graphical client would: optimistic sends, reconciliation
// and polling.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"proconnect/internal/config"
	"proconnect/internal/observability"
	"proconnect/internal/session"

	"github.com/urfave/cli/v2"
)

type contextKey int

const (
	contextKeyConfig contextKey = iota
	contextKeySession
)

func getConfig(ctx *cli.Context) *config.Config {
	return ctx.Context.Value(contextKeyConfig).(*config.Config)
}

func getSession(ctx *cli.Context) *session.Session {
	return ctx.Context.Value(contextKeySession).(*session.Session)
}

func prepareConfig(ctx *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if url := ctx.String("api"); url != "" {
		cfg.APIBaseURL = url
	}
	if _, err := observability.InitTracing(observability.TracingConfig{
		ServiceName: "proconnect-messenger",
		Environment: cfg.Env,
	}); err != nil {
		return err
	}
	ctx.Context = context.WithValue(ctx.Context, contextKeyConfig, cfg)
	return nil
}

func requiresSession(ctx *cli.Context) error {
	if err := prepareConfig(ctx); err != nil {
		return err
	}
	username, password := ctx.String("username"), ctx.String("password")
	if username == "" || password == "" {
		return fmt.Errorf("--username and --password (or PROCONNECT_USERNAME / PROCONNECT_PASSWORD) are required")
	}

	signInCtx, cancel := context.WithTimeout(ctx.Context, 30*time.Second)
	defer cancel()
	s, err := session.SignIn(signInCtx, getConfig(ctx), username, password)
	if err != nil {
		return fmt.Errorf("sign in failed: %w", err)
	}
	ctx.Context = context.WithValue(ctx.Context, contextKeySession, s)
	return nil
}

func signOut(ctx *cli.Context) error {
	if s, ok := ctx.Context.Value(contextKeySession).(*session.Session); ok {
		s.SignOut()
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:    "messenger",
		Usage:   "Connect and chat with ProConnect users from the terminal",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api",
				Usage:   "API base URL (defaults to API_BASE_URL from config)",
				EnvVars: []string{"PROCONNECT_API"},
			},
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				EnvVars: []string{"PROCONNECT_USERNAME"},
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				EnvVars: []string{"PROCONNECT_PASSWORD"},
			},
		},
		Commands: []*cli.Command{
			conversationsCommand,
			threadCommand,
			sendCommand,
			statusCommand,
			connectCommand,
			acceptCommand,
			rejectCommand,
			pendingCommand,
			watchCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
