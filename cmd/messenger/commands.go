package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"proconnect/internal/models"

	"github.com/urfave/cli/v2"
)

func idArg(ctx *cli.Context, i int, what string) (uint, error) {
	raw := ctx.Args().Get(i)
	if raw == "" {
		return 0, fmt.Errorf("you must specify a %s", what)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s %q", what, raw)
	}
	return uint(id), nil
}

var conversationsCommand = &cli.Command{
	Name:    "conversations",
	Aliases: []string{"ls"},
	Usage:   "List recent conversations, most recent first",
	Before:  requiresSession,
	After:   signOut,
	Action: func(ctx *cli.Context) error {
		return printYAML(os.Stdout, conversationViews(getSession(ctx).ConversationList()))
	},
}

var threadCommand = &cli.Command{
	Name:      "thread",
	Usage:     "Show the thread with a user and mark it read",
	ArgsUsage: "USER_ID",
	Before:    requiresSession,
	After:     signOut,
	Action: func(ctx *cli.Context) error {
		cp, err := idArg(ctx, 0, "user id")
		if err != nil {
			return err
		}
		s := getSession(ctx)
		msgs, err := s.OpenThread(ctx.Context, cp)
		s.CloseThread(cp)
		if err != nil {
			return err
		}
		return printYAML(os.Stdout, messageViews(msgs))
	},
}

var sendCommand = &cli.Command{
	Name:      "send",
	Usage:     "Send a direct message",
	ArgsUsage: "USER_ID TEXT...",
	Before:    requiresSession,
	After:     signOut,
	Action: func(ctx *cli.Context) error {
		cp, err := idArg(ctx, 0, "user id")
		if err != nil {
			return err
		}
		content := strings.Join(ctx.Args().Tail(), " ")
		msg, err := getSession(ctx).SendMessage(ctx.Context, cp, content)
		if err != nil {
			if msg.CorrelationID != "" {
				fmt.Fprintf(os.Stderr, "Message kept as %s (%s)\n", msg.CorrelationID, msg.State)
			}
			return err
		}
		return printYAML(os.Stdout, messageViews([]models.Message{msg}))
	},
}

var statusCommand = &cli.Command{
	Name:      "status",
	Usage:     "Show your connection status with a user",
	ArgsUsage: "USER_ID",
	Before:    requiresSession,
	After:     signOut,
	Action: func(ctx *cli.Context) error {
		cp, err := idArg(ctx, 0, "user id")
		if err != nil {
			return err
		}
		fmt.Println(getSession(ctx).ConnectionStatus(cp))
		return nil
	},
}

var connectCommand = &cli.Command{
	Name:      "connect",
	Usage:     "Send a connection request",
	ArgsUsage: "USER_ID",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Optional note (max 300 characters)"},
	},
	Before: requiresSession,
	After:  signOut,
	Action: func(ctx *cli.Context) error {
		cp, err := idArg(ctx, 0, "user id")
		if err != nil {
			return err
		}
		edge, err := getSession(ctx).SendConnectionRequest(ctx.Context, cp, ctx.String("message"))
		if err != nil {
			return err
		}
		return printYAML(os.Stdout, edgeViews([]models.ConnectionEdge{*edge}))
	},
}

var acceptCommand = &cli.Command{
	Name:      "accept",
	Usage:     "Accept a received connection request",
	ArgsUsage: "REQUEST_ID",
	Before:    requiresSession,
	After:     signOut,
	Action: func(ctx *cli.Context) error {
		id, err := idArg(ctx, 0, "request id")
		if err != nil {
			return err
		}
		s := getSession(ctx)
		edge, err := s.AcceptConnectionRequest(ctx.Context, id)
		printNotices(s.Notices())
		if err != nil {
			return err
		}
		return printYAML(os.Stdout, edgeViews([]models.ConnectionEdge{*edge}))
	},
}

var rejectCommand = &cli.Command{
	Name:      "reject",
	Aliases:   []string{"cancel"},
	Usage:     "Reject a received request or cancel one you sent",
	ArgsUsage: "REQUEST_ID",
	Before:    requiresSession,
	After:     signOut,
	Action: func(ctx *cli.Context) error {
		id, err := idArg(ctx, 0, "request id")
		if err != nil {
			return err
		}
		s := getSession(ctx)
		err = s.RejectOrCancel(ctx.Context, id)
		printNotices(s.Notices())
		if err != nil {
			return err
		}
		fmt.Printf("Request %d removed\n", id)
		return nil
	},
}

var pendingCommand = &cli.Command{
	Name:   "pending",
	Usage:  "List connection requests waiting on you and on others",
	Before: requiresSession,
	After:  signOut,
	Action: func(ctx *cli.Context) error {
		s := getSession(ctx)
		return printYAML(os.Stdout, map[string][]edgeView{
			"received":    edgeViews(s.PendingReceived()),
			"sent":        edgeViews(s.SentPending()),
			"connections": edgeViews(s.Connections()),
		})
	},
}

var watchCommand = &cli.Command{
	Name:  "watch",
	Usage: "Keep polling and print the conversation list (and an open thread) as it changes",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "thread", Usage: "Also keep this user's thread open"},
	},
	Before: requiresSession,
	After:  signOut,
	Action: func(ctx *cli.Context) error {
		s := getSession(ctx)
		s.Start()

		cp := ctx.Uint("thread")
		if cp != 0 {
			if _, err := s.OpenThread(ctx.Context, cp); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
			defer s.CloseThread(cp)
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)

		ticker := time.NewTicker(getConfig(ctx).SummaryPollInterval)
		defer ticker.Stop()

		var last string
		for {
			var b strings.Builder
			out := map[string]interface{}{"conversations": conversationViews(s.ConversationList())}
			if cp != 0 {
				out["thread"] = messageViews(s.Thread(cp))
			}
			if err := printYAML(&b, out); err != nil {
				return err
			}
			if b.String() != last {
				last = b.String()
				fmt.Printf("--- %s\n%s", time.Now().Format(time.TimeOnly), last)
			}
			printNotices(s.Notices())

			select {
			case <-sig:
				return nil
			case <-ticker.C:
			}
		}
	},
}

func printNotices(notices []models.Notice) {
	for _, n := range notices {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Kind, n.Text)
	}
}
