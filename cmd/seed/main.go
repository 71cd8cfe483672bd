// Command seed fills the database with a demo network of users, connections and messages.
package main

import (
	"context"
	"flag"
	"log"

	"proconnect/internal/bootstrap"
	"proconnect/internal/config"
	"proconnect/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.NumUsers, "Number of users to create")
	connectRatio := flag.Float64("connect", defaults.ConnectRatio, "Share of user pairs that get a connection edge")
	acceptRatio := flag.Float64("accept", defaults.AcceptRatio, "Share of edges that are accepted")
	maxMessages := flag.Int("messages", defaults.MaxMessages, "Maximum messages per connected pair")
	randSeed := flag.Int64("seed", defaults.RandSeed, "Random seed, 0 for a random run")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("Database Seeder")
	log.Println("===============")
	log.Printf("Target: %d users, connect=%.2f accept=%.2f, clean=%v\n", *numUsers, *connectRatio, *acceptRatio, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	db, _, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(db)
	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	opts := defaults
	opts.NumUsers = *numUsers
	opts.ConnectRatio = *connectRatio
	opts.AcceptRatio = *acceptRatio
	opts.MaxMessages = *maxMessages
	opts.RandSeed = *randSeed

	res, err := s.SeedNetwork(ctx, opts)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Created %d users, %d connections, %d pending requests, %d messages\n",
		len(res.Users), res.Connections, res.Pending, res.Messages)
	log.Printf("All seeded users have the password: %s\n", seed.DefaultPassword)
}
