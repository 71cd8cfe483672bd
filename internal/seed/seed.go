// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"proconnect/internal/models"
	"proconnect/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded user.
const DefaultPassword = "password123"

// BaseUsernames are always created so demos have predictable logins.
var BaseUsernames = []string{"alice", "bob", "carol"}

// Options configuration for the seeder
type Options struct {
	NumUsers int
	// ConnectRatio is the chance that two users share an edge at all.
	ConnectRatio float64
	// AcceptRatio is the chance that an edge is accepted rather than pending.
	AcceptRatio float64
	// MaxMessages bounds the messages seeded per accepted pair.
	MaxMessages int
	// MaxDays spreads timestamps over this many days in the past.
	MaxDays int
	// RandSeed makes runs reproducible when non-zero.
	RandSeed int64
}

// DefaultOptions returns a small but lively network.
func DefaultOptions() Options {
	return Options{
		NumUsers:     20,
		ConnectRatio: 0.3,
		AcceptRatio:  0.6,
		MaxMessages:  12,
		MaxDays:      30,
	}
}

// Result summarizes what a seeding run created.
type Result struct {
	Users       []models.User
	Connections int
	Pending     int
	Messages    int
}

// Seeder writes demo users, connection edges and message threads.
type Seeder struct {
	db    *gorm.DB
	users repository.UserRepository
	conns repository.ConnectionRepository
	msgs  repository.MessageRepository
}

// NewSeeder creates a seeder bound to db.
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{
		db:    db,
		users: repository.NewUserRepository(db),
		conns: repository.NewConnectionRepository(db),
		msgs:  repository.NewMessageRepository(db),
	}
}

// ClearAll removes every message, edge and user.
func (s *Seeder) ClearAll(ctx context.Context) error {
	log.Println("🗑️  Clearing existing data...")
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&models.Message{}, &models.ConnectionEdge{}, &models.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SeedNetwork creates users, then edges between random pairs, then threads for accepted pairs.
func (s *Seeder) SeedNetwork(ctx context.Context, opts Options) (*Result, error) {
	if opts.RandSeed == 0 {
		opts.RandSeed = time.Now().UnixNano()
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 30
	}
	faker := gofakeit.New(opts.RandSeed)

	users, err := s.createUsers(ctx, faker, opts.NumUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("✓ %d users created", len(users))

	result := &Result{Users: users}
	now := time.Now().UTC()

	for i := 0; i < len(users); i++ {
		for j := i + 1; j < len(users); j++ {
			if faker.Float64Range(0, 1) >= opts.ConnectRatio {
				continue
			}

			requester, receiver := users[i], users[j]
			if faker.Bool() {
				requester, receiver = receiver, requester
			}

			edge := &models.ConnectionEdge{
				RequesterID: requester.ID,
				ReceiverID:  receiver.ID,
				Status:      models.ConnectionStatusPending,
				Message:     faker.Sentence(6),
				CreatedAt:   randomPast(faker, now, opts.MaxDays),
			}
			if faker.Float64Range(0, 1) < opts.AcceptRatio {
				edge.Status = models.ConnectionStatusAccepted
			}
			if err := s.conns.Create(ctx, edge); err != nil {
				return nil, fmt.Errorf("failed to create connection %d->%d: %w", requester.ID, receiver.ID, err)
			}

			if edge.Status == models.ConnectionStatusPending {
				result.Pending++
				continue
			}
			result.Connections++

			n, err := s.seedThread(ctx, faker, requester.ID, receiver.ID, edge.CreatedAt, now, opts.MaxMessages)
			if err != nil {
				return nil, err
			}
			result.Messages += n
		}
	}

	log.Printf("✓ %d connections, %d pending requests, %d messages", result.Connections, result.Pending, result.Messages)
	return result, nil
}

func (s *Seeder) createUsers(ctx context.Context, faker *gofakeit.Faker, count int) ([]models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	if count < len(BaseUsernames) {
		count = len(BaseUsernames)
	}

	users := make([]models.User, 0, count)
	for i := 0; i < count; i++ {
		var username, display string
		if i < len(BaseUsernames) {
			username = BaseUsernames[i]
			display = strings.ToUpper(username[:1]) + username[1:]
		} else {
			display = faker.Name()
			username = fmt.Sprintf("%s%d", strings.ToLower(faker.Username()), i)
		}

		user := models.User{
			Username:     username,
			DisplayName:  display,
			Headline:     fmt.Sprintf("%s at %s", faker.JobTitle(), faker.Company()),
			PasswordHash: string(hash),
		}
		if err := s.users.Create(ctx, &user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// seedThread writes alternating messages after the connection was made. Older messages are read.
func (s *Seeder) seedThread(ctx context.Context, faker *gofakeit.Faker, a, b uint, from, to time.Time, maxMessages int) (int, error) {
	if maxMessages <= 0 {
		return 0, nil
	}
	count := faker.Number(0, maxMessages)
	if count == 0 {
		return 0, nil
	}

	step := to.Sub(from) / time.Duration(count+1)
	unreadFrom := count - faker.Number(0, 3)

	for k := 0; k < count; k++ {
		sender, receiver := a, b
		if faker.Bool() {
			sender, receiver = b, a
		}

		msg := &models.Message{
			SenderID:   sender,
			ReceiverID: receiver,
			Content:    faker.Sentence(faker.Number(3, 14)),
			CreatedAt:  from.Add(step * time.Duration(k+1)).Truncate(time.Microsecond),
		}
		if k < unreadFrom {
			readAt := msg.CreatedAt.Add(time.Minute)
			msg.ReadAt = &readAt
		}
		if err := s.msgs.Create(ctx, msg); err != nil {
			return k, fmt.Errorf("failed to create message: %w", err)
		}
	}
	return count, nil
}

func randomPast(faker *gofakeit.Faker, now time.Time, maxDays int) time.Time {
	back := time.Duration(faker.Number(1, maxDays*24*60)) * time.Minute
	return now.Add(-back)
}
