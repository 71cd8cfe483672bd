package service

import (
	"context"
	"sync"
	"time"

	"proconnect/internal/models"
	"proconnect/internal/notifications"
)

type userRepoStub struct {
	createFn        func(context.Context, *models.User) error
	getByIDFn       func(context.Context, uint) (*models.User, error)
	getByUsernameFn func(context.Context, string) (*models.User, error)
	searchFn        func(context.Context, string, uint, int) ([]models.User, error)
	countFn         func(context.Context) (int64, error)
}

func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) Search(ctx context.Context, query string, excludeID uint, limit int) ([]models.User, error) {
	return s.searchFn(ctx, query, excludeID, limit)
}
func (s *userRepoStub) Count(ctx context.Context) (int64, error) {
	return s.countFn(ctx)
}

// anyUser answers GetByID for every id except the listed missing ones.
func anyUser(missing ...uint) *userRepoStub {
	return &userRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.User, error) {
			for _, m := range missing {
				if m == id {
					return nil, models.NewNotFoundError("User", id)
				}
			}
			return &models.User{ID: id, Username: "user"}, nil
		},
	}
}

type connRepoStub struct {
	createFn              func(context.Context, *models.ConnectionEdge) error
	getByIDFn             func(context.Context, uint) (*models.ConnectionEdge, error)
	getBetweenFn          func(context.Context, uint, uint) (*models.ConnectionEdge, error)
	listAcceptedFn        func(context.Context, uint) ([]models.ConnectionEdge, error)
	listPendingReceivedFn func(context.Context, uint) ([]models.ConnectionEdge, error)
	listPendingSentFn     func(context.Context, uint) ([]models.ConnectionEdge, error)
	acceptPendingFn       func(context.Context, uint, uint) (bool, error)
	deletePendingFn       func(context.Context, uint, uint, models.ConnectionRole) (bool, error)
}

func (s *connRepoStub) Create(ctx context.Context, edge *models.ConnectionEdge) error {
	return s.createFn(ctx, edge)
}
func (s *connRepoStub) GetByID(ctx context.Context, id uint) (*models.ConnectionEdge, error) {
	return s.getByIDFn(ctx, id)
}
func (s *connRepoStub) GetBetween(ctx context.Context, userID1, userID2 uint) (*models.ConnectionEdge, error) {
	return s.getBetweenFn(ctx, userID1, userID2)
}
func (s *connRepoStub) ListAccepted(ctx context.Context, userID uint) ([]models.ConnectionEdge, error) {
	return s.listAcceptedFn(ctx, userID)
}
func (s *connRepoStub) ListPendingReceived(ctx context.Context, userID uint) ([]models.ConnectionEdge, error) {
	return s.listPendingReceivedFn(ctx, userID)
}
func (s *connRepoStub) ListPendingSent(ctx context.Context, userID uint) ([]models.ConnectionEdge, error) {
	return s.listPendingSentFn(ctx, userID)
}
func (s *connRepoStub) AcceptPending(ctx context.Context, edgeID, receiverID uint) (bool, error) {
	return s.acceptPendingFn(ctx, edgeID, receiverID)
}
func (s *connRepoStub) DeletePending(ctx context.Context, edgeID, userID uint, role models.ConnectionRole) (bool, error) {
	return s.deletePendingFn(ctx, edgeID, userID, role)
}

type msgRepoStub struct {
	createFn        func(context.Context, *models.Message) error
	threadFn        func(context.Context, uint, uint, int) ([]models.Message, error)
	conversationsFn func(context.Context, uint) ([]models.ConversationSummary, error)
	markReadFn      func(context.Context, uint, uint, time.Time) (int64, error)
}

func (s *msgRepoStub) Create(ctx context.Context, msg *models.Message) error {
	return s.createFn(ctx, msg)
}
func (s *msgRepoStub) Thread(ctx context.Context, userID, counterpartID uint, limit int) ([]models.Message, error) {
	return s.threadFn(ctx, userID, counterpartID, limit)
}
func (s *msgRepoStub) Conversations(ctx context.Context, userID uint) ([]models.ConversationSummary, error) {
	return s.conversationsFn(ctx, userID)
}
func (s *msgRepoStub) MarkRead(ctx context.Context, readerID, senderID uint, at time.Time) (int64, error) {
	return s.markReadFn(ctx, readerID, senderID, at)
}

type publishedEvent struct {
	userID uint
	event  notifications.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, userID uint, event notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{userID: userID, event: event})
	return nil
}

func (p *recordingPublisher) all() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}
