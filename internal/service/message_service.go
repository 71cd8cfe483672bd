package service

import (
	"context"
	"log/slog"
	"time"

	"proconnect/internal/cache"
	"proconnect/internal/models"
	"proconnect/internal/notifications"
	"proconnect/internal/observability"
	"proconnect/internal/repository"
)

// MessageService provides direct messaging between users.
type MessageService struct {
	msgRepo  repository.MessageRepository
	userRepo repository.UserRepository
	notifier notifications.Publisher
	now      func() time.Time
}

// NewMessageService returns a new MessageService. notifier may be nil.
func NewMessageService(msgRepo repository.MessageRepository, userRepo repository.UserRepository, notifier notifications.Publisher) *MessageService {
	return &MessageService{
		msgRepo:  msgRepo,
		userRepo: userRepo,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SendMessage persists a message from the viewer. The sender in the body must be the viewer.
func (s *MessageService) SendMessage(ctx context.Context, viewerID uint, req models.SendMessageRequest) (*models.Message, error) {
	if req.SenderID != 0 && req.SenderID != viewerID {
		return nil, models.NewForbiddenError("senderId must match the authenticated user")
	}
	if req.ReceiverID == 0 {
		return nil, models.NewValidationError("receiverId is required")
	}
	if req.ReceiverID == viewerID {
		return nil, models.NewValidationError("Cannot send a message to yourself")
	}
	if err := models.ValidateMessageContent(req.Content); err != nil {
		return nil, err
	}
	if _, err := s.userRepo.GetByID(ctx, req.ReceiverID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		SenderID:   viewerID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
	}
	if err := s.msgRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	observability.MessagesSent.Inc()

	cache.InvalidateConversations(ctx, viewerID, req.ReceiverID)
	s.publish(ctx, req.ReceiverID, notifications.EventMessageCreated, viewerID, msg)
	return msg, nil
}

// GetThread returns the last limit messages between the viewer and counterpartID, oldest first.
func (s *MessageService) GetThread(ctx context.Context, viewerID, counterpartID uint, limit int) ([]models.Message, error) {
	if counterpartID == 0 || counterpartID == viewerID {
		return nil, models.NewValidationError("a different counterpart is required")
	}
	return s.msgRepo.Thread(ctx, viewerID, counterpartID, limit)
}

// GetConversations returns the viewer's conversation summaries, most recent first.
func (s *MessageService) GetConversations(ctx context.Context, viewerID uint) ([]models.ConversationSummary, error) {
	return cache.Conversations(ctx, viewerID, func() ([]models.ConversationSummary, error) {
		return s.msgRepo.Conversations(ctx, viewerID)
	})
}

// MarkAsRead stamps every unread message from otherUserID to the viewer.
// Calling it again is harmless and reports zero updates.
func (s *MessageService) MarkAsRead(ctx context.Context, viewerID, otherUserID uint) (int64, error) {
	if otherUserID == 0 || otherUserID == viewerID {
		return 0, models.NewValidationError("otherUserId must name another user")
	}

	updated, err := s.msgRepo.MarkRead(ctx, viewerID, otherUserID, s.now())
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		cache.InvalidateConversations(ctx, viewerID, otherUserID)
		s.publish(ctx, otherUserID, notifications.EventMessagesRead, viewerID, map[string]interface{}{
			"readerId": viewerID,
			"updated":  updated,
		})
	}
	return updated, nil
}

func (s *MessageService) publish(ctx context.Context, userID uint, kind notifications.EventType, actorID uint, payload interface{}) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishEvent(ctx, userID, notifications.Event{Type: kind, ActorID: actorID, Payload: payload}); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "failed to publish message event",
			slog.String("event", string(kind)),
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()))
	}
}
