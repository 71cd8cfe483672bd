package messaging

import (
	"context"
	"time"

	"proconnect/internal/models"
	"proconnect/internal/observability"
)

// Backend is the subset of the API the messaging service calls.
type Backend interface {
	SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error)
	GetThread(ctx context.Context, counterpartID uint, limit int) ([]models.Message, error)
	GetConversations(ctx context.Context) ([]models.ConversationSummary, error)
	MarkAsRead(ctx context.Context, otherUserID uint) (int64, error)
}

// Service runs sends, thread refreshes and read receipts against the local caches.
type Service struct {
	backend     Backend
	threads     *ThreadCache
	index       *Index
	notify      func(models.Notice)
	log         *observability.SyncLogger
	threadLimit int
	now         func() time.Time
}

// NewService wires a messaging service. notify may be nil.
func NewService(backend Backend, threads *ThreadCache, index *Index, notify func(models.Notice)) *Service {
	if notify == nil {
		notify = func(models.Notice) {}
	}
	return &Service{
		backend: backend,
		threads: threads,
		index:   index,
		notify:  notify,
		log:     observability.NewSyncLogger("messaging", threads.ViewerID()),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Threads returns the thread cache.
func (s *Service) Threads() *ThreadCache {
	return s.threads
}

// SetThreadLimit sets how many messages a thread refresh asks for. Zero leaves it to the server.
func (s *Service) SetThreadLimit(n int) {
	s.threadLimit = n
}

// Index returns the conversation index.
func (s *Service) Index() *Index {
	return s.index
}

// Send appends an optimistic message and posts it. The returned message is the
// confirmed copy on success, or the optimistic one alongside the error.
func (s *Service) Send(ctx context.Context, counterpartID uint, content string) (models.Message, error) {
	viewer := s.threads.ViewerID()
	if counterpartID == 0 || counterpartID == viewer {
		return models.Message{}, models.NewValidationError("a different receiver is required")
	}
	if err := models.ValidateMessageContent(content); err != nil {
		return models.Message{}, err
	}

	optimistic := s.threads.Append(counterpartID, content)
	return s.post(ctx, counterpartID, optimistic)
}

// Resend retries a failed optimistic message.
func (s *Service) Resend(ctx context.Context, correlationID string) (models.Message, error) {
	_, cp, ok := s.threads.Find(correlationID)
	if !ok {
		return models.Message{}, models.NewNotFoundError("Pending message", correlationID)
	}
	msg, ok := s.threads.Retry(cp, correlationID)
	if !ok {
		return models.Message{}, models.NewInvalidTransitionError("Only a failed message can be resent")
	}
	return s.post(ctx, cp, msg)
}

func (s *Service) post(ctx context.Context, counterpartID uint, optimistic models.Message) (models.Message, error) {
	span, ctx := observability.StartSyncSpan(ctx, "messaging", "send")
	defer span.End()
	ctx = observability.WithCorrelationID(ctx, optimistic.CorrelationID)

	confirmed, err := s.backend.SendMessage(ctx, models.SendMessageRequest{
		SenderID:   s.threads.ViewerID(),
		ReceiverID: counterpartID,
		Content:    optimistic.Content,
	})
	if err != nil {
		span.SetError(err)
		if models.IsRetryable(err) {
			s.threads.MarkFailed(counterpartID, optimistic.CorrelationID)
			optimistic.State = models.MessageFailed
			observability.OptimisticRollbacks.WithLabelValues("message", "failed").Inc()
			s.log.Warn(ctx, "message send failed; kept for resend", err, map[string]interface{}{"counterpart_id": counterpartID})
		} else {
			s.threads.Discard(counterpartID, optimistic.CorrelationID)
			observability.OptimisticRollbacks.WithLabelValues("message", "rejected").Inc()
		}
		return optimistic, err
	}

	if !s.threads.Confirm(counterpartID, optimistic.CorrelationID, *confirmed) {
		s.log.Debug(ctx, "send confirmed after a poll matched it", map[string]interface{}{"message_id": confirmed.ID})
	}
	return *confirmed, nil
}

// RefreshThread pulls the thread from the backend and reconciles it.
func (s *Service) RefreshThread(ctx context.Context, counterpartID uint) (ReconcileResult, error) {
	span, ctx := observability.StartSyncSpan(ctx, "messaging", "thread")
	defer span.End()

	msgs, err := s.backend.GetThread(ctx, counterpartID, s.threadLimit)
	if err != nil {
		span.SetError(err)
		return ReconcileResult{}, err
	}
	res := s.threads.Reconcile(counterpartID, msgs)
	observability.RecordReconcile(res.Matched, res.Inserted, res.Updated, len(res.Failed))

	for _, m := range res.Failed {
		s.notify(models.Notice{
			Kind:          models.NoticeSendFailed,
			CounterpartID: counterpartID,
			CorrelationID: m.CorrelationID,
			Text:          "Message could not be delivered. Resend or discard it.",
		})
	}
	if res.Matched+res.Inserted+res.Updated > 0 {
		s.log.Debug(ctx, "thread reconciled", map[string]interface{}{
			"counterpart_id": counterpartID,
			"matched":        res.Matched,
			"inserted":       res.Inserted,
			"updated":        res.Updated,
		})
	}
	return res, nil
}

// RefreshConversations pulls the summary feed.
func (s *Service) RefreshConversations(ctx context.Context) error {
	span, ctx := observability.StartSyncSpan(ctx, "messaging", "conversations")
	defer span.End()

	list, err := s.backend.GetConversations(ctx)
	if err != nil {
		span.SetError(err)
		return err
	}
	s.index.SetFeed(list)
	return nil
}

// MarkRead clears unread incoming messages locally and tells the backend.
// A backend failure keeps the local read state; the next poll reconciles it.
func (s *Service) MarkRead(ctx context.Context, counterpartID uint) error {
	changed := s.threads.MarkReadLocal(counterpartID, s.now())

	span, ctx := observability.StartSyncSpan(ctx, "messaging", "mark_read")
	defer span.End()

	updated, err := s.backend.MarkAsRead(ctx, counterpartID)
	if err != nil {
		span.SetError(err)
		s.log.Warn(ctx, "mark-as-read failed; local read state kept", err, map[string]interface{}{"counterpart_id": counterpartID})
		return err
	}
	if changed > 0 || updated > 0 {
		s.log.Debug(ctx, "thread marked read", map[string]interface{}{
			"counterpart_id": counterpartID,
			"local":          changed,
			"remote":         updated,
		})
	}
	return nil
}
