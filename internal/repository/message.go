package repository

import (
	"context"
	"slices"
	"time"

	"proconnect/internal/models"
	"proconnect/internal/observability"

	"gorm.io/gorm"
)

// DefaultThreadLimit caps thread reads when the caller gives no limit.
const DefaultThreadLimit = 50

// MaxThreadLimit is the largest page a thread read returns.
const MaxThreadLimit = 200

// MessageRepository defines the interface for direct message operations
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	Thread(ctx context.Context, userID, counterpartID uint, limit int) ([]models.Message, error)
	Conversations(ctx context.Context, userID uint) ([]models.ConversationSummary, error)
	MarkRead(ctx context.Context, readerID, senderID uint, at time.Time) (int64, error)
}

type messageRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db, log: observability.NewRepoLogger("messages")}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	defer observability.TrackQuery("create", "messages")()
	if msg.CreatedAt.IsZero() {
		// postgres keeps microseconds; truncating keeps the response equal to later reads.
		msg.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	msg.CorrelationID = ""
	msg.State = ""
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogWrite(ctx, "create", map[string]interface{}{
		"message_id":  msg.ID,
		"sender_id":   msg.SenderID,
		"receiver_id": msg.ReceiverID,
	})
	return nil
}

// Thread returns the newest limit messages between the two users, oldest first.
func (r *messageRepository) Thread(ctx context.Context, userID, counterpartID uint, limit int) ([]models.Message, error) {
	defer observability.TrackQuery("thread", "messages")()
	if limit <= 0 {
		limit = DefaultThreadLimit
	}
	if limit > MaxThreadLimit {
		limit = MaxThreadLimit
	}

	msgs := []models.Message{}
	if err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, counterpartID, counterpartID, userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	slices.Reverse(msgs)
	return msgs, nil
}

type unreadRow struct {
	SenderID uint
	Unread   int
}

// Conversations builds one summary per counterpart from the newest message of
// each thread plus the count of unread incoming messages.
func (r *messageRepository) Conversations(ctx context.Context, userID uint) ([]models.ConversationSummary, error) {
	defer observability.TrackQuery("conversations", "messages")()
	db := r.db.WithContext(ctx)

	var latest []models.Message
	if err := db.Raw(`SELECT * FROM messages WHERE id IN (
		SELECT MAX(id) FROM messages
		WHERE sender_id = ? OR receiver_id = ?
		GROUP BY CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END
	)`, userID, userID, userID).Scan(&latest).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	var unread []unreadRow
	if err := db.Model(&models.Message{}).
		Select("sender_id, COUNT(*) AS unread").
		Where("receiver_id = ? AND read_at IS NULL", userID).
		Group("sender_id").
		Scan(&unread).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	counts := make(map[uint]int, len(unread))
	for _, row := range unread {
		counts[row.SenderID] = row.Unread
	}

	out := make([]models.ConversationSummary, 0, len(latest))
	for i := range latest {
		m := &latest[i]
		counterpart := m.Counterpart(userID)
		out = append(out, models.ConversationSummary{
			CounterpartID: counterpart,
			LastMessage:   models.LastMessageOf(m),
			UnreadCount:   counts[counterpart],
		})
	}
	models.SortConversations(out)
	return out, nil
}

// MarkRead stamps every unread message from senderID to readerID. Re-running it updates nothing.
func (r *messageRepository) MarkRead(ctx context.Context, readerID, senderID uint, at time.Time) (int64, error) {
	defer observability.TrackQuery("mark_read", "messages")()
	res := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND read_at IS NULL", senderID, readerID).
		Update("read_at", at.UTC())
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "mark_read")
		return 0, models.NewInternalError(res.Error)
	}
	if res.RowsAffected > 0 {
		r.log.LogWrite(ctx, "mark_read", map[string]interface{}{
			"reader_id": readerID,
			"sender_id": senderID,
			"updated":   res.RowsAffected,
		})
	}
	return res.RowsAffected, nil
}
