package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageContentLen bounds message content, in characters.
const MaxMessageContentLen = 10000

// MessageState describes where a message stands in the client's sync lifecycle.
// The server only ever returns confirmed messages.
type MessageState string

const (
	MessageConfirmed MessageState = "confirmed"
	MessagePending   MessageState = "pending"
	MessageFailed    MessageState = "failed"
)

// Message is a direct message between two users.
type Message struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	SenderID   uint       `gorm:"not null;index:idx_messages_sender_receiver" json:"senderId"`
	ReceiverID uint       `gorm:"not null;index:idx_messages_sender_receiver;index:idx_messages_receiver_unread" json:"receiverId"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time  `gorm:"index" json:"createdAt"`
	ReadAt     *time.Time `gorm:"index:idx_messages_receiver_unread" json:"readAt"`

	// Client-side bookkeeping, never persisted.
	CorrelationID string       `gorm:"-" json:"correlationId,omitempty"`
	State         MessageState `gorm:"-" json:"state,omitempty"`
}

// TableName specifies the table name for GORM
func (Message) TableName() string {
	return "messages"
}

// Counterpart returns the other participant from viewerID's perspective.
func (m *Message) Counterpart(viewerID uint) uint {
	if m.SenderID == viewerID {
		return m.ReceiverID
	}
	return m.SenderID
}

// IsOptimistic reports whether the message has not been confirmed by the server yet.
func (m *Message) IsOptimistic() bool {
	return m.State == MessagePending || m.State == MessageFailed
}

// CompareMessages orders messages by CreatedAt, falling back to ID on ties.
func CompareMessages(a, b *Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// ValidateMessageContent rejects empty or oversized content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return NewValidationError("Message content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageContentLen {
		return NewValidationError("Message content too long (max 10000 characters)")
	}
	return nil
}

// SendMessageRequest is the body of POST /messages.
type SendMessageRequest struct {
	SenderID   uint   `json:"senderId"`
	ReceiverID uint   `json:"receiverId"`
	Content    string `json:"content"`
}

// MarkAsReadRequest is the body of POST /messages/mark-as-read.
type MarkAsReadRequest struct {
	OtherUserID uint `json:"otherUserId"`
}

// MarkAsReadResponse acknowledges a mark-as-read call.
type MarkAsReadResponse struct {
	Updated int64 `json:"updated"`
}
