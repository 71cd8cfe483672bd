package models

import (
	"sort"
	"time"
)

// LastMessage is the list-view projection of a thread's newest message.
type LastMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	SenderID  uint      `json:"senderId"`
}

// ConversationSummary is one row of the recent-conversations list.
// UnreadCount only counts messages sent by the counterpart.
type ConversationSummary struct {
	CounterpartID uint        `json:"counterpartId"`
	LastMessage   LastMessage `json:"lastMessage"`
	UnreadCount   int         `json:"unreadCount"`
}

// LastMessageOf projects a message into a LastMessage.
func LastMessageOf(m *Message) LastMessage {
	return LastMessage{
		Content:   m.Content,
		Timestamp: m.CreatedAt,
		SenderID:  m.SenderID,
	}
}

// SortConversations orders summaries most-recent-first, breaking ties by counterpart id.
func SortConversations(list []ConversationSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		ti, tj := list[i].LastMessage.Timestamp, list[j].LastMessage.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return list[i].CounterpartID < list[j].CounterpartID
	})
}
