package cache

import (
	"context"
	"fmt"
	"time"

	"proconnect/internal/models"
	"proconnect/internal/observability"
)

const (
	ConversationsKeyPrefix = "conversations:user:%d"
	UserKeyPrefix          = "user:%d"
)

const (
	ConversationsTTL = 30 * time.Second
	UserTTL          = 5 * time.Minute
)

// ConversationsKey is the summary-list key for one viewer.
func ConversationsKey(userID uint) string {
	return fmt.Sprintf(ConversationsKeyPrefix, userID)
}

// UserKey is the public profile key for one user.
func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

// Conversations returns the viewer's conversation summaries, loading them with fetch on a miss.
func Conversations(ctx context.Context, userID uint, fetch func() ([]models.ConversationSummary, error)) ([]models.ConversationSummary, error) {
	var out []models.ConversationSummary
	hit, err := CacheAside(ctx, ConversationsKey(userID), &out, ConversationsTTL, func() error {
		loaded, err := fetch()
		if err != nil {
			return err
		}
		out = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := "miss"
	if hit {
		result = "hit"
	}
	observability.ConversationCacheLookups.WithLabelValues(result).Inc()

	if out == nil {
		out = []models.ConversationSummary{}
	}
	return out, nil
}

// InvalidateConversations drops cached summaries for every listed user.
func InvalidateConversations(ctx context.Context, userIDs ...uint) {
	for _, id := range userIDs {
		Invalidate(ctx, ConversationsKey(id))
	}
}
