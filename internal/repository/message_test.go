package repository

import (
	"context"
	"testing"
	"time"

	"proconnect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRepository_Integration(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	users := createUsers(t, db, "me", "u2", "u3")
	me, u2, u3 := users[0].ID, users[1].ID, users[2].ID

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	send := func(from, to uint, content string, at time.Time) *models.Message {
		m := &models.Message{SenderID: from, ReceiverID: to, Content: content, CreatedAt: at}
		require.NoError(t, repo.Create(ctx, m))
		return m
	}

	send(u2, me, "hey", base)
	send(me, u2, "hi back", base.Add(time.Minute))
	send(u2, me, "how are you", base.Add(2*time.Minute))
	send(u3, me, "ping", base.Add(3*time.Minute))
	send(u3, me, "ping again", base.Add(4*time.Minute))

	t.Run("thread is oldest first", func(t *testing.T) {
		msgs, err := repo.Thread(ctx, me, u2, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "hey", msgs[0].Content)
		assert.Equal(t, "how are you", msgs[2].Content)
	})

	t.Run("thread limit keeps newest", func(t *testing.T) {
		msgs, err := repo.Thread(ctx, me, u2, 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "hi back", msgs[0].Content)
		assert.Equal(t, "how are you", msgs[1].Content)
	})

	t.Run("conversations sorted with unread counts", func(t *testing.T) {
		list, err := repo.Conversations(ctx, me)
		require.NoError(t, err)
		require.Len(t, list, 2)

		assert.Equal(t, u3, list[0].CounterpartID)
		assert.Equal(t, "ping again", list[0].LastMessage.Content)
		assert.Equal(t, 2, list[0].UnreadCount)

		assert.Equal(t, u2, list[1].CounterpartID)
		assert.Equal(t, "how are you", list[1].LastMessage.Content)
		assert.Equal(t, 2, list[1].UnreadCount)

		// The other side sees its own outgoing messages as read.
		theirs, err := repo.Conversations(ctx, u2)
		require.NoError(t, err)
		require.Len(t, theirs, 1)
		assert.Equal(t, me, theirs[0].CounterpartID)
		assert.Equal(t, 1, theirs[0].UnreadCount)
	})

	t.Run("mark read is idempotent", func(t *testing.T) {
		n, err := repo.MarkRead(ctx, me, u2, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = repo.MarkRead(ctx, me, u2, base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Zero(t, n)

		msgs, err := repo.Thread(ctx, me, u2, 0)
		require.NoError(t, err)
		require.NotNil(t, msgs[0].ReadAt)
		assert.True(t, msgs[0].ReadAt.Equal(base.Add(time.Hour)))
		assert.Nil(t, msgs[1].ReadAt, "own outgoing message untouched")

		list, err := repo.Conversations(ctx, me)
		require.NoError(t, err)
		for _, s := range list {
			if s.CounterpartID == u2 {
				assert.Zero(t, s.UnreadCount)
			}
		}
	})

	t.Run("no messages yields empty list", func(t *testing.T) {
		extra := createUsers(t, db, "lonely")
		list, err := repo.Conversations(ctx, extra[0].ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}
