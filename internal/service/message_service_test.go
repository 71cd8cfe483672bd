package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"proconnect/internal/models"
	"proconnect/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageService_SendMessage(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		req  models.SendMessageRequest
		code string
	}{
		{"sender mismatch", models.SendMessageRequest{SenderID: 2, ReceiverID: 3, Content: "x"}, models.CodeForbidden},
		{"missing receiver", models.SendMessageRequest{SenderID: 1, Content: "x"}, models.CodeValidation},
		{"self", models.SendMessageRequest{SenderID: 1, ReceiverID: 1, Content: "x"}, models.CodeValidation},
		{"blank", models.SendMessageRequest{SenderID: 1, ReceiverID: 2, Content: " \n\t "}, models.CodeValidation},
		{"too long", models.SendMessageRequest{SenderID: 1, ReceiverID: 2, Content: strings.Repeat("a", models.MaxMessageContentLen+1)}, models.CodeValidation},
		{"unknown receiver", models.SendMessageRequest{SenderID: 1, ReceiverID: 9, Content: "x"}, models.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &msgRepoStub{createFn: func(context.Context, *models.Message) error {
				t.Fatal("must not persist")
				return nil
			}}
			svc := NewMessageService(repo, anyUser(9), nil)
			_, err := svc.SendMessage(ctx, 1, tt.req)
			assert.True(t, models.IsCode(err, tt.code), "got %v", err)
		})
	}

	t.Run("persists and notifies", func(t *testing.T) {
		repo := &msgRepoStub{createFn: func(_ context.Context, m *models.Message) error {
			m.ID = 44
			m.CreatedAt = time.Now()
			return nil
		}}
		pub := &recordingPublisher{}
		svc := NewMessageService(repo, anyUser(), pub)

		content := strings.Repeat("b", models.MaxMessageContentLen)
		msg, err := svc.SendMessage(ctx, 1, models.SendMessageRequest{SenderID: 1, ReceiverID: 2, Content: content})
		require.NoError(t, err)
		assert.Equal(t, uint(44), msg.ID)
		assert.Equal(t, uint(1), msg.SenderID)

		events := pub.all()
		require.Len(t, events, 1)
		assert.Equal(t, uint(2), events[0].userID)
		assert.Equal(t, notifications.EventMessageCreated, events[0].event.Type)
	})
}

func TestMessageService_MarkAsRead(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	calls := 0
	repo := &msgRepoStub{markReadFn: func(_ context.Context, reader, sender uint, at time.Time) (int64, error) {
		calls++
		assert.Equal(t, uint(1), reader)
		assert.Equal(t, uint(2), sender)
		assert.Equal(t, fixed, at)
		if calls == 1 {
			return 3, nil
		}
		return 0, nil
	}}
	pub := &recordingPublisher{}
	svc := NewMessageService(repo, anyUser(), pub)
	svc.now = func() time.Time { return fixed }

	n, err := svc.MarkAsRead(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = svc.MarkAsRead(ctx, 1, 2)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, pub.all(), 1, "only a call that changed something notifies")
	assert.Equal(t, notifications.EventMessagesRead, pub.all()[0].event.Type)

	_, err = svc.MarkAsRead(ctx, 1, 1)
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestMessageService_GetConversationsWithoutCache(t *testing.T) {
	want := []models.ConversationSummary{{CounterpartID: 2, UnreadCount: 1}}
	repo := &msgRepoStub{conversationsFn: func(_ context.Context, viewer uint) ([]models.ConversationSummary, error) {
		assert.Equal(t, uint(1), viewer)
		return want, nil
	}}
	got, err := NewMessageService(repo, anyUser(), nil).GetConversations(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMessageService_GetThreadRejectsSelf(t *testing.T) {
	_, err := NewMessageService(&msgRepoStub{}, anyUser(), nil).GetThread(context.Background(), 1, 1, 10)
	assert.True(t, models.IsCode(err, models.CodeValidation))
}
