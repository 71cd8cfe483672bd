package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"proconnect/internal/models"
	"proconnect/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthAndDocs(t *testing.T) {
	b := testutil.NewBackend(t)

	status, body := doJSON(t, b.App, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	health := decode[map[string]interface{}](t, body)
	assert.Equal(t, "degraded", health["status"], "redis is absent")

	status, _ = doJSON(t, b.App, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, b.App, http.MethodGet, "/swagger/doc.json", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, b.App, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestLoginAndMe(t *testing.T) {
	b := testutil.NewBackend(t)
	alice, _ := b.CreateUser(t, "alice")

	status, _ := doJSON(t, b.App, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Username: "alice", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, b.App, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Username: "nobody", Password: testutil.DefaultPassword})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := doJSON(t, b.App, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Username: "Alice", Password: testutil.DefaultPassword})
	require.Equal(t, http.StatusOK, status, string(body))
	login := decode[models.LoginResponse](t, body)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, alice.ID, login.User.ID)
	assert.NotContains(t, string(body), "passwordHash")

	status, body = doJSON(t, b.App, http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", decode[models.User](t, body).Username)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	b := testutil.NewBackend(t)

	for _, path := range []string{"/api/connections", "/api/conversations", "/api/messages/2", "/api/users"} {
		status, body := doJSON(t, b.App, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
		assert.Equal(t, models.CodeUnauthorized, decode[models.ErrorResponse](t, body).Code)
	}

	status, _ := doJSON(t, b.App, http.MethodGet, "/api/connections", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSearchUsersExcludesViewer(t *testing.T) {
	b := testutil.NewBackend(t)
	_, aliceToken := b.CreateUser(t, "alice")
	b.CreateUser(t, "bob")
	b.CreateUser(t, "bobby")

	status, body := doJSON(t, b.App, http.MethodGet, "/api/users", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.User](t, body), 2)

	status, body = doJSON(t, b.App, http.MethodGet, "/api/users?q=BOBB", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	users := decode[[]models.User](t, body)
	require.Len(t, users, 1)
	assert.Equal(t, "bobby", users[0].Username)
}

func connectionStatus(t *testing.T, app *fiber.App, token string, other uint) models.DerivedConnectionStatus {
	t.Helper()
	status, body := doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/connections/status/%d", other), token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var resp struct {
		Status models.DerivedConnectionStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Status
}

func TestConnectionRequestRejectAndResend(t *testing.T) {
	b := testutil.NewBackend(t)
	alice, aliceToken := b.CreateUser(t, "alice")
	bob, bobToken := b.CreateUser(t, "bob")

	status, body := doJSON(t, b.App, http.MethodPost, "/api/connections", aliceToken,
		models.CreateConnectionRequest{ReceiverID: bob.ID, Message: "Let's connect"})
	require.Equal(t, http.StatusCreated, status, string(body))
	edge := decode[models.ConnectionEdge](t, body)
	assert.Equal(t, models.ConnectionStatusPending, edge.Status)

	assert.Equal(t, models.StatusPendingSent, connectionStatus(t, b.App, aliceToken, bob.ID))
	assert.Equal(t, models.StatusPendingReceived, connectionStatus(t, b.App, bobToken, alice.ID))

	status, body = doJSON(t, b.App, http.MethodGet, "/api/connections/pending", bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	pending := decode[[]models.ConnectionEdge](t, body)
	require.Len(t, pending, 1)
	assert.Equal(t, "Let's connect", pending[0].Message)

	// One live edge per unordered pair, whichever side asks.
	status, body = doJSON(t, b.App, http.MethodPost, "/api/connections", aliceToken, models.CreateConnectionRequest{ReceiverID: bob.ID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, models.CodeAlreadyConnected, decode[models.ErrorResponse](t, body).Code)
	status, _ = doJSON(t, b.App, http.MethodPost, "/api/connections", bobToken, models.CreateConnectionRequest{ReceiverID: alice.ID})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = doJSON(t, b.App, http.MethodPost, fmt.Sprintf("/api/connections/%d/reject", edge.ID), bobToken, nil)
	require.Equal(t, http.StatusNoContent, status)

	for _, tc := range []struct {
		token, path string
	}{
		{aliceToken, "/api/connections/sent-pending"},
		{bobToken, "/api/connections/pending"},
	} {
		status, body = doJSON(t, b.App, http.MethodGet, tc.path, tc.token, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Empty(t, decode[[]models.ConnectionEdge](t, body), tc.path)
	}
	assert.Equal(t, models.StatusNone, connectionStatus(t, b.App, aliceToken, bob.ID))

	status, _ = doJSON(t, b.App, http.MethodPost, "/api/connections", aliceToken, models.CreateConnectionRequest{ReceiverID: bob.ID})
	assert.Equal(t, http.StatusCreated, status)
}

func TestConnectionAcceptTransitions(t *testing.T) {
	b := testutil.NewBackend(t)
	alice, aliceToken := b.CreateUser(t, "alice")
	bob, bobToken := b.CreateUser(t, "bob")
	_, carolToken := b.CreateUser(t, "carol")

	status, body := doJSON(t, b.App, http.MethodPost, "/api/connections", aliceToken, models.CreateConnectionRequest{ReceiverID: bob.ID})
	require.Equal(t, http.StatusCreated, status)
	edge := decode[models.ConnectionEdge](t, body)
	acceptPath := fmt.Sprintf("/api/connections/%d/accept", edge.ID)

	status, body = doJSON(t, b.App, http.MethodPost, acceptPath, aliceToken, nil)
	assert.Equal(t, http.StatusConflict, status, "requester cannot accept")
	assert.Equal(t, models.CodeInvalidTransition, decode[models.ErrorResponse](t, body).Code)

	status, _ = doJSON(t, b.App, http.MethodPost, acceptPath, carolToken, nil)
	assert.Equal(t, http.StatusNotFound, status, "outsiders do not learn the edge exists")

	status, body = doJSON(t, b.App, http.MethodPost, acceptPath, bobToken, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, models.ConnectionStatusAccepted, decode[models.ConnectionEdge](t, body).Status)

	assert.Equal(t, models.StatusConnected, connectionStatus(t, b.App, aliceToken, bob.ID))
	assert.Equal(t, models.StatusConnected, connectionStatus(t, b.App, bobToken, alice.ID))

	status, _ = doJSON(t, b.App, http.MethodPost, acceptPath, bobToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	status, _ = doJSON(t, b.App, http.MethodPost, fmt.Sprintf("/api/connections/%d/reject", edge.ID), bobToken, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = doJSON(t, b.App, http.MethodGet, "/api/connections", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.ConnectionEdge](t, body), 1)

	status, _ = doJSON(t, b.App, http.MethodPost, "/api/connections/999/accept", bobToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdateConnectionPatch(t *testing.T) {
	b := testutil.NewBackend(t)
	_, aliceToken := b.CreateUser(t, "alice")
	bob, bobToken := b.CreateUser(t, "bob")

	status, body := doJSON(t, b.App, http.MethodPost, "/api/connections", aliceToken, models.CreateConnectionRequest{ReceiverID: bob.ID})
	require.Equal(t, http.StatusCreated, status)
	edge := decode[models.ConnectionEdge](t, body)
	path := fmt.Sprintf("/api/connections/%d", edge.ID)

	status, _ = doJSON(t, b.App, http.MethodPatch, path, bobToken, models.UpdateConnectionRequest{Status: "blocked"})
	assert.Equal(t, http.StatusBadRequest, status)

	// The requester withdrawing uses the same transition as the receiver declining.
	status, _ = doJSON(t, b.App, http.MethodPatch, path, aliceToken, models.UpdateConnectionRequest{Status: models.ConnectionStatusRejected})
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = doJSON(t, b.App, http.MethodPatch, path, bobToken, models.UpdateConnectionRequest{Status: models.ConnectionStatusAccepted})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateConnectionValidation(t *testing.T) {
	b := testutil.NewBackend(t)
	alice, aliceToken := b.CreateUser(t, "alice")

	status, _ := doJSON(t, b.App, http.MethodPost, "/api/connections", aliceToken, models.CreateConnectionRequest{ReceiverID: alice.ID})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, b.App, http.MethodPost, "/api/connections", aliceToken, models.CreateConnectionRequest{ReceiverID: 4242})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, b.App, http.MethodGet, "/api/connections/status/abc", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMessagingUnreadAndMarkRead(t *testing.T) {
	b := testutil.NewBackend(t)
	alice, aliceToken := b.CreateUser(t, "alice")
	bob, bobToken := b.CreateUser(t, "bob")

	status, body := doJSON(t, b.App, http.MethodPost, "/api/messages", aliceToken,
		models.SendMessageRequest{SenderID: alice.ID, ReceiverID: bob.ID, Content: "hi"})
	require.Equal(t, http.StatusCreated, status, string(body))
	sent := decode[models.Message](t, body)
	assert.NotZero(t, sent.ID)
	assert.Nil(t, sent.ReadAt)

	status, body = doJSON(t, b.App, http.MethodGet, "/api/conversations", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	aliceList := decode[[]models.ConversationSummary](t, body)
	require.Len(t, aliceList, 1)
	assert.Equal(t, bob.ID, aliceList[0].CounterpartID)
	assert.Equal(t, 0, aliceList[0].UnreadCount, "outgoing messages are never unread for the sender")

	status, body = doJSON(t, b.App, http.MethodGet, "/api/conversations", bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	bobList := decode[[]models.ConversationSummary](t, body)
	require.Len(t, bobList, 1)
	assert.Equal(t, 1, bobList[0].UnreadCount)
	assert.Equal(t, "hi", bobList[0].LastMessage.Content)

	status, body = doJSON(t, b.App, http.MethodGet, fmt.Sprintf("/api/messages/%d", alice.ID), bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	thread := decode[[]models.Message](t, body)
	require.Len(t, thread, 1)
	assert.Equal(t, sent.ID, thread[0].ID)

	for _, want := range []int64{1, 0} {
		status, body = doJSON(t, b.App, http.MethodPost, "/api/messages/mark-as-read", bobToken, models.MarkAsReadRequest{OtherUserID: alice.ID})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, want, decode[models.MarkAsReadResponse](t, body).Updated)
	}

	status, body = doJSON(t, b.App, http.MethodGet, "/api/conversations", bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, decode[[]models.ConversationSummary](t, body)[0].UnreadCount)
}

func TestSendMessageValidation(t *testing.T) {
	b := testutil.NewBackend(t)
	alice, aliceToken := b.CreateUser(t, "alice")
	bob, _ := b.CreateUser(t, "bob")

	tests := []struct {
		name   string
		req    models.SendMessageRequest
		status int
	}{
		{"sender mismatch", models.SendMessageRequest{SenderID: bob.ID, ReceiverID: bob.ID, Content: "x"}, http.StatusForbidden},
		{"empty content", models.SendMessageRequest{SenderID: alice.ID, ReceiverID: bob.ID, Content: "   "}, http.StatusBadRequest},
		{"to self", models.SendMessageRequest{ReceiverID: alice.ID, Content: "x"}, http.StatusBadRequest},
		{"unknown receiver", models.SendMessageRequest{ReceiverID: 999, Content: "x"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := doJSON(t, b.App, http.MethodPost, "/api/messages", aliceToken, tt.req)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestConversationsMostRecentFirst(t *testing.T) {
	b := testutil.NewBackend(t)
	alice, aliceToken := b.CreateUser(t, "alice")
	bob, _ := b.CreateUser(t, "bob")
	_, carolToken := b.CreateUser(t, "carol")

	status, _ := doJSON(t, b.App, http.MethodPost, "/api/messages", carolToken, models.SendMessageRequest{ReceiverID: alice.ID, Content: "first"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = doJSON(t, b.App, http.MethodPost, "/api/messages", aliceToken, models.SendMessageRequest{ReceiverID: bob.ID, Content: "second"})
	require.Equal(t, http.StatusCreated, status)

	status, body := doJSON(t, b.App, http.MethodGet, "/api/conversations", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[[]models.ConversationSummary](t, body)
	require.Len(t, list, 2)
	assert.Equal(t, bob.ID, list[0].CounterpartID)
	assert.Equal(t, 0, list[0].UnreadCount)
	assert.Equal(t, 1, list[1].UnreadCount)
}
