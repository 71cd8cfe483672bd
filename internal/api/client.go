// Package api is the client side of the connection and messaging HTTP contract.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"proconnect/internal/models"
	"proconnect/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Backend is the minimal contract the client core consumes.
type Backend interface {
	Login(ctx context.Context, username, password string) (*models.LoginResponse, error)
	SearchUsers(ctx context.Context, query string) ([]models.User, error)

	CreateConnection(ctx context.Context, receiverID uint, message string) (*models.ConnectionEdge, error)
	AcceptConnection(ctx context.Context, edgeID uint) (*models.ConnectionEdge, error)
	RejectConnection(ctx context.Context, edgeID uint) error
	ListConnections(ctx context.Context) ([]models.ConnectionEdge, error)
	ListPendingReceived(ctx context.Context) ([]models.ConnectionEdge, error)
	ListPendingSent(ctx context.Context) ([]models.ConnectionEdge, error)

	SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error)
	GetThread(ctx context.Context, counterpartID uint, limit int) ([]models.Message, error)
	GetConversations(ctx context.Context) ([]models.ConversationSummary, error)
	MarkAsRead(ctx context.Context, otherUserID uint) (int64, error)
}

// Client talks to the API over HTTP with a bearer token.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

var _ Backend = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithToken starts the client already authenticated.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient creates a client for baseURL, e.g. http://localhost:8375/api.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token used for subsequent calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.do(ctx, "login", http.MethodPost, "/auth/login", models.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// SearchUsers lists other users, filtered by query when it is not blank.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	path := "/users"
	if q := strings.TrimSpace(query); q != "" {
		path += "?q=" + url.QueryEscape(q)
	}
	var users []models.User
	if err := c.do(ctx, "search_users", http.MethodGet, path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateConnection sends a connection request to receiverID.
func (c *Client) CreateConnection(ctx context.Context, receiverID uint, message string) (*models.ConnectionEdge, error) {
	var edge models.ConnectionEdge
	body := models.CreateConnectionRequest{ReceiverID: receiverID, Message: message}
	if err := c.do(ctx, "create_connection", http.MethodPost, "/connections", body, &edge); err != nil {
		return nil, err
	}
	return &edge, nil
}

// AcceptConnection accepts a received pending request.
func (c *Client) AcceptConnection(ctx context.Context, edgeID uint) (*models.ConnectionEdge, error) {
	var edge models.ConnectionEdge
	if err := c.do(ctx, "accept_connection", http.MethodPost, fmt.Sprintf("/connections/%d/accept", edgeID), nil, &edge); err != nil {
		return nil, err
	}
	return &edge, nil
}

// RejectConnection deletes a pending edge; the server derives reject or cancel from the caller.
func (c *Client) RejectConnection(ctx context.Context, edgeID uint) error {
	return c.do(ctx, "reject_connection", http.MethodPost, fmt.Sprintf("/connections/%d/reject", edgeID), nil, nil)
}

// ListConnections returns the caller's accepted connections.
func (c *Client) ListConnections(ctx context.Context) ([]models.ConnectionEdge, error) {
	return c.listEdges(ctx, "list_connections", "/connections")
}

// ListPendingReceived returns requests awaiting the caller's decision.
func (c *Client) ListPendingReceived(ctx context.Context) ([]models.ConnectionEdge, error) {
	return c.listEdges(ctx, "list_pending", "/connections/pending")
}

// ListPendingSent returns the caller's outstanding requests.
func (c *Client) ListPendingSent(ctx context.Context) ([]models.ConnectionEdge, error) {
	return c.listEdges(ctx, "list_sent_pending", "/connections/sent-pending")
}

func (c *Client) listEdges(ctx context.Context, op, path string) ([]models.ConnectionEdge, error) {
	var edges []models.ConnectionEdge
	if err := c.do(ctx, op, http.MethodGet, path, nil, &edges); err != nil {
		return nil, err
	}
	return edges, nil
}

// SendMessage posts one direct message.
func (c *Client) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error) {
	var msg models.Message
	if err := c.do(ctx, "send_message", http.MethodPost, "/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetThread returns the newest messages with counterpartID, oldest first. limit 0 uses the server default.
func (c *Client) GetThread(ctx context.Context, counterpartID uint, limit int) ([]models.Message, error) {
	path := fmt.Sprintf("/messages/%d", counterpartID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var msgs []models.Message
	if err := c.do(ctx, "get_thread", http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetConversations returns the caller's conversation summaries.
func (c *Client) GetConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var list []models.ConversationSummary
	if err := c.do(ctx, "get_conversations", http.MethodGet, "/conversations", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkAsRead marks everything counterpart sent the caller as read and returns how many rows changed.
func (c *Client) MarkAsRead(ctx context.Context, otherUserID uint) (int64, error) {
	var resp models.MarkAsReadResponse
	if err := c.do(ctx, "mark_as_read", http.MethodPost, "/messages/mark-as-read", models.MarkAsReadRequest{OtherUserID: otherUserID}, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// do performs one JSON round trip. Every failure comes back as a *models.AppError.
func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) (err error) {
	span, ctx := observability.StartClientSpan(ctx, op, method, path)
	done := observability.TrackClientRequest(op)
	defer func() {
		done(err)
		span.SetError(err)
		span.End()
	}()

	var body io.Reader
	if in != nil {
		buf, mErr := json.Marshal(in)
		if mErr != nil {
			return models.NewValidationError("cannot encode request: " + mErr.Error())
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return models.NewInternalError(err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return models.NewNetworkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NewNetworkError(err)
	}

	if resp.StatusCode >= 400 {
		return classify(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return models.NewInternalError(fmt.Errorf("decode %s response: %w", op, err))
	}
	return nil
}
