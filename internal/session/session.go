// Package session owns one signed-in viewer's client state: the connection
// store, message threads, conversation index and the polling that feeds them.
// A Session is created at sign-in and discarded at sign-out; nothing is global.
package session

import (
	"context"
	"sync"

	"proconnect/internal/api"
	"proconnect/internal/config"
	"proconnect/internal/messaging"
	"proconnect/internal/models"
	"proconnect/internal/network"
	"proconnect/internal/observability"
	"proconnect/internal/syncer"
)

// Backend is the full API surface a session drives.
type Backend interface {
	network.Backend
	messaging.Backend
}

// Options tunes a session.
type Options struct {
	Intervals          syncer.Intervals
	ReconcileMaxCycles int
	ThreadPageSize     int
}

// OptionsFromConfig reads the client settings from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Intervals: syncer.Intervals{
			Summary: cfg.SummaryPollInterval,
			Thread:  cfg.ThreadPollInterval,
		},
		ReconcileMaxCycles: cfg.ReconcileMaxCycles,
		ThreadPageSize:     cfg.ThreadPageSize,
	}
}

// Session is the core the UI layer talks to.
type Session struct {
	viewer    models.User
	conns     *network.Service
	msgs      *messaging.Service
	scheduler *syncer.Scheduler
	log       *observability.SyncLogger

	noticeMu sync.Mutex
	notices  []models.Notice
}

// New builds a session for viewer on top of backend.
func New(viewer models.User, backend Backend, opts Options) *Session {
	s := &Session{
		viewer: viewer,
		log:    observability.NewSyncLogger("session", viewer.ID),
	}
	s.conns = network.NewService(backend, network.NewStore(viewer.ID), s.pushNotice)
	threads := messaging.NewThreadCache(viewer.ID, opts.ReconcileMaxCycles)
	s.msgs = messaging.NewService(backend, threads, messaging.NewIndex(threads), s.pushNotice)
	s.msgs.SetThreadLimit(opts.ThreadPageSize)
	s.scheduler = syncer.NewScheduler(viewer.ID, s.conns, s.msgs, opts.Intervals)
	return s
}

// SignIn authenticates against the API at cfg.APIBaseURL and loads the initial state.
func SignIn(ctx context.Context, cfg *config.Config, username, password string) (*Session, error) {
	client := api.NewClient(cfg.APIBaseURL, api.WithTimeout(cfg.HTTPTimeout))
	resp, err := client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	s := New(resp.User, client, OptionsFromConfig(cfg))
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn(ctx, "initial sync failed; continuing with empty state", err, nil)
	}
	s.log.Info(ctx, "signed in", map[string]interface{}{"username": resp.User.Username})
	return s, nil
}

// Viewer returns the signed-in user.
func (s *Session) Viewer() models.User {
	return s.viewer
}

func (s *Session) pushNotice(n models.Notice) {
	s.noticeMu.Lock()
	s.notices = append(s.notices, n)
	s.noticeMu.Unlock()
}

// Notices drains the benign reconciliation notices gathered since the last call.
func (s *Session) Notices() []models.Notice {
	s.noticeMu.Lock()
	defer s.noticeMu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

// Refresh pulls connections and the conversation feed once.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.conns.Refresh(ctx); err != nil {
		return err
	}
	return s.msgs.RefreshConversations(ctx)
}

// Start begins polling the conversation list.
func (s *Session) Start() {
	s.scheduler.ShowConversations()
}

// Pause stops polling the conversation list, e.g. while its view is hidden.
func (s *Session) Pause() {
	s.scheduler.HideConversations()
}

// SignOut stops every loop. The session must not be used afterwards.
func (s *Session) SignOut() {
	s.scheduler.Stop()
	s.log.Info(context.Background(), "signed out", nil)
}

// ConnectionStatus is the viewer's status toward counterpartID.
func (s *Session) ConnectionStatus(counterpartID uint) models.DerivedConnectionStatus {
	return s.conns.Store().StatusOf(counterpartID)
}

// SendConnectionRequest asks receiverID to connect.
func (s *Session) SendConnectionRequest(ctx context.Context, receiverID uint, message string) (*models.ConnectionEdge, error) {
	return s.conns.Send(ctx, receiverID, message)
}

// AcceptConnectionRequest accepts a received request.
func (s *Session) AcceptConnectionRequest(ctx context.Context, edgeID uint) (*models.ConnectionEdge, error) {
	return s.conns.Accept(ctx, edgeID)
}

// RejectOrCancel deletes a pending request: a reject when the viewer received it,
// a cancel when the viewer sent it.
func (s *Session) RejectOrCancel(ctx context.Context, edgeID uint) error {
	edge, ok := s.conns.Store().EdgeByID(edgeID)
	if !ok {
		return models.NewInvalidTransitionError("No such connection request")
	}
	role, _ := models.RoleOf(s.viewer.ID, &edge)
	return s.conns.Resolve(ctx, edgeID, role)
}

// PendingReceived lists requests awaiting the viewer's decision.
func (s *Session) PendingReceived() []models.ConnectionEdge {
	return s.conns.Store().PendingReceived()
}

// SentPending lists the viewer's outstanding requests.
func (s *Session) SentPending() []models.ConnectionEdge {
	return s.conns.Store().SentPending()
}

// Connections lists accepted connections.
func (s *Session) Connections() []models.ConnectionEdge {
	return s.conns.Store().Connected()
}

// OpenThread loads the thread, marks it read and keeps it polled until CloseThread
// or until another thread is opened.
func (s *Session) OpenThread(ctx context.Context, counterpartID uint) ([]models.Message, error) {
	_, err := s.scheduler.OpenThread(ctx, counterpartID)
	return s.msgs.Threads().Messages(counterpartID), err
}

// CloseThread stops polling the thread.
func (s *Session) CloseThread(counterpartID uint) {
	s.scheduler.CloseThread(counterpartID)
}

// Thread returns the rendered thread as currently known.
func (s *Session) Thread(counterpartID uint) []models.Message {
	return s.msgs.Threads().Messages(counterpartID)
}

// SendMessage sends content to counterpartID; the message shows up in the thread immediately.
func (s *Session) SendMessage(ctx context.Context, counterpartID uint, content string) (models.Message, error) {
	return s.msgs.Send(ctx, counterpartID, content)
}

// ResendMessage retries a failed send.
func (s *Session) ResendMessage(ctx context.Context, correlationID string) (models.Message, error) {
	return s.msgs.Resend(ctx, correlationID)
}

// DiscardMessage drops a failed send.
func (s *Session) DiscardMessage(counterpartID uint, correlationID string) bool {
	return s.msgs.Threads().Discard(counterpartID, correlationID)
}

// MarkRead marks the thread read.
func (s *Session) MarkRead(ctx context.Context, counterpartID uint) error {
	return s.msgs.MarkRead(ctx, counterpartID)
}

// ConversationList returns the conversation list, most recent first.
func (s *Session) ConversationList() []models.ConversationSummary {
	return s.msgs.Index().List()
}

// UnreadCountFor returns the unread count for one counterpart.
func (s *Session) UnreadCountFor(counterpartID uint) int {
	return s.msgs.Index().UnreadCountFor(counterpartID)
}

// TotalUnread sums unread counts across conversations.
func (s *Session) TotalUnread() int {
	return s.msgs.Index().TotalUnread()
}
