package network

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"proconnect/internal/models"
	"proconnect/internal/observability"
)

const maxNoteLen = 300

// Backend is the subset of the API the connection service calls.
type Backend interface {
	CreateConnection(ctx context.Context, receiverID uint, message string) (*models.ConnectionEdge, error)
	AcceptConnection(ctx context.Context, edgeID uint) (*models.ConnectionEdge, error)
	RejectConnection(ctx context.Context, edgeID uint) error
	ListConnections(ctx context.Context) ([]models.ConnectionEdge, error)
	ListPendingReceived(ctx context.Context) ([]models.ConnectionEdge, error)
	ListPendingSent(ctx context.Context) ([]models.ConnectionEdge, error)
}

type opKind string

const (
	opSend    opKind = "send"
	opAccept  opKind = "accept"
	opResolve opKind = "resolve"
)

// inflight is an optimistic mutation whose backend call has not returned yet.
type inflight struct {
	kind opKind
	// next is the optimistic state; nil means the edge is gone.
	next *models.ConnectionEdge
	// prev is what to restore on rollback; nil means there was no edge.
	prev *models.ConnectionEdge
}

// Service applies connection transitions optimistically and reconciles them with the backend.
type Service struct {
	backend Backend
	store   *Store
	notify  func(models.Notice)
	log     *observability.SyncLogger
	now     func() time.Time

	mu       sync.Mutex
	inflight map[uint]inflight // keyed by counterpart
	// touched holds the store version of each counterpart's last local mutation
	touched    map[uint]uint64
	refreshing int
}

// NewService creates a connection service. notify receives benign reconciliation notices and may be nil.
func NewService(backend Backend, store *Store, notify func(models.Notice)) *Service {
	if notify == nil {
		notify = func(models.Notice) {}
	}
	return &Service{
		backend:  backend,
		store:    store,
		notify:   notify,
		log:      observability.NewSyncLogger("connections", store.ViewerID()),
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[uint]inflight),
		touched:  make(map[uint]uint64),
	}
}

// Store returns the edge store the service mutates.
func (s *Service) Store() *Store {
	return s.store
}

// Send requests a connection with receiverID. The pending edge is visible immediately.
func (s *Service) Send(ctx context.Context, receiverID uint, message string) (*models.ConnectionEdge, error) {
	viewer := s.store.ViewerID()
	if receiverID == 0 || receiverID == viewer {
		return nil, models.NewValidationError("a different receiver is required")
	}
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > maxNoteLen {
		return nil, models.NewValidationError("Connection note too long (max 300 characters)")
	}

	s.mu.Lock()
	if _, busy := s.inflight[receiverID]; busy {
		s.mu.Unlock()
		return nil, models.NewAlreadyConnectedError("A connection change with this user is already in progress")
	}
	if status := s.store.StatusOf(receiverID); status != models.StatusNone {
		s.mu.Unlock()
		return nil, models.NewAlreadyConnectedError(fmt.Sprintf("Connection status is already %s", status))
	}
	optimistic := models.ConnectionEdge{
		RequesterID: viewer,
		ReceiverID:  receiverID,
		Status:      models.ConnectionStatusPending,
		Message:     message,
		CreatedAt:   s.now(),
	}
	s.begin(receiverID, opSend, &optimistic, nil)
	s.mu.Unlock()

	span, ctx := observability.StartSyncSpan(ctx, "connections", "send")
	defer span.End()

	edge, err := s.backend.CreateConnection(ctx, receiverID, message)
	if err != nil {
		span.SetError(err)
		return nil, s.fail(ctx, receiverID, opSend, err)
	}
	s.commit(receiverID, edge)
	s.log.Info(ctx, "connection request sent", map[string]interface{}{"edge_id": edge.ID, "receiver_id": receiverID})
	return edge, nil
}

// Accept moves a received pending request to accepted.
func (s *Service) Accept(ctx context.Context, edgeID uint) (*models.ConnectionEdge, error) {
	s.mu.Lock()
	edge, ok := s.store.EdgeByID(edgeID)
	if !ok {
		s.mu.Unlock()
		return nil, models.NewInvalidTransitionError("No such connection request")
	}
	cp := edge.Counterpart(s.store.ViewerID())
	if _, busy := s.inflight[cp]; busy {
		s.mu.Unlock()
		return nil, models.NewInvalidTransitionError("A connection change with this user is already in progress")
	}
	if models.DeriveStatus(s.store.ViewerID(), &edge) != models.StatusPendingReceived {
		s.mu.Unlock()
		return nil, models.NewInvalidTransitionError("Only a received pending request can be accepted")
	}
	prev := edge
	next := edge
	next.Status = models.ConnectionStatusAccepted
	s.begin(cp, opAccept, &next, &prev)
	s.mu.Unlock()

	span, ctx := observability.StartSyncSpan(ctx, "connections", "accept")
	defer span.End()

	accepted, err := s.backend.AcceptConnection(ctx, edgeID)
	if err != nil {
		span.SetError(err)
		return nil, s.fail(ctx, cp, opAccept, err)
	}
	s.commit(cp, accepted)
	return accepted, nil
}

// Reject declines a received pending request.
func (s *Service) Reject(ctx context.Context, edgeID uint) error {
	return s.Resolve(ctx, edgeID, models.RoleReceiver)
}

// Cancel withdraws a sent pending request.
func (s *Service) Cancel(ctx context.Context, edgeID uint) error {
	return s.Resolve(ctx, edgeID, models.RoleRequester)
}

// Resolve deletes a pending edge. role says which side is acting and must match the viewer's side.
func (s *Service) Resolve(ctx context.Context, edgeID uint, role models.ConnectionRole) error {
	s.mu.Lock()
	edge, ok := s.store.EdgeByID(edgeID)
	if !ok {
		s.mu.Unlock()
		return models.NewInvalidTransitionError("No such connection request")
	}
	cp := edge.Counterpart(s.store.ViewerID())
	if _, busy := s.inflight[cp]; busy {
		s.mu.Unlock()
		return models.NewInvalidTransitionError("A connection change with this user is already in progress")
	}
	actual, _ := models.RoleOf(s.store.ViewerID(), &edge)
	if edge.Status != models.ConnectionStatusPending || actual != role {
		s.mu.Unlock()
		return models.NewInvalidTransitionError(fmt.Sprintf("Cannot %s this connection request", resolveVerb(role)))
	}
	prev := edge
	s.begin(cp, opResolve, nil, &prev)
	s.mu.Unlock()

	span, ctx := observability.StartSyncSpan(ctx, "connections", resolveVerb(role))
	defer span.End()

	if err := s.backend.RejectConnection(ctx, edgeID); err != nil {
		span.SetError(err)
		return s.fail(ctx, cp, opResolve, err)
	}
	s.commit(cp, nil)
	return nil
}

func resolveVerb(role models.ConnectionRole) string {
	if role == models.RoleRequester {
		return "cancel"
	}
	return "reject"
}

// Refresh pulls the authoritative edge set. Counterparts mutated locally after the
// fetch began, or still in flight, keep their local edge.
func (s *Service) Refresh(ctx context.Context) error {
	span, ctx := observability.StartSyncSpan(ctx, "connections", "refresh")
	defer span.End()

	s.mu.Lock()
	since := s.store.Version()
	s.refreshing++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.refreshing--
		s.mu.Unlock()
	}()

	var all []models.ConnectionEdge
	for _, list := range []func(context.Context) ([]models.ConnectionEdge, error){
		s.backend.ListConnections,
		s.backend.ListPendingReceived,
		s.backend.ListPendingSent,
	} {
		edges, err := list(ctx)
		if err != nil {
			span.SetError(err)
			return err
		}
		all = append(all, edges...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	local := make(map[uint]struct{}, len(s.inflight))
	for cp := range s.inflight {
		local[cp] = struct{}{}
	}
	for cp, v := range s.touched {
		if v > since {
			local[cp] = struct{}{}
		}
	}
	if len(local) > 0 {
		viewer := s.store.ViewerID()
		kept := all[:0]
		for _, e := range all {
			if _, ok := local[e.Counterpart(viewer)]; !ok {
				kept = append(kept, e)
			}
		}
		all = kept
		for cp := range local {
			if e, ok := s.store.EdgeFor(cp); ok {
				all = append(all, e)
			}
		}
	}
	s.store.ReplaceAll(all)

	// an older refresh still running may need marks this one has superseded
	if s.refreshing == 1 {
		for cp, v := range s.touched {
			if v <= since {
				delete(s.touched, cp)
			}
		}
	}
	return nil
}

// begin applies an optimistic state. Callers hold s.mu.
func (s *Service) begin(cp uint, kind opKind, next, prev *models.ConnectionEdge) {
	s.inflight[cp] = inflight{kind: kind, next: next, prev: prev}
	if next != nil {
		s.store.Put(*next)
	} else {
		s.store.RemoveCounterpart(cp)
	}
	s.touch(cp)
}

// touch records a local mutation of cp. Callers hold s.mu.
func (s *Service) touch(cp uint) {
	s.touched[cp] = s.store.Version()
}

// commit replaces the optimistic state with the server's answer; nil means deleted.
func (s *Service) commit(cp uint, edge *models.ConnectionEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, cp)
	if edge != nil {
		s.store.Put(*edge)
	} else {
		s.store.RemoveCounterpart(cp)
	}
	s.touch(cp)
}

// fail rolls the optimistic state back. Conflicts are races with the other side:
// the edge set is re-pulled and a benign notice is emitted.
func (s *Service) fail(ctx context.Context, cp uint, kind opKind, err error) error {
	s.mu.Lock()
	op := s.inflight[cp]
	delete(s.inflight, cp)
	if op.prev != nil {
		s.store.Put(*op.prev)
	} else {
		s.store.RemoveCounterpart(cp)
	}
	s.touch(cp)
	s.mu.Unlock()

	code := models.CodeOf(err)
	reason := strings.ToLower(code)
	if reason == "" {
		reason = "error"
	}
	observability.OptimisticRollbacks.WithLabelValues(string(kind), reason).Inc()

	switch {
	case code == models.CodeInvalidTransition || code == models.CodeAlreadyConnected ||
		(code == models.CodeNotFound && kind != opSend):
		s.log.Info(ctx, "connection changed on the other side; resyncing", map[string]interface{}{
			"counterpart_id": cp,
			"operation":      string(kind),
			"code":           code,
		})
		if rerr := s.Refresh(ctx); rerr != nil {
			s.log.Warn(ctx, "resync after conflict failed", rerr, nil)
		}
		s.notify(models.Notice{
			Kind:          models.NoticeAlreadyHandled,
			CounterpartID: cp,
			Text:          alreadyHandledText(kind, s.store.StatusOf(cp)),
		})
		if code == models.CodeNotFound {
			return &models.AppError{Code: models.CodeInvalidTransition, Message: "Connection request was already handled", Err: err}
		}
		return err
	case code == models.CodeNetworkFailure:
		s.log.Warn(ctx, "connection change failed; rolled back", err, map[string]interface{}{
			"counterpart_id": cp,
			"operation":      string(kind),
		})
	}
	return err
}

func alreadyHandledText(kind opKind, now models.DerivedConnectionStatus) string {
	switch now {
	case models.StatusConnected:
		return "You are already connected"
	case models.StatusPendingReceived:
		return "This user has already sent you a request"
	case models.StatusPendingSent:
		return "Your request is still pending"
	}
	if kind == opSend {
		return "This request could not be sent because the connection changed"
	}
	return "This request was already handled"
}
