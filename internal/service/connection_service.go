package service

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"proconnect/internal/models"
	"proconnect/internal/notifications"
	"proconnect/internal/observability"
	"proconnect/internal/repository"
)

const maxConnectionNoteLen = 300

// ConnectionService owns the server side of the connection state machine:
// none -> pending (send), pending -> accepted (accept), pending -> none (reject/cancel).
type ConnectionService struct {
	connRepo repository.ConnectionRepository
	userRepo repository.UserRepository
	notifier notifications.Publisher
}

// NewConnectionService returns a new ConnectionService. notifier may be nil.
func NewConnectionService(connRepo repository.ConnectionRepository, userRepo repository.UserRepository, notifier notifications.Publisher) *ConnectionService {
	return &ConnectionService{
		connRepo: connRepo,
		userRepo: userRepo,
		notifier: notifier,
	}
}

// SendRequest creates a pending edge from viewerID to receiverID.
func (s *ConnectionService) SendRequest(ctx context.Context, viewerID, receiverID uint, note string) (*models.ConnectionEdge, error) {
	edge, err := s.sendRequest(ctx, viewerID, receiverID, note)
	recordTransition("send", err)
	return edge, err
}

func (s *ConnectionService) sendRequest(ctx context.Context, viewerID, receiverID uint, note string) (*models.ConnectionEdge, error) {
	if receiverID == 0 {
		return nil, models.NewValidationError("receiverId is required")
	}
	if viewerID == receiverID {
		return nil, models.NewValidationError("Cannot send a connection request to yourself")
	}
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > maxConnectionNoteLen {
		return nil, models.NewValidationError("Connection note too long (max 300 characters)")
	}

	if _, err := s.userRepo.GetByID(ctx, receiverID); err != nil {
		return nil, err
	}

	existing, err := s.connRepo.GetBetween(ctx, viewerID, receiverID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewAlreadyConnectedError(alreadyConnectedMessage(viewerID, existing))
	}

	edge := &models.ConnectionEdge{
		RequesterID: viewerID,
		ReceiverID:  receiverID,
		Status:      models.ConnectionStatusPending,
		Message:     note,
	}
	// A concurrent request for the same pair loses on the unique pair index.
	if err := s.connRepo.Create(ctx, edge); err != nil {
		return nil, err
	}

	s.publish(ctx, receiverID, notifications.EventConnectionRequested, viewerID, edge)
	return edge, nil
}

func alreadyConnectedMessage(viewerID uint, edge *models.ConnectionEdge) string {
	switch models.DeriveStatus(viewerID, edge) {
	case models.StatusConnected:
		return "You are already connected"
	case models.StatusPendingSent:
		return "Connection request already sent"
	default:
		return "You already have a pending connection request from this user"
	}
}

// AcceptRequest moves a pending edge to accepted. Only the receiver may accept.
func (s *ConnectionService) AcceptRequest(ctx context.Context, viewerID, edgeID uint) (*models.ConnectionEdge, error) {
	edge, err := s.acceptRequest(ctx, viewerID, edgeID)
	recordTransition("accept", err)
	return edge, err
}

func (s *ConnectionService) acceptRequest(ctx context.Context, viewerID, edgeID uint) (*models.ConnectionEdge, error) {
	ok, err := s.connRepo.AcceptPending(ctx, edgeID, viewerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.explainRefusal(ctx, viewerID, edgeID, "accept")
	}

	edge, err := s.connRepo.GetByID(ctx, edgeID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, edge.RequesterID, notifications.EventConnectionAccepted, viewerID, edge)
	return edge, nil
}

// ResolveRequest deletes a pending edge. The viewer's role decides the meaning:
// the receiver rejects, the requester cancels.
func (s *ConnectionService) ResolveRequest(ctx context.Context, viewerID, edgeID uint) (*models.ConnectionEdge, models.ConnectionRole, error) {
	edge, role, err := s.resolveRequest(ctx, viewerID, edgeID)
	transition := "resolve"
	if role != "" {
		transition = "resolve_" + string(role)
	}
	recordTransition(transition, err)
	return edge, role, err
}

func (s *ConnectionService) resolveRequest(ctx context.Context, viewerID, edgeID uint) (*models.ConnectionEdge, models.ConnectionRole, error) {
	edge, err := s.connRepo.GetByID(ctx, edgeID)
	if err != nil {
		return nil, "", err
	}
	role, ok := models.RoleOf(viewerID, edge)
	if !ok {
		return nil, "", models.NewNotFoundError("Connection", edgeID)
	}
	if edge.Status != models.ConnectionStatusPending {
		return nil, role, models.NewInvalidTransitionError("Connection request is no longer pending")
	}

	deleted, err := s.connRepo.DeletePending(ctx, edgeID, viewerID, role)
	if err != nil {
		return nil, role, err
	}
	if !deleted {
		return nil, role, s.explainRefusal(ctx, viewerID, edgeID, string(role))
	}

	s.publish(ctx, edge.Counterpart(viewerID), notifications.EventConnectionRemoved, viewerID, edge)
	return edge, role, nil
}

// UpdateStatus applies a PATCH-style transition request.
func (s *ConnectionService) UpdateStatus(ctx context.Context, viewerID, edgeID uint, status models.ConnectionStatus) (*models.ConnectionEdge, error) {
	switch status {
	case models.ConnectionStatusAccepted:
		return s.AcceptRequest(ctx, viewerID, edgeID)
	case models.ConnectionStatusRejected:
		edge, _, err := s.ResolveRequest(ctx, viewerID, edgeID)
		return edge, err
	default:
		return nil, models.NewValidationError("status must be accepted or rejected")
	}
}

// explainRefusal turns a conditional update that matched nothing into NOT_FOUND or INVALID_TRANSITION.
func (s *ConnectionService) explainRefusal(ctx context.Context, viewerID, edgeID uint, action string) error {
	edge, err := s.connRepo.GetByID(ctx, edgeID)
	if err != nil {
		return err
	}
	if !edge.Involves(viewerID) {
		return models.NewNotFoundError("Connection", edgeID)
	}
	if edge.Status != models.ConnectionStatusPending {
		return models.NewInvalidTransitionError("Connection request is no longer pending")
	}
	return models.NewInvalidTransitionError("You cannot " + action + " this connection request")
}

// ListConnections returns accepted edges involving the viewer.
func (s *ConnectionService) ListConnections(ctx context.Context, viewerID uint) ([]models.ConnectionEdge, error) {
	return s.connRepo.ListAccepted(ctx, viewerID)
}

// ListPendingReceived returns pending requests the viewer may accept or reject.
func (s *ConnectionService) ListPendingReceived(ctx context.Context, viewerID uint) ([]models.ConnectionEdge, error) {
	return s.connRepo.ListPendingReceived(ctx, viewerID)
}

// ListPendingSent returns pending requests the viewer may cancel.
func (s *ConnectionService) ListPendingSent(ctx context.Context, viewerID uint) ([]models.ConnectionEdge, error) {
	return s.connRepo.ListPendingSent(ctx, viewerID)
}

// StatusWith derives the viewer's status toward another user.
func (s *ConnectionService) StatusWith(ctx context.Context, viewerID, otherID uint) (models.DerivedConnectionStatus, *models.ConnectionEdge, error) {
	if viewerID == otherID {
		return models.StatusNone, nil, nil
	}
	edge, err := s.connRepo.GetBetween(ctx, viewerID, otherID)
	if err != nil {
		return "", nil, err
	}
	return models.DeriveStatus(viewerID, edge), edge, nil
}

func (s *ConnectionService) publish(ctx context.Context, userID uint, kind notifications.EventType, actorID uint, edge *models.ConnectionEdge) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.PublishEvent(ctx, userID, notifications.Event{Type: kind, ActorID: actorID, Payload: edge})
	if err != nil {
		observability.GlobalLogger.WarnContext(ctx, "failed to publish connection event",
			slog.String("event", string(kind)),
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()))
	}
}

func recordTransition(transition string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if code := models.CodeOf(err); code != "" {
			outcome = strings.ToLower(code)
		}
	}
	observability.ConnectionTransitions.WithLabelValues(transition, outcome).Inc()
}
