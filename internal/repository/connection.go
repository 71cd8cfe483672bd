package repository

import (
	"context"
	"errors"
	"time"

	"proconnect/internal/models"
	"proconnect/internal/observability"

	"gorm.io/gorm"
)

// ConnectionRepository defines the interface for connection edge operations.
// Transition methods are conditional updates: they report false when the edge
// is missing, no longer pending, or the caller holds the wrong role.
type ConnectionRepository interface {
	Create(ctx context.Context, edge *models.ConnectionEdge) error
	GetByID(ctx context.Context, id uint) (*models.ConnectionEdge, error)
	GetBetween(ctx context.Context, userID1, userID2 uint) (*models.ConnectionEdge, error)
	ListAccepted(ctx context.Context, userID uint) ([]models.ConnectionEdge, error)
	ListPendingReceived(ctx context.Context, userID uint) ([]models.ConnectionEdge, error)
	ListPendingSent(ctx context.Context, userID uint) ([]models.ConnectionEdge, error)
	AcceptPending(ctx context.Context, edgeID, receiverID uint) (bool, error)
	DeletePending(ctx context.Context, edgeID, userID uint, role models.ConnectionRole) (bool, error)
}

type connectionRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db, log: observability.NewRepoLogger("connections")}
}

// Create inserts a pending edge. The unordered pair index rejects a second edge
// for the same two users in either direction.
func (r *connectionRepository) Create(ctx context.Context, edge *models.ConnectionEdge) error {
	defer observability.TrackQuery("create", "connections")()
	if edge.Status == "" {
		edge.Status = models.ConnectionStatusPending
	}
	if err := r.db.WithContext(ctx).Create(edge).Error; err != nil {
		if isUniqueViolation(err) {
			return models.NewAlreadyConnectedError("a connection already exists between these users")
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogWrite(ctx, "create", map[string]interface{}{
		"edge_id":      edge.ID,
		"requester_id": edge.RequesterID,
		"receiver_id":  edge.ReceiverID,
	})
	return nil
}

func (r *connectionRepository) GetByID(ctx context.Context, id uint) (*models.ConnectionEdge, error) {
	defer observability.TrackQuery("get_by_id", "connections")()
	var edge models.ConnectionEdge
	if err := r.db.WithContext(ctx).First(&edge, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Connection", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &edge, nil
}

// GetBetween returns the edge for the unordered pair, or nil when none exists.
func (r *connectionRepository) GetBetween(ctx context.Context, userID1, userID2 uint) (*models.ConnectionEdge, error) {
	defer observability.TrackQuery("get_between", "connections")()
	low, high := models.OrderedPair(userID1, userID2)

	var edge models.ConnectionEdge
	if err := r.db.WithContext(ctx).
		Where("pair_low = ? AND pair_high = ?", low, high).
		First(&edge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &edge, nil
}

func (r *connectionRepository) ListAccepted(ctx context.Context, userID uint) ([]models.ConnectionEdge, error) {
	return r.list(ctx, "list_accepted",
		r.db.WithContext(ctx).Where("(requester_id = ? OR receiver_id = ?) AND status = ?",
			userID, userID, models.ConnectionStatusAccepted))
}

func (r *connectionRepository) ListPendingReceived(ctx context.Context, userID uint) ([]models.ConnectionEdge, error) {
	return r.list(ctx, "list_pending_received",
		r.db.WithContext(ctx).Where("receiver_id = ? AND status = ?", userID, models.ConnectionStatusPending))
}

func (r *connectionRepository) ListPendingSent(ctx context.Context, userID uint) ([]models.ConnectionEdge, error) {
	return r.list(ctx, "list_pending_sent",
		r.db.WithContext(ctx).Where("requester_id = ? AND status = ?", userID, models.ConnectionStatusPending))
}

func (r *connectionRepository) list(_ context.Context, op string, q *gorm.DB) ([]models.ConnectionEdge, error) {
	defer observability.TrackQuery(op, "connections")()
	edges := []models.ConnectionEdge{}
	if err := q.Order("updated_at DESC, id DESC").Find(&edges).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return edges, nil
}

func (r *connectionRepository) AcceptPending(ctx context.Context, edgeID, receiverID uint) (bool, error) {
	defer observability.TrackQuery("accept", "connections")()
	res := r.db.WithContext(ctx).
		Model(&models.ConnectionEdge{}).
		Where("id = ? AND receiver_id = ? AND status = ?", edgeID, receiverID, models.ConnectionStatusPending).
		Updates(map[string]interface{}{
			"status":     models.ConnectionStatusAccepted,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "accept")
		return false, models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	r.log.LogWrite(ctx, "accept", map[string]interface{}{"edge_id": edgeID})
	return true, nil
}

// DeletePending removes a pending edge. RoleReceiver rejects, RoleRequester cancels.
func (r *connectionRepository) DeletePending(ctx context.Context, edgeID, userID uint, role models.ConnectionRole) (bool, error) {
	defer observability.TrackQuery("delete_pending", "connections")()
	column := "receiver_id"
	if role == models.RoleRequester {
		column = "requester_id"
	}

	res := r.db.WithContext(ctx).
		Where("id = ? AND "+column+" = ? AND status = ?", edgeID, userID, models.ConnectionStatusPending).
		Delete(&models.ConnectionEdge{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "delete_pending")
		return false, models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	r.log.LogWrite(ctx, "delete_pending", map[string]interface{}{"edge_id": edgeID, "role": string(role)})
	return true, nil
}
