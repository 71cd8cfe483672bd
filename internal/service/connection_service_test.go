package service

import (
	"context"
	"testing"

	"proconnect/internal/models"
	"proconnect/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingEdge(id, requester, receiver uint) *models.ConnectionEdge {
	return &models.ConnectionEdge{ID: id, RequesterID: requester, ReceiverID: receiver, Status: models.ConnectionStatusPending}
}

func TestConnectionService_SendRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("self request is a validation error", func(t *testing.T) {
		svc := NewConnectionService(&connRepoStub{}, anyUser(), nil)
		_, err := svc.SendRequest(ctx, 1, 1, "")
		assert.True(t, models.IsCode(err, models.CodeValidation))
	})

	t.Run("unknown receiver", func(t *testing.T) {
		svc := NewConnectionService(&connRepoStub{}, anyUser(9), nil)
		_, err := svc.SendRequest(ctx, 1, 9, "")
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})

	t.Run("existing edge in either direction", func(t *testing.T) {
		repo := &connRepoStub{
			getBetweenFn: func(context.Context, uint, uint) (*models.ConnectionEdge, error) {
				return pendingEdge(5, 2, 1), nil
			},
		}
		svc := NewConnectionService(repo, anyUser(), nil)
		_, err := svc.SendRequest(ctx, 1, 2, "")
		require.Error(t, err)
		assert.True(t, models.IsCode(err, models.CodeAlreadyConnected))
		assert.Contains(t, err.Error(), "pending connection request from this user")
	})

	t.Run("creates pending edge and notifies receiver", func(t *testing.T) {
		var created *models.ConnectionEdge
		repo := &connRepoStub{
			getBetweenFn: func(context.Context, uint, uint) (*models.ConnectionEdge, error) { return nil, nil },
			createFn: func(_ context.Context, e *models.ConnectionEdge) error {
				e.ID = 10
				created = e
				return nil
			},
		}
		pub := &recordingPublisher{}
		svc := NewConnectionService(repo, anyUser(), pub)

		edge, err := svc.SendRequest(ctx, 1, 2, "  let's connect  ")
		require.NoError(t, err)
		assert.Same(t, created, edge)
		assert.Equal(t, models.ConnectionStatusPending, edge.Status)
		assert.Equal(t, "let's connect", edge.Message)
		assert.Equal(t, models.StatusPendingSent, models.DeriveStatus(1, edge))

		events := pub.all()
		require.Len(t, events, 1)
		assert.Equal(t, uint(2), events[0].userID)
		assert.Equal(t, notifications.EventConnectionRequested, events[0].event.Type)
	})

	t.Run("lost race on unique pair", func(t *testing.T) {
		repo := &connRepoStub{
			getBetweenFn: func(context.Context, uint, uint) (*models.ConnectionEdge, error) { return nil, nil },
			createFn: func(context.Context, *models.ConnectionEdge) error {
				return models.NewAlreadyConnectedError("a connection already exists between these users")
			},
		}
		svc := NewConnectionService(repo, anyUser(), nil)
		_, err := svc.SendRequest(ctx, 1, 2, "")
		assert.True(t, models.IsCode(err, models.CodeAlreadyConnected))
	})
}

func TestConnectionService_AcceptRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("receiver accepts", func(t *testing.T) {
		repo := &connRepoStub{
			acceptPendingFn: func(_ context.Context, edgeID, receiverID uint) (bool, error) {
				assert.Equal(t, uint(3), edgeID)
				assert.Equal(t, uint(2), receiverID)
				return true, nil
			},
			getByIDFn: func(context.Context, uint) (*models.ConnectionEdge, error) {
				e := pendingEdge(3, 1, 2)
				e.Status = models.ConnectionStatusAccepted
				return e, nil
			},
		}
		pub := &recordingPublisher{}
		edge, err := NewConnectionService(repo, anyUser(), pub).AcceptRequest(ctx, 2, 3)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConnected, models.DeriveStatus(1, edge))
		assert.Equal(t, models.StatusConnected, models.DeriveStatus(2, edge))
		require.Len(t, pub.all(), 1)
		assert.Equal(t, uint(1), pub.all()[0].userID)
	})

	t.Run("requester cannot accept", func(t *testing.T) {
		repo := &connRepoStub{
			acceptPendingFn: func(context.Context, uint, uint) (bool, error) { return false, nil },
			getByIDFn: func(context.Context, uint) (*models.ConnectionEdge, error) {
				return pendingEdge(3, 1, 2), nil
			},
		}
		_, err := NewConnectionService(repo, anyUser(), nil).AcceptRequest(ctx, 1, 3)
		assert.True(t, models.IsCode(err, models.CodeInvalidTransition))
	})

	t.Run("already accepted", func(t *testing.T) {
		repo := &connRepoStub{
			acceptPendingFn: func(context.Context, uint, uint) (bool, error) { return false, nil },
			getByIDFn: func(context.Context, uint) (*models.ConnectionEdge, error) {
				e := pendingEdge(3, 1, 2)
				e.Status = models.ConnectionStatusAccepted
				return e, nil
			},
		}
		_, err := NewConnectionService(repo, anyUser(), nil).AcceptRequest(ctx, 2, 3)
		assert.True(t, models.IsCode(err, models.CodeInvalidTransition))
	})

	t.Run("edge gone", func(t *testing.T) {
		repo := &connRepoStub{
			acceptPendingFn: func(context.Context, uint, uint) (bool, error) { return false, nil },
			getByIDFn: func(_ context.Context, id uint) (*models.ConnectionEdge, error) {
				return nil, models.NewNotFoundError("Connection", id)
			},
		}
		_, err := NewConnectionService(repo, anyUser(), nil).AcceptRequest(ctx, 2, 3)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})

	t.Run("outsider sees not found", func(t *testing.T) {
		repo := &connRepoStub{
			acceptPendingFn: func(context.Context, uint, uint) (bool, error) { return false, nil },
			getByIDFn: func(context.Context, uint) (*models.ConnectionEdge, error) {
				return pendingEdge(3, 1, 2), nil
			},
		}
		_, err := NewConnectionService(repo, anyUser(), nil).AcceptRequest(ctx, 7, 3)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})
}

func TestConnectionService_ResolveRequest(t *testing.T) {
	ctx := context.Background()

	resolveWith := func(edge *models.ConnectionEdge, deleted bool) (*ConnectionService, *[]models.ConnectionRole, *recordingPublisher) {
		roles := &[]models.ConnectionRole{}
		repo := &connRepoStub{
			getByIDFn: func(context.Context, uint) (*models.ConnectionEdge, error) { return edge, nil },
			deletePendingFn: func(_ context.Context, _ uint, _ uint, role models.ConnectionRole) (bool, error) {
				*roles = append(*roles, role)
				return deleted, nil
			},
		}
		pub := &recordingPublisher{}
		return NewConnectionService(repo, anyUser(), pub), roles, pub
	}

	t.Run("receiver rejects", func(t *testing.T) {
		svc, roles, pub := resolveWith(pendingEdge(4, 1, 2), true)
		_, role, err := svc.ResolveRequest(ctx, 2, 4)
		require.NoError(t, err)
		assert.Equal(t, models.RoleReceiver, role)
		assert.Equal(t, []models.ConnectionRole{models.RoleReceiver}, *roles)
		require.Len(t, pub.all(), 1)
		assert.Equal(t, uint(1), pub.all()[0].userID)
		assert.Equal(t, notifications.EventConnectionRemoved, pub.all()[0].event.Type)
	})

	t.Run("requester cancels", func(t *testing.T) {
		svc, roles, _ := resolveWith(pendingEdge(4, 1, 2), true)
		_, role, err := svc.ResolveRequest(ctx, 1, 4)
		require.NoError(t, err)
		assert.Equal(t, models.RoleRequester, role)
		assert.Equal(t, []models.ConnectionRole{models.RoleRequester}, *roles)
	})

	t.Run("accepted edge cannot be resolved", func(t *testing.T) {
		e := pendingEdge(4, 1, 2)
		e.Status = models.ConnectionStatusAccepted
		svc, roles, _ := resolveWith(e, true)
		_, _, err := svc.ResolveRequest(ctx, 2, 4)
		assert.True(t, models.IsCode(err, models.CodeInvalidTransition))
		assert.Empty(t, *roles)
	})

	t.Run("outsider", func(t *testing.T) {
		svc, _, _ := resolveWith(pendingEdge(4, 1, 2), true)
		_, _, err := svc.ResolveRequest(ctx, 9, 4)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})

	t.Run("lost race after read", func(t *testing.T) {
		svc, _, pub := resolveWith(pendingEdge(4, 1, 2), false)
		_, _, err := svc.ResolveRequest(ctx, 2, 4)
		assert.True(t, models.IsCode(err, models.CodeInvalidTransition))
		assert.Empty(t, pub.all())
	})
}

func TestConnectionService_UpdateStatus(t *testing.T) {
	svc := NewConnectionService(&connRepoStub{}, anyUser(), nil)
	_, err := svc.UpdateStatus(context.Background(), 1, 2, models.ConnectionStatusPending)
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestConnectionService_StatusWith(t *testing.T) {
	repo := &connRepoStub{
		getBetweenFn: func(_ context.Context, a, b uint) (*models.ConnectionEdge, error) {
			if a == 1 && b == 2 {
				return pendingEdge(1, 1, 2), nil
			}
			return nil, nil
		},
	}
	svc := NewConnectionService(repo, anyUser(), nil)

	status, _, err := svc.StatusWith(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingSent, status)

	status, _, err = svc.StatusWith(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNone, status)
}
