package service

import (
	"context"
	"testing"

	"proconnect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_CreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	stored := map[string]*models.User{}
	repo := &userRepoStub{
		createFn: func(_ context.Context, u *models.User) error {
			u.ID = uint(len(stored) + 1)
			stored[u.Username] = u
			return nil
		},
		getByUsernameFn: func(_ context.Context, name string) (*models.User, error) {
			if u, ok := stored[name]; ok {
				return u, nil
			}
			return nil, models.NewNotFoundError("User", name)
		},
	}
	svc := NewUserService(repo)

	user, err := svc.CreateUser(ctx, CreateUserInput{Username: "  Alice ", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice", user.DisplayName)
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	got, err := svc.Authenticate(ctx, "ALICE", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "alice", "wrong password")
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))

	_, err = svc.Authenticate(ctx, "nobody", "whatever1")
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))

	_, err = svc.Authenticate(ctx, "", "")
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestUserService_CreateUserValidation(t *testing.T) {
	svc := NewUserService(&userRepoStub{})

	_, err := svc.CreateUser(context.Background(), CreateUserInput{Username: "", Password: "longenough"})
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = svc.CreateUser(context.Background(), CreateUserInput{Username: "bob", Password: "short"})
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = svc.CreateUser(context.Background(), CreateUserInput{Username: "admin", Password: "longenough"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestUserService_GetUserByIDWithoutCache(t *testing.T) {
	svc := NewUserService(anyUser(5))

	u, err := svc.GetUserByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint(3), u.ID)

	_, err = svc.GetUserByID(context.Background(), 5)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}
