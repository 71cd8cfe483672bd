package service

import (
	"context"
	"strings"

	"proconnect/internal/cache"
	"proconnect/internal/models"
	"proconnect/internal/repository"
	"proconnect/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// UserService handles accounts: creation, credential checks and discovery.
type UserService struct {
	userRepo repository.UserRepository
}

// CreateUserInput carries the fields for a new account.
type CreateUserInput struct {
	Username    string
	DisplayName string
	Headline    string
	Password    string
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	username := validation.NormalizeUsername(in.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}
	user := &models.User{
		Username:     username,
		DisplayName:  displayName,
		Headline:     strings.TrimSpace(in.Headline),
		PasswordHash: string(hash),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate returns the user when the password matches. Unknown users and bad
// passwords produce the same error.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = validation.NormalizeUsername(username)
	if username == "" || password == "" {
		return nil, models.NewValidationError("Username and password are required")
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthorizedError("Invalid credentials")
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	return user, nil
}

// GetUserByID reads through the profile cache.
func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	_, err := cache.CacheAside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		loaded, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		user = *loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SearchUsers lists users other than the viewer matching query.
func (s *UserService) SearchUsers(ctx context.Context, viewerID uint, query string, limit int) ([]models.User, error) {
	return s.userRepo.Search(ctx, query, viewerID, limit)
}
