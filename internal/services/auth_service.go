package services

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/repository"
)

type userStore interface {
	Insert(ctx context.Context, user *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, userID string) (*models.User, error)
	Exists(ctx context.Context, username, email string) (bool, error)
}

type AuthService struct {
	users           userStore
	startingBalance float64
}

func NewAuthService(users userStore, startingBalance float64) *AuthService {
	return &AuthService{users: users, startingBalance: startingBalance}
}

// Register creates a new user. The starting balance is the single seed
// value of the ledger: written once here and never re-seeded or mutated.
func (s *AuthService) Register(ctx context.Context, user *models.User) error {
	exists, err := s.users.Exists(ctx, user.Username, user.Email)
	if err != nil {
		return err
	}
	if exists {
		return errors.New("username or email already exists")
	}

	if err := user.HashPassword(); err != nil {
		return err
	}
	user.StartingBalance = s.startingBalance
	user.CreatedAt = time.Now().UTC()

	if err := s.users.Insert(ctx, user); err != nil {
		return err
	}
	log.Infof("✅ New user registered: %s", user.Username)
	return nil
}

// Login authenticates a user
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.New("invalid username or password")
		}
		return nil, err
	}

	if !user.CheckPassword(password) {
		return nil, errors.New("invalid username or password")
	}

	user.Password = ""
	return user, nil
}

// GetUserByID returns a user by their ID
func (s *AuthService) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Password = ""
	return user, nil
}
