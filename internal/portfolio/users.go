package portfolio

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/storage"
	"go.uber.org/zap"
)

// CreatedUser carries the one-time view of a new user's API token.
type CreatedUser struct {
	User  models.User
	Token string
}

// UserService manages accounts and resolves API tokens.
type UserService struct {
	store  storage.Store
	logger *zap.Logger
}

// NewUserService creates a UserService.
func NewUserService(store storage.Store, logger *zap.Logger) *UserService {
	return &UserService{store: store, logger: logger.Named("users")}
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create adds a user with a freshly generated API token.
func (s *UserService) Create(ctx context.Context, username, email string, isAdmin bool) (*CreatedUser, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, invalid("username", "must not be empty")
	}
	email = strings.TrimSpace(email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, invalid("email", "%q is not an address", email)
		}
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	u := &models.User{Username: username, Email: email, APIToken: token, IsAdmin: isAdmin}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fromStore(err)
	}
	s.logger.Info("User created", zap.String("user_id", u.ID), zap.String("username", username), zap.Bool("admin", isAdmin))
	return &CreatedUser{User: *u, Token: token}, nil
}

// List returns every user.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users, err := s.store.ListUsers(ctx)
	return users, fromStore(err)
}

// Delete removes a user and everything they own. Users cannot delete
// themselves.
func (s *UserService) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return invalid("user", "cannot delete the current user")
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return fromStore(err)
	}
	s.logger.Info("User deleted", zap.String("user_id", id), zap.String("by", actorID))
	return nil
}

// Authenticate resolves an API token to its user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	u, err := s.store.GetUserByToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
