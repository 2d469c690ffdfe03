package services

import (
	"context"
	"fmt"
	"time"

	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/user"
)

// UserService manages user rows. Authentication itself is an external
// contract; this only ensures a tenant row exists for a username.
type UserService struct {
	client *ent.Client
}

// NewUserService creates a new UserService.
func NewUserService(client *ent.Client) *UserService {
	return &UserService{client: client}
}

// EnsureUser returns the user row for id, creating it on first sight.
func (s *UserService) EnsureUser(httpCtx context.Context, id, displayName string) (*ent.User, error) {
	if id == "" {
		return nil, NewValidationError("id", "required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := s.client.User.Get(ctx, id)
	if err == nil {
		return u, nil
	}
	if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if displayName == "" {
		displayName = id
	}
	u, err = s.client.User.Create().
		SetID(id).
		SetDisplayName(displayName).
		Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			// Lost a creation race; the row exists now.
			return s.client.User.Get(ctx, id)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetUser returns one user row.
func (s *UserService) GetUser(ctx context.Context, id string) (*ent.User, error) {
	u, err := s.client.User.Query().
		Where(user.ID(id)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}
