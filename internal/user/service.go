package user

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/customsway/backend-cargo/internal/common"
)

// The bootstrap account cannot be locked or deleted; losing it would lock
// everyone out.
const protectedUsername = "admin"

// Roles an account can hold.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Accounts is the store surface the service depends on.
type Accounts interface {
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id uuid.UUID) (User, error)
	Create(ctx context.Context, username, passwordHash, role string) (User, error)
	SetLocked(ctx context.Context, id uuid.UUID, locked bool) (User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, mustChange bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service implements account management rules over the store.
type Service struct {
	Store Accounts
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.Store.List(ctx)
}

// Create adds an account with a freshly hashed password.
func (s *Service) Create(ctx context.Context, username, password, role string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, common.NewAppError("BAD_REQUEST", "username and password are required", http.StatusBadRequest, nil)
	}
	if len(password) < 8 {
		return User{}, common.NewAppError("WEAK_PASSWORD", "password must be at least 8 characters", http.StatusBadRequest, nil)
	}
	role = strings.TrimSpace(role)
	if role == "" {
		role = RoleUser
	}
	if role != RoleAdmin && role != RoleUser {
		return User{}, common.NewAppError("BAD_REQUEST", "role must be admin or user", http.StatusBadRequest, nil)
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return User{}, err
	}
	created, err := s.Store.Create(ctx, username, hash, role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, common.NewAppError("CONFLICT", "username is already taken", http.StatusConflict, err)
		}
		return User{}, err
	}
	return created, nil
}

// SetLocked locks or unlocks an account.
func (s *Service) SetLocked(ctx context.Context, id uuid.UUID, locked bool) (User, error) {
	existing, err := s.Store.Get(ctx, id)
	if err != nil {
		return User{}, mapNotFound(err)
	}
	if existing.Username == protectedUsername {
		return User{}, common.NewAppError("FORBIDDEN", "the admin account cannot be locked", http.StatusForbidden, nil)
	}
	updated, err := s.Store.SetLocked(ctx, id, locked)
	if err != nil {
		return User{}, mapNotFound(err)
	}
	return updated, nil
}

// ResetPassword sets a new password and forces a change on next login.
func (s *Service) ResetPassword(ctx context.Context, id uuid.UUID, password string) error {
	if len(password) < 8 {
		return common.NewAppError("WEAK_PASSWORD", "password must be at least 8 characters", http.StatusBadRequest, nil)
	}
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return err
	}
	return mapNotFound(s.Store.UpdatePassword(ctx, id, hash, true))
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := s.Store.Get(ctx, id)
	if err != nil {
		return mapNotFound(err)
	}
	if existing.Username == protectedUsername {
		return common.NewAppError("FORBIDDEN", "the admin account cannot be deleted", http.StatusForbidden, nil)
	}
	return mapNotFound(s.Store.Delete(ctx, id))
}

func mapNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return common.NewAppError("NOT_FOUND", "user not found", http.StatusNotFound, err)
	}
	return err
}
