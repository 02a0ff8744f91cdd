package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// User is an operator account. PasswordHash never leaves this package.
type User struct {
	ID                 uuid.UUID `json:"id"`
	Username           string    `json:"username"`
	PasswordHash       string    `json:"-"`
	Role               string    `json:"role"`
	IsLocked           bool      `json:"is_locked"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
}

// Store persists operator accounts.
type Store struct {
	Pool *pgxpool.Pool
}

const userColumns = `id, username, password_hash, role, is_locked, must_change_password, created_at`

// List returns all users, newest first.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Get returns one user by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return oneUser(s.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByUsername returns one user by username.
func (s *Store) GetByUsername(ctx context.Context, username string) (User, error) {
	return oneUser(s.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// Create inserts a user with an already-hashed password.
func (s *Store) Create(ctx context.Context, username, passwordHash, role string) (User, error) {
	return oneUser(s.Pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, role)
		 VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		username, passwordHash, role))
}

// SetLocked flips the lock flag.
func (s *Store) SetLocked(ctx context.Context, id uuid.UUID, locked bool) (User, error) {
	return oneUser(s.Pool.QueryRow(ctx,
		`UPDATE users SET is_locked = $2 WHERE id = $1 RETURNING `+userColumns,
		id, locked))
}

// UpdatePassword replaces a user's password hash.
func (s *Store) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, mustChange bool) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, must_change_password = $3 WHERE id = $1`,
		id, passwordHash, mustChange)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func oneUser(row pgx.Row) (User, error) {
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.IsLocked, &u.MustChangePassword, &u.CreatedAt)
	return u, err
}
