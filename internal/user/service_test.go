package user

import (
	"context"
	"errors"
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/customsway/backend-cargo/internal/common"
)

type fakeAccounts struct {
	users     map[uuid.UUID]User
	createErr error
}

func newFakeAccounts(users ...User) *fakeAccounts {
	f := &fakeAccounts{users: map[uuid.UUID]User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeAccounts) List(_ context.Context) ([]User, error) {
	out := make([]User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeAccounts) Get(_ context.Context, id uuid.UUID) (User, error) {
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeAccounts) Create(_ context.Context, username, passwordHash, role string) (User, error) {
	if f.createErr != nil {
		return User{}, f.createErr
	}
	u := User{ID: uuid.New(), Username: username, PasswordHash: passwordHash, Role: role}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeAccounts) SetLocked(_ context.Context, id uuid.UUID, locked bool) (User, error) {
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.IsLocked = locked
	f.users[id] = u
	return u, nil
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string, mustChange bool) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.MustChangePassword = mustChange
	f.users[id] = u
	return nil
}

func (f *fakeAccounts) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.users[id]; !ok {
		return ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func requireAppError(t *testing.T, err error, code string, status int) {
	t.Helper()
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, code, appErr.Code)
	require.Equal(t, status, appErr.HTTPStatus)
}

func TestCreateHashesPassword(t *testing.T) {
	accounts := newFakeAccounts()
	svc := &Service{Store: accounts}

	created, err := svc.Create(context.Background(), " operaciones ", "segura-123", "")
	require.NoError(t, err)
	require.Equal(t, "operaciones", created.Username)
	require.Equal(t, RoleUser, created.Role)

	match, err := argon2id.ComparePasswordAndHash("segura-123", created.PasswordHash)
	require.NoError(t, err)
	require.True(t, match)
}

func TestCreateRejectsWeakPassword(t *testing.T) {
	svc := &Service{Store: newFakeAccounts()}
	_, err := svc.Create(context.Background(), "ana", "corta", RoleUser)
	requireAppError(t, err, "WEAK_PASSWORD", 400)
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	svc := &Service{Store: newFakeAccounts()}
	_, err := svc.Create(context.Background(), "ana", "segura-123", "superuser")
	requireAppError(t, err, "BAD_REQUEST", 400)
}

func TestCreateDuplicateUsername(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.createErr = &pgconn.PgError{Code: "23505"}
	svc := &Service{Store: accounts}

	_, err := svc.Create(context.Background(), "ana", "segura-123", RoleUser)
	requireAppError(t, err, "CONFLICT", 409)
}

func TestAdminAccountCannotBeLockedOrDeleted(t *testing.T) {
	admin := User{ID: uuid.New(), Username: "admin", Role: RoleAdmin}
	svc := &Service{Store: newFakeAccounts(admin)}

	_, err := svc.SetLocked(context.Background(), admin.ID, true)
	requireAppError(t, err, "FORBIDDEN", 403)

	err = svc.Delete(context.Background(), admin.ID)
	requireAppError(t, err, "FORBIDDEN", 403)
}

func TestSetLockedUnknownUser(t *testing.T) {
	svc := &Service{Store: newFakeAccounts()}
	_, err := svc.SetLocked(context.Background(), uuid.New(), true)
	requireAppError(t, err, "NOT_FOUND", 404)
}

func TestResetPasswordForcesChange(t *testing.T) {
	account := User{ID: uuid.New(), Username: "ana", Role: RoleUser}
	accounts := newFakeAccounts(account)
	svc := &Service{Store: accounts}

	require.NoError(t, svc.ResetPassword(context.Background(), account.ID, "nueva-clave-1"))
	require.True(t, accounts.users[account.ID].MustChangePassword)
	require.NotEmpty(t, accounts.users[account.ID].PasswordHash)
}
