package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/customsway/backend-cargo/internal/common"
	"github.com/customsway/backend-cargo/internal/user"
)

type fakeDirectory struct {
	byID       map[uuid.UUID]user.User
	byUsername map[string]user.User
}

func newFakeDirectory(users ...user.User) *fakeDirectory {
	d := &fakeDirectory{
		byID:       map[uuid.UUID]user.User{},
		byUsername: map[string]user.User{},
	}
	for _, u := range users {
		d.byID[u.ID] = u
		d.byUsername[u.Username] = u
	}
	return d
}

func (d *fakeDirectory) Get(_ context.Context, id uuid.UUID) (user.User, error) {
	u, ok := d.byID[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (d *fakeDirectory) GetByUsername(_ context.Context, username string) (user.User, error) {
	u, ok := d.byUsername[username]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func newTestService(t *testing.T, users ...user.User) (*Service, *miniredis.Miniredis, *fakeDirectory) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	dir := newFakeDirectory(users...)
	svc, err := NewService(Config{
		Users:      dir,
		Redis:      client,
		Secret:     "test-secret-test-secret-test-1234",
		SessionTTL: time.Hour,
	})
	require.NoError(t, err)
	return svc, mr, dir
}

func testUser(t *testing.T, username, password string, locked bool) user.User {
	t.Helper()
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	require.NoError(t, err)
	return user.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
		IsLocked:     locked,
	}
}

func TestLoginAndAuthenticate(t *testing.T) {
	account := testUser(t, "ana", "correct-horse-1", false)
	svc, _, _ := newTestService(t, account)

	result, err := svc.Login(context.Background(), "ana", "correct-horse-1")
	require.NoError(t, err)
	require.Equal(t, account.ID, result.User.ID)
	require.NotEmpty(t, result.Token)

	session, err := svc.Authenticate(context.Background(), result.Token)
	require.NoError(t, err)
	require.Equal(t, account.ID, session.UserID)
	require.Equal(t, "admin", session.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newTestService(t, testUser(t, "ana", "correct-horse-1", false))

	_, err := svc.Login(context.Background(), "ana", "wrong")
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "INVALID_CREDENTIALS", appErr.Code)
	require.Equal(t, 401, appErr.HTTPStatus)
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "nobody", "whatever1")
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "INVALID_CREDENTIALS", appErr.Code)
}

func TestLoginLockedUser(t *testing.T) {
	svc, _, _ := newTestService(t, testUser(t, "ana", "correct-horse-1", true))

	_, err := svc.Login(context.Background(), "ana", "correct-horse-1")
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "USER_LOCKED", appErr.Code)
	require.Equal(t, 403, appErr.HTTPStatus)
}

func TestLogoutRevokesSession(t *testing.T) {
	account := testUser(t, "ana", "correct-horse-1", false)
	svc, _, _ := newTestService(t, account)

	result, err := svc.Login(context.Background(), "ana", "correct-horse-1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), result.Token))

	_, err = svc.Authenticate(context.Background(), result.Token)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "UNAUTHORIZED", appErr.Code)
}

func TestAuthenticateRejectsLockedAccount(t *testing.T) {
	account := testUser(t, "ana", "correct-horse-1", false)
	svc, _, dir := newTestService(t, account)

	result, err := svc.Login(context.Background(), "ana", "correct-horse-1")
	require.NoError(t, err)

	account.IsLocked = true
	dir.byID[account.ID] = account

	_, err = svc.Authenticate(context.Background(), result.Token)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "USER_LOCKED", appErr.Code)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	account := testUser(t, "ana", "correct-horse-1", false)
	svc, mr, _ := newTestService(t, account)

	base := time.Now()
	svc.WithNow(func() time.Time { return base })
	result, err := svc.Login(context.Background(), "ana", "correct-horse-1")
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return base.Add(2 * time.Hour) })
	mr.FastForward(2 * time.Hour)

	_, err = svc.Authenticate(context.Background(), result.Token)
	require.Error(t, err)
}

func TestMeReturnsCurrentUser(t *testing.T) {
	account := testUser(t, "ana", "correct-horse-1", false)
	svc, _, _ := newTestService(t, account)

	me, err := svc.Me(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, account.ID, me.ID)
	require.Equal(t, "ana", me.Username)
}

func TestMeDeletedUserIsNotFound(t *testing.T) {
	account := testUser(t, "ana", "correct-horse-1", false)
	svc, _, dir := newTestService(t, account)

	delete(dir.byID, account.ID)

	_, err := svc.Me(context.Background(), account.ID)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "NOT_FOUND", appErr.Code)
	require.Equal(t, 404, appErr.HTTPStatus)
}

func TestAuthenticateRejectsGarbageToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Authenticate(context.Background(), "not-a-token")
	require.Error(t, err)
}
