package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/customsway/backend-cargo/internal/common"
)

func TestRequireAuthWithoutCookie(t *testing.T) {
	svc, _, _ := newTestService(t)
	mw := Middleware{Service: svc, CookieName: "customs-way-session"}

	rr := httptest.NewRecorder()
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuthWithSession(t *testing.T) {
	account := testUser(t, "ana", "correct-horse-1", false)
	svc, _, _ := newTestService(t, account)
	mw := Middleware{Service: svc, CookieName: "customs-way-session"}

	result, err := svc.Login(context.Background(), "ana", "correct-horse-1")
	require.NoError(t, err)

	var gotID, gotRole string
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = common.UserID(r.Context())
		gotRole, _ = common.UserRole(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.AddCookie(&http.Cookie{Name: "customs-way-session", Value: result.Token})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, account.ID.String(), gotID)
	require.Equal(t, "admin", gotRole)
}

func TestRequireRoleForbidsNonAdmins(t *testing.T) {
	account := testUser(t, "ana", "correct-horse-1", false)
	account.Role = "user"
	svc, _, dir := newTestService(t)
	dir.byID[account.ID] = account
	dir.byUsername[account.Username] = account
	mw := Middleware{Service: svc, CookieName: "customs-way-session"}

	result, err := svc.Login(context.Background(), "ana", "correct-horse-1")
	require.NoError(t, err)

	handler := mw.RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.AddCookie(&http.Cookie{Name: "customs-way-session", Value: result.Token})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}
