package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/packhouse-erp/packhouse/internal/shared"
)

type stubRepo struct {
	users map[string]*User
}

func (r *stubRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	user, ok := r.users[email]
	if !ok {
		return nil, shared.NewError(shared.CodeNotFound, "user not found")
	}
	return user, nil
}

func newTestHandler(t *testing.T) (*Handler, *shared.SessionManager) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &stubRepo{users: map[string]*User{
		"ops@packhouse.test": {ID: 42, Email: "ops@packhouse.test", PasswordHash: string(hash), IsActive: true},
		"gone@packhouse.test": {ID: 43, Email: "gone@packhouse.test", PasswordHash: string(hash), IsActive: false},
	}}

	sessions := shared.NewSessionManager(client, "packhouse_session", "test-secret", time.Hour, false)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, NewService(repo), sessions, shared.NewCSRFManager("csrf-secret"), validator.New())
	return h, sessions
}

func doLogin(t *testing.T, h *Handler, sessions *shared.SessionManager, body string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	sess, err := sessions.Load(req.Context(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	rec := httptest.NewRecorder()
	h.handleLogin(rec, req)
	return rec, sess
}

func TestLoginSuccessBindsSessionUser(t *testing.T) {
	h, sessions := newTestHandler(t)

	rec, sess := doLogin(t, h, sessions, `{"email":"ops@packhouse.test","password":"correct-horse"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "42", sess.User())
	require.Contains(t, rec.Body.String(), `"csrfToken"`)
	require.NotEmpty(t, sess.Get(shared.CSRFSessionKey))
}

func TestLoginWrongPassword(t *testing.T) {
	h, sessions := newTestHandler(t)

	rec, sess := doLogin(t, h, sessions, `{"email":"ops@packhouse.test","password":"wrong-password"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, sess.User())
}

func TestLoginInactiveAccount(t *testing.T) {
	h, sessions := newTestHandler(t)

	rec, _ := doLogin(t, h, sessions, `{"email":"gone@packhouse.test","password":"correct-horse"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginUnknownAccountSameError(t *testing.T) {
	h, sessions := newTestHandler(t)

	rec, _ := doLogin(t, h, sessions, `{"email":"nobody@packhouse.test","password":"correct-horse"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid credentials")
}

func TestLoginValidation(t *testing.T) {
	h, sessions := newTestHandler(t)

	rec, _ := doLogin(t, h, sessions, `{"email":"not-an-email","password":"short"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	h, sessions := newTestHandler(t)

	_, sess := doLogin(t, h, sessions, `{"email":"ops@packhouse.test","password":"correct-horse"}`)
	require.Equal(t, "42", sess.User())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	h.handleLogout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, sessions.Commit(req.Context(), rec, req, sess))
	// The destroyed session's cookie is cleared.
	require.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}
