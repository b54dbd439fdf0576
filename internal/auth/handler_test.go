package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mkeloo/loyalty-program/internal/auth"
	"github.com/mkeloo/loyalty-program/internal/shared"
	"github.com/mkeloo/loyalty-program/internal/view"
	_ "github.com/mkeloo/loyalty-program/testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	handler := auth.NewHandler(discardLogger(), auth.NewService(repo, time.Second), templates, sessionManager, csrfManager, nil, nil)
	return handler, sessionManager
}

func postLogin(t *testing.T, handler *auth.Handler, sessionManager *shared.SessionManager, email, password string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()

	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)
	if err := sessionManager.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res, sess
}

func TestLoginPage(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, &recordingRepo{})

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	handler.ShowLoginForTest(res, req)
	if err := sessionManager.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "<form") {
		t.Fatalf("expected login form in body")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := &recordingRepo{user: &auth.User{ID: 1, Email: "admin@test.local", PasswordHash: hashFor(t, "correctpass"), IsActive: true}}
	handler, sessionManager := newAuthHandler(t, repo)

	res, sess := postLogin(t, handler, sessionManager, "admin@test.local", "wrongpass")

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "invalid credentials") {
		t.Fatalf("expected credentials error in body, got: %s", res.Body.String())
	}
	if sess.User() != "" {
		t.Fatalf("session must not carry an identity after a failed login")
	}
	if len(repo.sessionsMade) != 0 {
		t.Fatalf("no session record should exist, got %v", repo.sessionsMade)
	}
	if repo.roleLookups != 0 {
		t.Fatalf("role must not be looked up when authentication fails")
	}
}

func TestLoginNonAdminRevokesSession(t *testing.T) {
	repo := &recordingRepo{
		user: &auth.User{ID: 7, Email: "staff@test.local", PasswordHash: hashFor(t, "pw"), IsActive: true},
		role: "support",
	}
	handler, sessionManager := newAuthHandler(t, repo)

	res, sess := postLogin(t, handler, sessionManager, "staff@test.local", "pw")

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), auth.NoAccessMessage) {
		t.Fatalf("expected fixed no-access message, got: %s", res.Body.String())
	}
	if sess.User() != "" {
		t.Fatalf("identity must be cleared after authorization rejects")
	}
	if len(repo.sessionsMade) != 1 || len(repo.sessionsKilled) != 1 {
		t.Fatalf("session record must be created then deleted, got made=%v killed=%v", repo.sessionsMade, repo.sessionsKilled)
	}
	if repo.sessionsKilled[0] != repo.sessionsMade[0] {
		t.Fatalf("the revoked session must be the one just created")
	}
}

// A failing role store is indistinguishable from a missing role: same
// message, same revoke.
func TestLoginRoleLookupFailureFailsClosed(t *testing.T) {
	repo := &recordingRepo{
		user:    &auth.User{ID: 7, Email: "staff@test.local", PasswordHash: hashFor(t, "pw"), IsActive: true},
		roleErr: context.DeadlineExceeded,
	}
	handler, sessionManager := newAuthHandler(t, repo)

	res, sess := postLogin(t, handler, sessionManager, "staff@test.local", "pw")

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), auth.NoAccessMessage) {
		t.Fatalf("expected fixed no-access message, got: %s", res.Body.String())
	}
	if sess.User() != "" {
		t.Fatalf("identity must be cleared when the role lookup fails")
	}
}

func TestLoginAdminAdmitted(t *testing.T) {
	repo := &recordingRepo{
		user: &auth.User{ID: 42, Email: "admin@test.local", PasswordHash: hashFor(t, "pw"), IsActive: true},
		role: auth.RoleAdmin,
	}
	handler, sessionManager := newAuthHandler(t, repo)

	res, sess := postLogin(t, handler, sessionManager, "admin@test.local", "pw")

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/dashboard" {
		t.Fatalf("expected redirect to /dashboard, got %q", loc)
	}
	if sess.User() != "42" {
		t.Fatalf("expected session bound to user 42, got %q", sess.User())
	}
	if len(repo.sessionsMade) != 1 {
		t.Fatalf("expected one session record, got %v", repo.sessionsMade)
	}
	if len(repo.sessionsKilled) != 0 {
		t.Fatalf("admitted session must not be revoked")
	}
}

func TestLogoutOnAnonymousSessionIsNoop(t *testing.T) {
	repo := &recordingRepo{}
	handler, sessionManager := newAuthHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	handler.HandleLogoutForTest(res, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/login" {
		t.Fatalf("expected redirect to /login, got %q", loc)
	}
	if len(repo.sessionsKilled) != 0 {
		t.Fatalf("nothing to revoke for an anonymous session")
	}
}
