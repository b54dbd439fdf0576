package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mkeloo/loyalty-program/internal/auth"
	"github.com/mkeloo/loyalty-program/internal/shared"
	_ "github.com/mkeloo/loyalty-program/testing"
)

// guardEnv bundles a guard with the broker and session manager it watches,
// all backed by one miniredis.
type guardEnv struct {
	guard  *auth.Guard
	broker *shared.Broker
	sm     *shared.SessionManager
}

func newGuardEnv(t *testing.T) *guardEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	broker := shared.NewBroker(context.Background(), client, discardLogger())
	t.Cleanup(func() { _ = broker.Close() })

	sm := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	return &guardEnv{
		guard:  auth.NewGuard(discardLogger(), broker, sm),
		broker: broker,
		sm:     sm,
	}
}

// authedSession returns a session bound to a user and persisted in Redis.
func (e *guardEnv) authedSession(t *testing.T) *shared.Session {
	t.Helper()
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := e.sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.SetUser("42")
	if err := e.sm.Commit(ctx, httptest.NewRecorder(), req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return sess
}

func requestWithSession(t *testing.T, target string, sess *shared.Session) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	return req
}

func TestGuardStateString(t *testing.T) {
	if auth.StateChecking.String() != "checking" || auth.StateAdmitted.String() != "admitted" || auth.StateRedirecting.String() != "redirecting" {
		t.Fatal("unexpected state names")
	}
}

func TestRequireSessionRedirectsAnonymous(t *testing.T) {
	env := newGuardEnv(t)

	protected := env.guard.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret dashboard content"))
	}))

	res := httptest.NewRecorder()
	protected.ServeHTTP(res, requestWithSession(t, "/dashboard", nil))

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/login" {
		t.Fatalf("expected redirect to /login, got %q", loc)
	}
	// No protected byte may reach the viewer before the redirect.
	if strings.Contains(res.Body.String(), "secret dashboard content") {
		t.Fatal("protected content leaked to an anonymous viewer")
	}
}

func TestRequireSessionAdmitsAuthenticated(t *testing.T) {
	env := newGuardEnv(t)
	sess := env.authedSession(t)

	called := false
	protected := env.guard.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	res := httptest.NewRecorder()
	protected.ServeHTTP(res, requestWithSession(t, "/dashboard", sess))

	if !called {
		t.Fatal("expected protected handler to run")
	}
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestWatchRejectsAnonymous(t *testing.T) {
	env := newGuardEnv(t)

	res := httptest.NewRecorder()
	env.guard.Watch(res, requestWithSession(t, "/dashboard/events", nil))

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestWatchRedirectsOnceOnSignOut(t *testing.T) {
	env := newGuardEnv(t)
	sess := env.authedSession(t)

	res := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		env.guard.Watch(res, requestWithSession(t, "/dashboard/events", sess))
	}()

	// Wait until the watcher has registered with the broker.
	waitFor(t, func() bool { return env.broker.Subscribers() == 1 })

	evt := shared.SessionEvent{Kind: shared.SessionSignedOut, SessionID: sess.ID, UserID: "42"}
	if err := env.broker.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not terminate after sign-out event")
	}

	body := res.Body.String()
	if got := strings.Count(body, "event: redirect"); got != 1 {
		t.Fatalf("expected exactly one redirect event, got %d in %q", got, body)
	}
	if !strings.Contains(body, "data: /login") {
		t.Fatalf("expected login target in redirect event, got %q", body)
	}
	waitFor(t, func() bool { return env.broker.Subscribers() == 0 })
}

func TestWatchIgnoresOtherSessions(t *testing.T) {
	env := newGuardEnv(t)
	sess := env.authedSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := requestWithSession(t, "/dashboard/events", sess).WithContext(
		shared.ContextWithSession(ctx, sess))

	res := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		env.guard.Watch(res, req)
	}()

	waitFor(t, func() bool { return env.broker.Subscribers() == 1 })

	other := shared.SessionEvent{Kind: shared.SessionSignedOut, SessionID: "someone-else", UserID: "7"}
	if err := env.broker.Publish(context.Background(), other); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-done:
		t.Fatal("watch must not terminate on another session's event")
	case <-time.After(200 * time.Millisecond):
	}

	// Client disconnect releases the subscription.
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not terminate on disconnect")
	}
	waitFor(t, func() bool { return env.broker.Subscribers() == 0 })

	if strings.Contains(res.Body.String(), "event: redirect") {
		t.Fatal("no redirect may be emitted for another session")
	}
}

// An eviction event published while the client was reconnecting is not
// replayed, so the heartbeat must notice the missing Redis session and
// redirect anyway.
func TestWatchRedirectsWhenSessionVanishes(t *testing.T) {
	env := newGuardEnv(t)
	env.guard.SetHeartbeatForTest(20 * time.Millisecond)
	sess := env.authedSession(t)

	res := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		env.guard.Watch(res, requestWithSession(t, "/dashboard/events", sess))
	}()

	waitFor(t, func() bool { return env.broker.Subscribers() == 1 })

	// Revoke without publishing, as if the event were lost in transit.
	if err := env.sm.RevokeID(context.Background(), sess.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not notice the vanished session")
	}

	body := res.Body.String()
	if got := strings.Count(body, "event: redirect"); got != 1 {
		t.Fatalf("expected exactly one redirect event, got %d in %q", got, body)
	}
	waitFor(t, func() bool { return env.broker.Subscribers() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
