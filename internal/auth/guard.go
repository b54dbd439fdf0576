package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mkeloo/loyalty-program/internal/platform/httpx"
	"github.com/mkeloo/loyalty-program/internal/shared"
)

// GuardState is the admission state of a protected-area view.
type GuardState uint8

const (
	// StateChecking means the session query has not resolved yet.
	StateChecking GuardState = iota
	// StateAdmitted means a live session was confirmed.
	StateAdmitted
	// StateRedirecting means the viewer is being sent to the login screen.
	// Terminal for this view; a fresh request starts at StateChecking.
	StateRedirecting
)

func (s GuardState) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateAdmitted:
		return "admitted"
	case StateRedirecting:
		return "redirecting"
	default:
		return "unknown"
	}
}

const watchHeartbeat = 25 * time.Second

// Guard supervises access to the protected area. Admission is re-derived on
// every request from session presence alone; the role was verified by the
// login flow and is not re-checked until the next login.
type Guard struct {
	logger    *slog.Logger
	broker    *shared.Broker
	sessions  *shared.SessionManager
	loginURL  string
	heartbeat time.Duration
}

// NewGuard constructs a Guard.
func NewGuard(logger *slog.Logger, broker *shared.Broker, sessions *shared.SessionManager) *Guard {
	return &Guard{
		logger:    logger,
		broker:    broker,
		sessions:  sessions,
		loginURL:  "/login",
		heartbeat: watchHeartbeat,
	}
}

// SetHeartbeatForTest overrides the heartbeat interval for tests.
func (g *Guard) SetHeartbeatForTest(d time.Duration) {
	g.heartbeat = d
}

// Check derives the admission decision for a request.
func (g *Guard) Check(r *http.Request) GuardState {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" || sess.Destroyed() {
		return StateRedirecting
	}
	return StateAdmitted
}

// RequireSession gates every protected route. While the decision is anything
// but admitted, no protected handler runs, so protected content can never
// flash before a redirect.
func (g *Guard) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Check(r) != StateAdmitted {
			http.Redirect(w, r, g.loginURL, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Watch streams session-change notifications to an admitted dashboard view
// over SSE. A signed-out or expired event for this session emits exactly one
// redirect signal and ends the stream; the broker subscription is released on
// every exit path, including client disconnect.
func (g *Guard) Watch(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in to watch session events")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel := g.broker.Subscribe(sess.ID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(g.heartbeat)
	defer heartbeat.Stop()

	state := StateAdmitted
	for state == StateAdmitted {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			if evt.Kind == shared.SessionSignedOut || evt.Kind == shared.SessionExpired {
				state = StateRedirecting
				fmt.Fprintf(w, "event: redirect\ndata: %s\n\n", g.loginURL)
				flusher.Flush()
			}
		case <-heartbeat.C:
			// Events published while the client was reconnecting are gone
			// (pub/sub has no replay), so each heartbeat re-checks that the
			// session still exists in Redis.
			if gone := g.sessionGone(r.Context(), sess.ID); gone {
				state = StateRedirecting
				fmt.Fprintf(w, "event: redirect\ndata: %s\n\n", g.loginURL)
				flusher.Flush()
				continue
			}
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
	// StateRedirecting: the stream is closed and the deferred cancel has
	// released the subscription, so a late event cannot re-admit the viewer.
}

// sessionGone reports whether the session no longer exists in Redis. Lookup
// errors count as alive so a Redis blip does not evict every viewer.
func (g *Guard) sessionGone(ctx context.Context, sessionID string) bool {
	if g.sessions == nil {
		return false
	}
	exists, err := g.sessions.Exists(ctx, sessionID)
	if err != nil {
		g.logger.Warn("session liveness check", slog.Any("error", err))
		return false
	}
	return !exists
}
