package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkeloo/loyalty-program/internal/observability"
	"github.com/mkeloo/loyalty-program/internal/shared"
	"github.com/mkeloo/loyalty-program/internal/view"
)

// Handler wires HTTP endpoints for the login flow and session controls.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	broker         *shared.Broker
	metrics        *observability.Metrics
}

// NewHandler constructs a Handler instance. metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, broker *shared.Broker, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		broker:         broker,
		metrics:        metrics,
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email string
}

type loginPageData struct {
	Form  loginForm
	Error string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, loginPageData{}, http.StatusOK)
}

// handleLogin drives the two-step login flow: authenticate, then authorize
// the subject identity that step 1 returned. The steps are sequential and
// every authorization failure revokes the just-established session before
// anything is shown to the viewer.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// Credentials are forwarded as-is; the credential store is the validator.
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	user, err := h.service.Authenticate(r.Context(), email, password)
	if err != nil {
		h.metrics.RecordLogin("invalid_credentials")
		h.renderLogin(w, r, loginPageData{Form: loginForm{Email: email}, Error: shared.UserSafeMessage(err)}, http.StatusBadRequest)
		return
	}

	// Step 1 succeeded: bind the session to the identity it returned.
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	if err := h.service.Authorize(r.Context(), user.ID); err != nil {
		// Never leave an authenticated-but-unauthorized session alive.
		h.revokeSession(r.Context(), sess)
		h.logger.Warn("login rejected", slog.String("email", email), slog.Any("error", err))
		h.metrics.RecordLogin("no_access")
		h.renderLogin(w, r, loginPageData{Form: loginForm{Email: email}, Error: NoAccessMessage}, http.StatusForbidden)
		return
	}

	h.metrics.RecordLogin("admitted")
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back"})
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil && sess.User() != "" {
		userID := sess.User()
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
		h.metrics.RecordSessionRevoked()
		h.publishSignedOut(r.Context(), sess.ID, userID)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// revokeSession clears the identity established by step 1 and removes the
// audit row. Idempotent: every part tolerates an already-cleared session.
func (h *Handler) revokeSession(ctx context.Context, sess *shared.Session) {
	userID := sess.User()
	if err := h.service.RemoveSession(ctx, sess.ID); err != nil {
		h.logger.Warn("revoke session record", slog.Any("error", err))
	}
	sess.ClearUser()
	h.metrics.RecordSessionRevoked()
	h.publishSignedOut(ctx, sess.ID, userID)
}

func (h *Handler) publishSignedOut(ctx context.Context, sessionID, userID string) {
	if h.broker == nil {
		return
	}
	evt := shared.SessionEvent{Kind: shared.SessionSignedOut, SessionID: sessionID, UserID: userID}
	if err := h.broker.Publish(ctx, evt); err != nil {
		h.logger.Warn("publish signed out", slog.Any("error", err))
	}
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, data loginPageData, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Admin Login",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}
