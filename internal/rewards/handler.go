package rewards

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkeloo/loyalty-program/internal/shared"
	"github.com/mkeloo/loyalty-program/internal/view"
)

// Handler renders the rewards management screen.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// MountRoutes registers reward routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/new", h.Form)
	r.Post("/", h.Create)
	r.Get("/{id}/edit", h.EditForm)
	r.Post("/{id}", h.Update)
	r.Post("/{id}/delete", h.Delete)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list rewards failed", "error", err)
		http.Error(w, "Failed to load rewards", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/rewards_list.html", map[string]any{
		"Rewards": items,
	}, http.StatusOK)
}

func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/reward_form.html", map[string]any{
		"Errors": map[string]string{},
		"Reward": nil,
	}, http.StatusOK)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	in, err := parseInput(r)
	if err == nil {
		_, err = h.service.Create(r.Context(), actorID(r), in)
	}
	if err != nil {
		h.logger.Error("create reward failed", "error", err)
		h.render(w, r, "pages/reward_form.html", map[string]any{
			"Errors": map[string]string{"general": userMessage(err)},
			"Reward": nil,
		}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/dashboard/rewards", "success", "Reward created successfully")
}

func (h *Handler) EditForm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid reward ID", http.StatusBadRequest)
		return
	}
	reward, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("get reward failed", "error", err, "id", id)
		http.Error(w, "Reward not found", http.StatusNotFound)
		return
	}
	h.render(w, r, "pages/reward_form.html", map[string]any{
		"Errors": map[string]string{},
		"Reward": reward,
	}, http.StatusOK)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid reward ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	in, err := parseInput(r)
	if err == nil {
		err = h.service.Update(r.Context(), actorID(r), id, in)
	}
	if err != nil {
		h.logger.Error("update reward failed", "error", err, "id", id)
		h.render(w, r, "pages/reward_form.html", map[string]any{
			"Errors": map[string]string{"general": userMessage(err)},
			"Reward": Reward{ID: id, Name: in.Name, PointValue: in.PointValue},
		}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/dashboard/rewards", "success", "Reward updated successfully")
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid reward ID", http.StatusBadRequest)
		return
	}
	if err := h.service.Delete(r.Context(), actorID(r), id); err != nil {
		h.logger.Error("delete reward failed", "error", err, "id", id)
		h.redirectWithFlash(w, r, "/dashboard/rewards", "error", userMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/dashboard/rewards", "success", "Reward deleted successfully")
}

func parseInput(r *http.Request) (RewardInput, error) {
	points := 0
	raw := r.PostFormValue("point_value")
	if raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return RewardInput{Name: r.PostFormValue("reward_name")}, ValidationError("point value must be a number")
		}
		points = parsed
	}
	return RewardInput{
		Name:       r.PostFormValue("reward_name"),
		PointValue: points,
	}, nil
}

// userMessage keeps validation and duplicate errors verbatim; anything else
// is masked through the shared helper.
func userMessage(err error) string {
	var ve ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, ErrDuplicateName):
		return err.Error()
	default:
		return shared.UserSafeMessage(err)
	}
}

func actorID(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Rewards",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", "error", err, "template", template)
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
