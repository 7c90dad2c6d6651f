package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/userdesk/internal/platform/httpx"
	"github.com/odyssey-erp/userdesk/internal/shared"
	"github.com/odyssey-erp/userdesk/internal/view"
)

const basePath = "/users"

// Handler serves the user-management view.
type Handler struct {
	logger    *slog.Logger
	views     *Registry
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, views *Registry, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{logger: logger, views: views, templates: templates, csrf: csrf}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showUsers)
	r.Post("/", h.submitUser)
	r.Post("/cancel", h.cancelEdit)
	r.Post("/refresh", h.refreshUsers)
	r.Get("/search", h.searchUsers)
	r.Get("/{id}/edit", h.editUser)
	r.Get("/{id}/delete", h.confirmDelete)
	r.Post("/{id}/delete", h.deleteUser)
}

type formErrors map[string]string

func (h *Handler) showUsers(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	ctrl.Mount(r.Context())
	h.renderList(w, r, ctrl, formErrors{}, http.StatusOK)
}

func (h *Handler) submitUser(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	draft := Draft{
		Name:  strings.TrimSpace(r.PostFormValue("name")),
		Email: strings.TrimSpace(r.PostFormValue("email")),
	}

	err := ctrl.Submit(r.Context(), draft)
	var draftErr *DraftError
	if errors.As(err, &draftErr) {
		h.renderList(w, r, ctrl, formErrors(draftErr.Fields), http.StatusBadRequest)
		return
	}
	h.redirect(w, r)
}

func (h *Handler) editUser(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	ctrl.Mount(r.Context())
	id := ID(chi.URLParam(r, "id"))
	if err := ctrl.BeginEdit(id); errors.Is(err, ErrUnknownUser) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	h.redirect(w, r)
}

func (h *Handler) cancelEdit(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	_ = ctrl.CancelEdit()
	h.redirect(w, r)
}

func (h *Handler) refreshUsers(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	_ = ctrl.LoadUsers(r.Context())
	h.redirect(w, r)
}

func (h *Handler) confirmDelete(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	ctrl.Mount(r.Context())
	user, found := ctrl.User(ID(chi.URLParam(r, "id")))
	if !found {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	h.render(w, r, ctrl.View(), "pages/users/delete.html", map[string]any{"User": user}, http.StatusOK)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	id := ID(chi.URLParam(r, "id"))
	confirmed := r.PostFormValue("confirm") == "yes"
	if err := ctrl.Delete(r.Context(), id, confirmed); errors.Is(err, ErrNotConfirmed) {
		h.logger.InfoContext(r.Context(), "delete not confirmed", slog.String("user_id", string(id)))
	}
	h.redirect(w, r)
}

func (h *Handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	ctrl.Mount(r.Context())
	query := r.URL.Query().Get("q")
	matches := Collect(Filter(ctrl.Users(), query))

	if r.URL.Query().Get("format") == "json" {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"query": query,
			"count": len(matches),
			"users": matches,
		})
		return
	}
	h.render(w, r, ctrl.View(), "pages/users/search.html", map[string]any{
		"Query": query,
		"Users": matches,
	}, http.StatusOK)
}

// controller resolves the view instance of the request's session.
func (h *Handler) controller(w http.ResponseWriter, r *http.Request) (*Controller, bool) {
	id := shared.SessionID(r.Context())
	if id == "" {
		h.logger.ErrorContext(r.Context(), "users view without session", slog.String("path", r.URL.Path))
		httpx.RespondError(w, httpx.ErrForbidden)
		return nil, false
	}
	return h.views.Get(id), true
}

func (h *Handler) renderList(w http.ResponseWriter, r *http.Request, ctrl *Controller, errs formErrors, status int) {
	v := ctrl.View()
	h.render(w, r, v, "pages/users/list.html", map[string]any{"View": v, "Errors": errs}, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, v View, template string, data map[string]any, status int) {
	csrfToken, _ := h.csrf.EnsureToken(shared.SessionFromContext(r.Context()))
	viewData := view.TemplateData{
		Title:       "User Management",
		CSRFToken:   csrfToken,
		Notice:      notice(v.Notification, h.views.clock),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.Render(w, status, template, viewData); err != nil {
		h.logger.ErrorContext(r.Context(), "render template", slog.String("template", template), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, basePath, http.StatusSeeOther)
}

func notice(n *Notification, clock Clock) *view.Notice {
	if n == nil {
		return nil
	}
	remaining := n.ExpiresAt.Sub(clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	return &view.Notice{Kind: string(n.Kind), Message: n.Message, ExpiresIn: remaining}
}
