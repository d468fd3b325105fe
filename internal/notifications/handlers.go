package notifications

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ripplehq/ripple/backend/internal/auth"
	"github.com/ripplehq/ripple/backend/internal/httputil"
)

type Handlers struct {
	store *Store
}

func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers notification routes on an authenticated router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/notifications").Subrouter()
	api.HandleFunc("", h.handleList).Methods("GET")
	api.HandleFunc("/unread-count", h.handleUnreadCount).Methods("GET")
	api.HandleFunc("/{id}/read", h.handleMarkRead).Methods("POST")
	api.HandleFunc("/read-all", h.handleMarkAllRead).Methods("POST")
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	params := ListParams{TargetUserID: claims.UserID}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			params.Limit = limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			params.Offset = offset
		}
	}
	if v := r.URL.Query().Get("read"); v != "" {
		read := v == "true"
		params.ReadOnly = &read
	}

	items, total, err := h.store.List(r.Context(), params)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": items,
		"total":         total,
	})
}

func (h *Handlers) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	count, err := h.store.UnreadCount(r.Context(), claims.UserID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to count notifications")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *Handlers) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.store.MarkRead(r.Context(), claims.UserID, id); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.store.MarkAllRead(r.Context(), claims.UserID); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to mark notifications read")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
