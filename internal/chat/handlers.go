package chat

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/ripplehq/ripple/backend/internal/auth"
	"github.com/ripplehq/ripple/backend/internal/httputil"
)

// Handlers exposes the chat HTTP API.
type Handlers struct {
	service  *Service
	store    *Store
	validate *validator.Validate
}

func NewHandlers(service *Service, store *Store) *Handlers {
	return &Handlers{
		service:  service,
		store:    store,
		validate: validator.New(),
	}
}

// RegisterRoutes registers chat routes on an authenticated router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/chat").Subrouter()
	api.HandleFunc("/send", h.handleSend).Methods("POST")
	api.HandleFunc("/history/{userId}", h.handleHistory).Methods("GET")
}

type sendRequest struct {
	TargetUserID string `json:"targetUserId" validate:"required"`
	Text         string `json:"text" validate:"required,max=2000"`
}

func (h *Handlers) handleSend(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.SendMessage(r.Context(), claims.UserID, req.TargetUserID, req.Text)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	other := mux.Vars(r)["userId"]
	messages, err := h.store.ListConversation(r.Context(), claims.UserID, other, limit)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}
