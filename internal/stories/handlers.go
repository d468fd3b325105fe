package stories

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/ripplehq/ripple/backend/internal/auth"
	"github.com/ripplehq/ripple/backend/internal/bus"
	"github.com/ripplehq/ripple/backend/internal/httputil"
)

// Handlers exposes the story HTTP API. Creation is publish-only: the
// handler emits a STORY_CREATED event and the Consumer persists it, so a
// client sees the new story once the pipeline has processed the event.
type Handlers struct {
	broker   bus.MessageBroker
	store    *Store
	validate *validator.Validate
}

func NewHandlers(broker bus.MessageBroker, store *Store) *Handlers {
	return &Handlers{
		broker:   broker,
		store:    store,
		validate: validator.New(),
	}
}

// RegisterRoutes registers story routes on an authenticated router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/stories").Subrouter()
	api.HandleFunc("", h.handleCreate).Methods("POST")
	api.HandleFunc("", h.handleList).Methods("GET")
	api.HandleFunc("/user/{userId}", h.handleListByUser).Methods("GET")
}

type createStoryRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

func (h *Handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	event := bus.Event{
		Type:    bus.EventStoryCreated,
		UserID:  claims.UserID,
		Content: req.Content,
	}
	if err := h.broker.Publish(r.Context(), bus.TopicStories, claims.UserID, event); err != nil {
		log.Printf("stories: failed to publish STORY_CREATED for user %s: %v", claims.UserID, err)
		if errors.Is(err, bus.ErrDegraded) {
			httputil.WriteError(w, http.StatusServiceUnavailable, "story pipeline unavailable")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create story")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	stories, err := h.store.ListActive(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list stories")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"stories": stories})
}

func (h *Handlers) handleListByUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	stories, err := h.store.ListActiveByUser(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list stories")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"stories": stories})
}
