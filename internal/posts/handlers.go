package posts

import (
	"context"
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

// PostStore is the persistence interface the handlers need.
type PostStore interface {
	CreatePost(ctx context.Context, p *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	ListPosts(ctx context.Context) ([]Post, error)
	LikePost(ctx context.Context, id string) (int, string, error)
	CreateComment(ctx context.Context, c *Comment) error
	ListComments(ctx context.Context, postID string) ([]Comment, error)
}

// Handlers exposes the post HTTP API. Likes and comments publish
// notification events fire-and-forget: a publish failure is logged and
// counted but never fails the request, since the write itself already
// committed.
type Handlers struct {
	store    PostStore
	broker   bus.MessageBroker
	validate *validator.Validate
}

func NewHandlers(store PostStore, broker bus.MessageBroker) *Handlers {
	return &Handlers{
		store:    store,
		broker:   broker,
		validate: validator.New(),
	}
}

// RegisterRoutes registers post routes on an authenticated router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/posts").Subrouter()
	api.HandleFunc("", h.handleCreate).Methods("POST")
	api.HandleFunc("", h.handleList).Methods("GET")
	api.HandleFunc("/{id}", h.handleGet).Methods("GET")
	api.HandleFunc("/{id}/like", h.handleLike).Methods("POST")
	api.HandleFunc("/{id}/comments", h.handleCreateComment).Methods("POST")
	api.HandleFunc("/{id}/comments", h.handleListComments).Methods("GET")
}

type createPostRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

type createCommentRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

func (h *Handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	post := &Post{UserID: claims.UserID, Content: req.Content}
	if err := h.store.CreatePost(r.Context(), post); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create post")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, post)
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	posts, err := h.store.ListPosts(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"posts": posts})
}

func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.store.GetPost(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "post not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load post")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, post)
}

func (h *Handlers) handleLike(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	postID := mux.Vars(r)["id"]
	likes, ownerID, err := h.store.LikePost(r.Context(), postID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "post not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to like post")
		return
	}

	h.publishEvent(r.Context(), bus.Event{
		Type:         bus.EventLike,
		UserID:       claims.UserID,
		TargetUserID: ownerID,
		PostID:       postID,
	})

	httputil.WriteJSON(w, http.StatusOK, map[string]int{"likes": likes})
}

func (h *Handlers) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	postID := mux.Vars(r)["id"]
	post, err := h.store.GetPost(r.Context(), postID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "post not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load post")
		return
	}

	comment := &Comment{PostID: postID, UserID: claims.UserID, Text: req.Text}
	if err := h.store.CreateComment(r.Context(), comment); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create comment")
		return
	}

	h.publishEvent(r.Context(), bus.Event{
		Type:         bus.EventComment,
		UserID:       claims.UserID,
		TargetUserID: post.UserID,
		PostID:       postID,
		CommentText:  req.Text,
	})

	httputil.WriteJSON(w, http.StatusCreated, comment)
}

func (h *Handlers) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.store.ListComments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list comments")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"comments": comments})
}

// publishEvent sends a notification event keyed by its recipient. The
// originating write already succeeded, so failures only lose the
// notification, never the post or comment.
func (h *Handlers) publishEvent(ctx context.Context, event bus.Event) {
	if err := h.broker.Publish(ctx, bus.TopicNotifications, event.TargetUserID, event); err != nil {
		log.Printf("posts: failed to publish %s event for post %s: %v", event.Type, event.PostID, err)
	}
}
