package chat

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ripplehq/ripple/backend/internal/auth"
	"github.com/ripplehq/ripple/backend/internal/registry"
	"github.com/ripplehq/ripple/backend/internal/ws"
)

const (
	// writeWait is the maximum time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// pongWait is the maximum time to wait for a pong reply from the peer.
	pongWait = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     ws.CheckOrigin,
}

// StreamHandler serves the long-lived message stream. Each connection
// registers one subscriber in the registry; the stream carries frames
// pushed for that user and ends when the client disconnects or a newer
// connection supersedes this one.
type StreamHandler struct {
	jwtService *auth.JWTService
	registry   *registry.Registry
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(jwtService *auth.JWTService, reg *registry.Registry) *StreamHandler {
	return &StreamHandler{jwtService: jwtService, registry: reg}
}

// RegisterRoutes wires the chat WebSocket endpoint.
func (h *StreamHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws/chat", h.ServeWS).Methods(http.MethodGet)
}

// ServeWS authenticates and upgrades the connection, then pumps pushed
// frames until the stream ends.
func (h *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = parts[1]
		}
	}

	if token == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := registry.NewSubscriber()
	h.registry.Register(claims.UserID, sub)
	log.Printf("chat ws: user %s connected (subscriber %s)", claims.UserID, sub.ID())

	go h.writePump(conn, sub)
	go h.readPump(conn, claims.UserID, sub)
}

// writePump drains the subscriber's channel onto the connection. The
// channel closing means the subscriber left the registry, either by
// disconnect or supersession, and ends the stream.
func (h *StreamHandler) writePump(conn *websocket.Conn, sub *registry.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the connection alive and detects disconnects. The stream
// is push-only; inbound frames beyond pings are discarded.
func (h *StreamHandler) readPump(conn *websocket.Conn, userID string, sub *registry.Subscriber) {
	defer func() {
		h.registry.Unregister(userID, sub)
		conn.Close()
		log.Printf("chat ws: user %s disconnected (subscriber %s)", userID, sub.ID())
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("chat ws: user %s read error: %v", userID, err)
			}
			return
		}
	}
}
