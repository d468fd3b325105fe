package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ripplehq/ripple/backend/internal/bus"
	"github.com/ripplehq/ripple/backend/internal/registry"
)

// MessageStore is the persistence interface the service needs.
type MessageStore interface {
	Insert(ctx context.Context, m *Message) error
}

// SendResult is returned to the sender after a successful send.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

// wireMessage is the frame pushed to a recipient's live stream.
type wireMessage struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}

// Service implements the chat send path: persist the message, publish a
// notification event and attempt an immediate local push. Persistence is
// the only step that can fail the call; the event and the push are
// best-effort on top of the committed record.
type Service struct {
	store    MessageStore
	broker   bus.MessageBroker
	registry *registry.Registry
}

// NewService creates a Service.
func NewService(store MessageStore, broker bus.MessageBroker, reg *registry.Registry) *Service {
	return &Service{store: store, broker: broker, registry: reg}
}

// SendMessage persists one message from sender to target and fans it out.
// Exactly one record and at most one event are produced per call.
func (s *Service) SendMessage(ctx context.Context, senderID, targetUserID, text string) (*SendResult, error) {
	if senderID == "" || targetUserID == "" || text == "" {
		return nil, fmt.Errorf("chat: sender, target and text are required")
	}

	msg := &Message{UserID: senderID, TargetUserID: targetUserID, Text: text}
	if err := s.store.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("chat: persist message: %w", err)
	}

	event := bus.Event{
		Type:         bus.EventChatMessage,
		UserID:       senderID,
		TargetUserID: targetUserID,
		MessageID:    msg.ID,
		Content:      text,
	}
	if err := s.broker.Publish(ctx, bus.TopicNotifications, targetUserID, event); err != nil {
		// The message is durable; only the async notification is lost.
		log.Printf("chat: failed to publish CHAT_MESSAGE for message %s: %v", msg.ID, err)
	}

	frame, err := json.Marshal(wireMessage{
		ID:        msg.ID,
		Text:      msg.Text,
		UserID:    msg.UserID,
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("chat: failed to encode wire frame for message %s: %v", msg.ID, err)
	} else {
		// A miss means the recipient is offline or on another node; they
		// catch up from the store and the notification pipeline.
		s.registry.Push(targetUserID, frame)
	}

	return &SendResult{Success: true, MessageID: msg.ID}, nil
}
