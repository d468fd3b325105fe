package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ripplehq/ripple/backend/internal/bus"
	"github.com/ripplehq/ripple/backend/internal/metrics"
	"github.com/ripplehq/ripple/backend/internal/registry"
)

// Inserter is the slice of Store the consumer needs.
type Inserter interface {
	Insert(ctx context.Context, n *Notification) error
}

// Consumer reads the notifications topic, persists each event as a
// notification record and then attempts a best-effort realtime push to the
// recipient. Persistence is the commit point: a failed push never fails the
// event, while a failed insert sends the event to the dead-letter topic.
type Consumer struct {
	broker   bus.MessageBroker
	store    Inserter
	registry *registry.Registry
	group    string
}

// NewConsumer creates a Consumer. It does not subscribe until Start.
func NewConsumer(broker bus.MessageBroker, store Inserter, reg *registry.Registry, group string) *Consumer {
	return &Consumer{
		broker:   broker,
		store:    store,
		registry: reg,
		group:    group,
	}
}

// Start subscribes the consumer to the notifications topic under its
// consumer group.
func (c *Consumer) Start() error {
	if _, err := c.broker.Subscribe(bus.TopicNotifications, c.group, c.handle); err != nil {
		return fmt.Errorf("subscribe to %s: %w", bus.TopicNotifications, err)
	}
	log.Printf("notifications: consumer started on topic %s (group %s)", bus.TopicNotifications, c.group)
	return nil
}

// pushPayload is the frame written to a recipient's live stream.
type pushPayload struct {
	Message      string        `json:"message"`
	Notification *Notification `json:"notification"`
}

// handle processes one event. Delivery is at-least-once, so a redelivered
// event simply produces another notification row; that is accepted over
// losing events.
func (c *Consumer) handle(event bus.Event) {
	if err := validate(event); err != nil {
		log.Printf("notifications: discarding event: %v", err)
		metrics.EventsConsumed.WithLabelValues(bus.TopicNotifications, "discarded").Inc()
		c.deadLetter(event)
		return
	}

	n := &Notification{
		Type:         event.Type,
		UserID:       event.UserID,
		TargetUserID: event.TargetUserID,
		PostID:       event.PostID,
		CommentText:  event.CommentText,
		MessageID:    event.MessageID,
		StoryID:      event.StoryID,
		Content:      event.Content,
	}
	if err := c.store.Insert(context.Background(), n); err != nil {
		log.Printf("notifications: failed to persist %s event for user %s: %v", event.Type, event.TargetUserID, err)
		metrics.EventsConsumed.WithLabelValues(bus.TopicNotifications, "failed").Inc()
		c.deadLetter(event)
		return
	}

	payload, err := json.Marshal(pushPayload{Message: render(event), Notification: n})
	if err != nil {
		// The record is durable; only the realtime frame is lost.
		log.Printf("notifications: failed to encode push payload: %v", err)
	} else {
		c.registry.Push(event.TargetUserID, payload)
	}

	metrics.EventsConsumed.WithLabelValues(bus.TopicNotifications, "processed").Inc()
}

// validate rejects events that cannot be turned into a notification record.
func validate(event bus.Event) error {
	if event.Type == "" {
		return fmt.Errorf("event has no type")
	}
	if event.UserID == "" {
		return fmt.Errorf("%s event has no userId", event.Type)
	}
	if event.TargetUserID == "" {
		return fmt.Errorf("%s event has no targetUserId", event.Type)
	}
	return nil
}

// render builds the human-readable message for an event. Unknown types get
// a generic line rather than being rejected; new producers may ship before
// this consumer learns their type.
func render(event bus.Event) string {
	switch event.Type {
	case bus.EventLike:
		return fmt.Sprintf("User %s liked your post", event.UserID)
	case bus.EventComment:
		return fmt.Sprintf("User %s commented: %q", event.UserID, event.CommentText)
	case bus.EventChatMessage:
		return fmt.Sprintf("New message from user %s", event.UserID)
	case bus.EventStoryCreated:
		return fmt.Sprintf("User %s posted a new story", event.UserID)
	default:
		return fmt.Sprintf("New %s notification from user %s", event.Type, event.UserID)
	}
}

// deadLetter forwards an unprocessable event to the dead-letter topic so it
// is not lost. Failures here are logged and dropped; there is nowhere
// further to escalate.
func (c *Consumer) deadLetter(event bus.Event) {
	dlq := bus.DLQTopic(bus.TopicNotifications)
	if err := c.broker.Publish(context.Background(), dlq, event.TargetUserID, event); err != nil {
		log.Printf("notifications: failed to publish to %s: %v", dlq, err)
	}
}
