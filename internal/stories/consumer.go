package stories

import (
	"context"
	"fmt"
	"log"

	"github.com/ripplehq/ripple/backend/internal/bus"
	"github.com/ripplehq/ripple/backend/internal/metrics"
)

// maxNotifyContent caps the story content carried inside the derived
// notification event.
const maxNotifyContent = 100

// Storage is the slice of Store the consumer needs.
type Storage interface {
	Insert(ctx context.Context, st *Story) error
	Delete(ctx context.Context, storyID string) error
}

// Consumer reads the stories topic. STORY_CREATED events become persisted
// stories plus a derived self-notification; STORY_EXPIRED events delete the
// named story. There is no transaction across the story store and the bus:
// a story whose follow-up publish fails stays persisted, which is accepted.
type Consumer struct {
	broker bus.MessageBroker
	store  Storage
	group  string
}

// NewConsumer creates a Consumer. It does not subscribe until Start.
func NewConsumer(broker bus.MessageBroker, store Storage, group string) *Consumer {
	return &Consumer{broker: broker, store: store, group: group}
}

// Start subscribes the consumer to the stories topic under its consumer
// group.
func (c *Consumer) Start() error {
	if _, err := c.broker.Subscribe(bus.TopicStories, c.group, c.handle); err != nil {
		return fmt.Errorf("subscribe to %s: %w", bus.TopicStories, err)
	}
	log.Printf("stories: consumer started on topic %s (group %s)", bus.TopicStories, c.group)
	return nil
}

func (c *Consumer) handle(event bus.Event) {
	switch event.Type {
	case bus.EventStoryCreated:
		c.handleCreated(event)
	case bus.EventStoryExpired:
		c.handleExpired(event)
	default:
		log.Printf("stories: ignoring event with unrecognized type %q", event.Type)
		metrics.EventsConsumed.WithLabelValues(bus.TopicStories, "discarded").Inc()
	}
}

func (c *Consumer) handleCreated(event bus.Event) {
	if event.UserID == "" {
		log.Printf("stories: discarding STORY_CREATED with no userId")
		metrics.EventsConsumed.WithLabelValues(bus.TopicStories, "discarded").Inc()
		c.deadLetter(event)
		return
	}

	story := &Story{UserID: event.UserID, Content: event.Content}
	if err := c.store.Insert(context.Background(), story); err != nil {
		log.Printf("stories: failed to persist story for user %s: %v", event.UserID, err)
		metrics.EventsConsumed.WithLabelValues(bus.TopicStories, "failed").Inc()
		c.deadLetter(event)
		return
	}

	// Self-notification confirming the publish. The story is already
	// committed; a publish failure here is logged, not rolled back.
	derived := bus.Event{
		Type:         bus.EventStoryCreated,
		UserID:       event.UserID,
		TargetUserID: event.UserID,
		StoryID:      story.ID,
		Content:      Truncate(event.Content, maxNotifyContent),
	}
	if err := c.broker.Publish(context.Background(), bus.TopicNotifications, event.UserID, derived); err != nil {
		log.Printf("stories: story %s persisted but notification publish failed: %v", story.ID, err)
	}

	metrics.EventsConsumed.WithLabelValues(bus.TopicStories, "processed").Inc()
}

func (c *Consumer) handleExpired(event bus.Event) {
	if event.StoryID == "" {
		log.Printf("stories: discarding STORY_EXPIRED with no storyId")
		metrics.EventsConsumed.WithLabelValues(bus.TopicStories, "discarded").Inc()
		c.deadLetter(event)
		return
	}

	// Deleting an already-deleted story succeeds; expiry events are
	// redelivered at-least-once.
	if err := c.store.Delete(context.Background(), event.StoryID); err != nil {
		log.Printf("stories: failed to delete expired story %s: %v", event.StoryID, err)
		metrics.EventsConsumed.WithLabelValues(bus.TopicStories, "failed").Inc()
		c.deadLetter(event)
		return
	}

	metrics.EventsConsumed.WithLabelValues(bus.TopicStories, "processed").Inc()
}

func (c *Consumer) deadLetter(event bus.Event) {
	dlq := bus.DLQTopic(bus.TopicStories)
	if err := c.broker.Publish(context.Background(), dlq, event.UserID, event); err != nil {
		log.Printf("stories: failed to publish to %s: %v", dlq, err)
	}
}

// Truncate shortens s to at most max runes, appending "..." when anything
// was cut. Counting runes keeps multibyte content from being split
// mid-character.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
