package bus

// Topic names shared by all services reading the bus.
const (
	TopicNotifications = "notifications"
	TopicStories       = "stories"

	// DLQSuffix is appended to a topic name to form its dead-letter topic.
	DLQSuffix = ".dlq"
)

// Event types carried in the "type" field of bus payloads.
const (
	EventLike         = "LIKE"
	EventComment      = "COMMENT"
	EventChatMessage  = "CHAT_MESSAGE"
	EventStoryCreated = "STORY_CREATED"
	EventStoryExpired = "STORY_EXPIRED"
)

// Event is the unit published on the bus. Field names are stable across
// services; events are immutable once published. Ordering is preserved only
// within a single partition key.
type Event struct {
	Type         string `json:"type"`
	UserID       string `json:"userId"`
	TargetUserID string `json:"targetUserId,omitempty"`
	PostID       string `json:"postId,omitempty"`
	CommentText  string `json:"commentText,omitempty"`
	MessageID    string `json:"messageId,omitempty"`
	StoryID      string `json:"storyId,omitempty"`
	Content      string `json:"content,omitempty"`
}

// EventHandler is invoked once per received message. Delivery is
// at-least-once: the same event may arrive again after a crash before the
// cursor commit, so handlers must tolerate duplicate side effects.
type EventHandler func(event Event)

// DLQTopic returns the dead-letter topic for the given topic.
func DLQTopic(topic string) string {
	return topic + DLQSuffix
}
