package bus

import (
	"context"
	"errors"
)

// ErrDegraded is returned by Publish when the broker never reached the
// brokers during startup. The service keeps running in this state; callers
// must fail fast rather than block.
var ErrDegraded = errors.New("bus: broker is degraded, events are not being published")

// State describes the broker's connection lifecycle. Degraded is a
// legitimate running state, not a failure exit: the owning service serves
// traffic without async notifications.
type State int32

const (
	StateAttempting State = iota
	StateConnected
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// MessageBroker is the interface for publishing and subscribing to event
// topics. Implementations include InMemoryBroker (single-node) and
// KafkaBroker (distributed).
type MessageBroker interface {
	// Publish sends one event to the given topic. key selects the partition;
	// events with the same key keep their publish order. An empty key lets
	// the broker balance freely. Failures are surfaced to the caller as
	// retryable errors; the caller decides whether to fail the overall
	// request or log and continue.
	Publish(ctx context.Context, topic, key string, event Event) error

	// Subscribe joins the named consumer group on a topic and invokes
	// handler once per message. Each (topic, groupID) pair holds an
	// independent cursor, so multiple consumer types read the same topic
	// without stealing each other's messages. Returns a subscription ID.
	Subscribe(topic, groupID string, handler EventHandler) (string, error)

	// Close shuts down the broker, releasing connections and goroutines.
	// After Close returns, Publish and Subscribe must not be called.
	Close() error
}
