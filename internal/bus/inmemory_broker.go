package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ripplehq/ripple/backend/internal/metrics"
)

type subscription struct {
	id      string
	handler EventHandler
}

// groupCursor mirrors consumer-group semantics in memory: each group
// receives every event exactly once, round-robined across its members.
type groupCursor struct {
	subs []subscription
	next int
}

// InMemoryBroker is a single-process MessageBroker backed by Go channels.
// It is suitable for development, single-node deployments and tests, and
// preserves the per-group delivery contract of the Kafka implementation.
type InMemoryBroker struct {
	mu      sync.RWMutex
	topics  map[string]map[string]*groupCursor // topic -> groupID -> cursor
	closed  bool
	eventCh chan topicEvent
	quit    chan struct{} // closed by Close to stop publishers and dispatch
	done    chan struct{} // closed when dispatch has exited
}

type topicEvent struct {
	topic string
	event Event
}

// NewInMemoryBroker creates and starts an InMemoryBroker. The broker starts
// a background goroutine to dispatch events; call Close to stop it.
func NewInMemoryBroker() *InMemoryBroker {
	b := &InMemoryBroker{
		topics:  make(map[string]map[string]*groupCursor),
		eventCh: make(chan topicEvent, 1024),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Publish enqueues an event for asynchronous delivery to every consumer
// group subscribed to the topic. The key is accepted for interface parity;
// a single in-process queue is always ordered. The send happens outside
// the broker lock so a full queue can never starve the dispatcher.
func (b *InMemoryBroker) Publish(ctx context.Context, topic, key string, event Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		metrics.PublishFailures.WithLabelValues(topic).Inc()
		return fmt.Errorf("broker is closed")
	}

	select {
	case b.eventCh <- topicEvent{topic: topic, event: event}:
	case <-b.quit:
		metrics.PublishFailures.WithLabelValues(topic).Inc()
		return fmt.Errorf("broker is closed")
	case <-ctx.Done():
		metrics.PublishFailures.WithLabelValues(topic).Inc()
		return ctx.Err()
	}
	metrics.EventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// Subscribe registers a handler under the given consumer group and returns
// a subscription ID.
func (b *InMemoryBroker) Subscribe(topic, groupID string, handler EventHandler) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", fmt.Errorf("broker is closed")
	}
	if groupID == "" {
		return "", fmt.Errorf("consumer group id is required")
	}

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]*groupCursor)
	}
	if b.topics[topic][groupID] == nil {
		b.topics[topic][groupID] = &groupCursor{}
	}

	id := uuid.New().String()
	g := b.topics[topic][groupID]
	g.subs = append(g.subs, subscription{id: id, handler: handler})
	return id, nil
}

// Close stops accepting events, waits for the dispatcher to drain what was
// already accepted and then returns. The lock is released before waiting so
// the dispatcher can keep taking it to deliver the backlog.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.quit)
	b.mu.Unlock()

	<-b.done
	return nil
}

// dispatch fans each published event out to one member of every subscribed
// group. On shutdown it drains the events accepted before Close and exits.
func (b *InMemoryBroker) dispatch() {
	defer close(b.done)

	for {
		select {
		case te := <-b.eventCh:
			b.deliver(te)
		case <-b.quit:
			for {
				select {
				case te := <-b.eventCh:
					b.deliver(te)
				default:
					return
				}
			}
		}
	}
}

// deliver picks one handler per group under the lock, then invokes the
// handlers with the lock released.
func (b *InMemoryBroker) deliver(te topicEvent) {
	b.mu.Lock()
	var handlers []EventHandler
	for _, g := range b.topics[te.topic] {
		if len(g.subs) == 0 {
			continue
		}
		handlers = append(handlers, g.subs[g.next%len(g.subs)].handler)
		g.next++
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(te.event)
	}
}
