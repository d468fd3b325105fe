// Package registry holds the in-process mapping from a user to the live
// delivery channel of their current realtime stream. It is best-effort by
// design: a missing entry just means the recipient will catch up from the
// durable store on reconnect.
package registry

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/ripplehq/ripple/backend/internal/metrics"
)

// sendBuffer is the per-subscriber queue depth. A subscriber that falls
// this far behind starts losing pushes (drop-and-log) instead of stalling
// the pipeline.
const sendBuffer = 256

// Subscriber is one live stream's delivery channel. The owning connection
// drains C until it is closed, which happens exactly once: either on
// Unregister by the owning connection, or when a newer connection for the
// same user supersedes this one.
type Subscriber struct {
	id   string
	send chan []byte
}

// NewSubscriber allocates a Subscriber with a bounded send queue.
func NewSubscriber() *Subscriber {
	return &Subscriber{
		id:   uuid.New().String(),
		send: make(chan []byte, sendBuffer),
	}
}

// ID returns the subscriber's unique identity.
func (s *Subscriber) ID() string { return s.id }

// C is the channel the owning connection drains. It is closed when the
// subscriber leaves the registry.
func (s *Subscriber) C() <-chan []byte { return s.send }

// Registry maps userID to the single live Subscriber for that user. At most
// one entry exists per user; a new registration supersedes the old one.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{subs: make(map[string]*Subscriber)}
}

// Register installs sub as the live entry for userID, replacing any prior
// entry. The superseded subscriber's channel is closed so its stream ends;
// its later Unregister call is then a harmless no-op.
func (r *Registry) Register(userID string, sub *Subscriber) {
	r.mu.Lock()
	old := r.subs[userID]
	r.subs[userID] = sub
	r.mu.Unlock()

	if old != nil {
		close(old.send)
		log.Printf("registry: user %s superseded subscriber %s with %s", userID, old.id, sub.id)
	}
}

// Unregister removes the entry for userID only if it still refers to sub.
// A stale disconnect therefore never evicts a newer connection's entry,
// and each subscriber's channel is closed exactly once.
func (r *Registry) Unregister(userID string, sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subs[userID] == sub {
		delete(r.subs, userID)
		close(sub.send)
	}
}

// Push attempts best-effort delivery of payload to userID's live stream.
// It never blocks: a full send queue drops the payload with a log line.
// The return value reports whether a live entry existed and delivery was
// attempted; false is a normal outcome, not an error — the event is still
// durable in its store.
func (r *Registry) Push(userID string, payload []byte) bool {
	// The send must happen under the read lock: Register and Unregister
	// close channels under the write lock, so a held read lock guarantees
	// the channel is still open.
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[userID]
	if !ok {
		metrics.Pushes.WithLabelValues("no_subscriber").Inc()
		return false
	}

	select {
	case sub.send <- payload:
		metrics.Pushes.WithLabelValues("delivered").Inc()
		return true
	default:
		log.Printf("registry: dropping push to slow subscriber %s (user %s)", sub.id, userID)
		metrics.Pushes.WithLabelValues("dropped").Inc()
		return true
	}
}

// Len reports the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
