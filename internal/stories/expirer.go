package stories

import (
	"context"
	"log"
	"time"

	"github.com/ripplehq/ripple/backend/internal/bus"
)

// sweepBatch caps how many overdue stories one sweep emits events for.
const sweepBatch = 100

// ExpiredLister is the slice of Store the expirer needs.
type ExpiredLister interface {
	ListExpired(ctx context.Context, limit int) ([]Story, error)
}

// Expirer periodically scans for stories past their expiry and publishes a
// STORY_EXPIRED event for each. Deletion happens in the Consumer, so every
// node's consumer group observes the expiry, not just the node that swept.
// Reads already filter on expires_at, so sweep latency never makes an
// expired story visible.
type Expirer struct {
	broker   bus.MessageBroker
	store    ExpiredLister
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewExpirer creates an Expirer sweeping at the given interval.
func NewExpirer(broker bus.MessageBroker, store ExpiredLister, interval time.Duration) *Expirer {
	return &Expirer{
		broker:   broker,
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in the background.
func (e *Expirer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Printf("stories: expiry sweep started (every %s)", e.interval)
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (e *Expirer) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Expirer) sweep(ctx context.Context) {
	expired, err := e.store.ListExpired(ctx, sweepBatch)
	if err != nil {
		log.Printf("stories: expiry sweep query failed: %v", err)
		return
	}

	for _, st := range expired {
		event := bus.Event{
			Type:    bus.EventStoryExpired,
			UserID:  st.UserID,
			StoryID: st.ID,
		}
		if err := e.broker.Publish(ctx, bus.TopicStories, st.UserID, event); err != nil {
			// Next sweep finds the same rows again.
			log.Printf("stories: failed to publish expiry for story %s: %v", st.ID, err)
			return
		}
	}

	if len(expired) > 0 {
		log.Printf("stories: published %d expiry events", len(expired))
	}
}
