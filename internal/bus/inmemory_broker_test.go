package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func collectEvents(ch <-chan Event, n int, timeout time.Duration) []Event {
	var got []Event
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-deadline:
			return got
		}
	}
	return got
}

func TestInMemoryBroker_DeliversToEveryGroupOnce(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()

	groupA := make(chan Event, 4)
	groupB := make(chan Event, 4)

	if _, err := b.Subscribe(TopicNotifications, "group-a", func(e Event) { groupA <- e }); err != nil {
		t.Fatalf("Subscribe group-a failed: %v", err)
	}
	if _, err := b.Subscribe(TopicNotifications, "group-b", func(e Event) { groupB <- e }); err != nil {
		t.Fatalf("Subscribe group-b failed: %v", err)
	}

	event := Event{Type: EventLike, UserID: "u1", TargetUserID: "u2", PostID: "p1"}
	if err := b.Publish(context.Background(), TopicNotifications, "u2", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	gotA := collectEvents(groupA, 1, time.Second)
	gotB := collectEvents(groupB, 1, time.Second)
	if len(gotA) != 1 || len(gotB) != 1 {
		t.Fatalf("expected one delivery per group, got a=%d b=%d", len(gotA), len(gotB))
	}
	if gotA[0].PostID != "p1" || gotB[0].PostID != "p1" {
		t.Errorf("delivered events do not match published event")
	}
}

func TestInMemoryBroker_RoundRobinsWithinGroup(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()

	var mu sync.Mutex
	counts := map[string]int{}
	handler := func(name string) EventHandler {
		return func(Event) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		}
	}

	if _, err := b.Subscribe(TopicStories, "story-group", handler("first")); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := b.Subscribe(TopicStories, "story-group", handler("second")); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := b.Publish(context.Background(), TopicStories, "", Event{Type: EventStoryCreated, UserID: "u1"}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if counts["first"]+counts["second"] != 4 {
		t.Fatalf("expected 4 total deliveries, got %d", counts["first"]+counts["second"])
	}
	if counts["first"] != 2 || counts["second"] != 2 {
		t.Errorf("expected even split across group members, got first=%d second=%d", counts["first"], counts["second"])
	}
}

func TestInMemoryBroker_IgnoresOtherTopics(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()

	received := make(chan Event, 1)
	if _, err := b.Subscribe(TopicStories, "story-group", func(e Event) { received <- e }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(context.Background(), TopicNotifications, "", Event{Type: EventLike, UserID: "u1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-received:
		t.Fatal("story subscriber should not receive notification-topic events")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInMemoryBroker_SubscribeRequiresGroup(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()

	if _, err := b.Subscribe(TopicNotifications, "", func(Event) {}); err == nil {
		t.Fatal("expected error for empty consumer group id")
	}
}

func TestInMemoryBroker_CloseReturnsWithPendingEvents(t *testing.T) {
	b := NewInMemoryBroker()

	var handled int32
	if _, err := b.Subscribe(TopicNotifications, "g", func(Event) {
		time.Sleep(200 * time.Millisecond)
		atomic.AddInt32(&handled, 1)
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := b.Publish(context.Background(), TopicNotifications, "", Event{Type: EventLike, UserID: "u1"}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	// Close must not wait on the dispatcher while holding the lock the
	// dispatcher needs; with events still queued behind a slow handler it
	// has to drain them and return.
	closed := make(chan struct{})
	go func() {
		b.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return while events were still queued")
	}

	if got := atomic.LoadInt32(&handled); got != 2 {
		t.Errorf("expected both queued events handled before Close returned, got %d", got)
	}
}

func TestInMemoryBroker_ClosedBrokerRejectsCalls(t *testing.T) {
	b := NewInMemoryBroker()
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := b.Publish(context.Background(), TopicNotifications, "", Event{Type: EventLike}); err == nil {
		t.Error("expected Publish on closed broker to fail")
	}
	if _, err := b.Subscribe(TopicNotifications, "g", func(Event) {}); err == nil {
		t.Error("expected Subscribe on closed broker to fail")
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}
