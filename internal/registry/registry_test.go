package registry

import (
	"sync"
	"testing"
	"time"
)

func drain(s *Subscriber, timeout time.Duration) ([]byte, bool) {
	select {
	case payload, ok := <-s.C():
		return payload, ok
	case <-time.After(timeout):
		return nil, false
	}
}

func TestRegistry_PushReachesSubscriber(t *testing.T) {
	r := New()
	sub := NewSubscriber()
	r.Register("u1", sub)

	if !r.Push("u1", []byte("hello")) {
		t.Fatal("expected push to a registered user to report delivery")
	}

	payload, ok := drain(sub, time.Second)
	if !ok {
		t.Fatal("expected payload on subscriber channel")
	}
	if string(payload) != "hello" {
		t.Errorf("got payload %q, want %q", payload, "hello")
	}
}

func TestRegistry_PushWithoutSubscriber(t *testing.T) {
	r := New()

	if r.Push("nobody", []byte("x")) {
		t.Fatal("push to an unknown user must report no delivery")
	}
}

func TestRegistry_NewConnectionSupersedesOld(t *testing.T) {
	r := New()
	a := NewSubscriber()
	b := NewSubscriber()

	r.Register("u1", a)
	r.Register("u1", b)

	// The superseded subscriber's channel is closed so its stream ends.
	if _, ok := <-a.C(); ok {
		t.Fatal("expected superseded subscriber channel to be closed")
	}

	if !r.Push("u1", []byte("to-b")) {
		t.Fatal("expected push to reach the new subscriber")
	}
	payload, ok := drain(b, time.Second)
	if !ok || string(payload) != "to-b" {
		t.Fatalf("new subscriber did not receive the push, got %q ok=%v", payload, ok)
	}
}

func TestRegistry_StaleUnregisterKeepsNewEntry(t *testing.T) {
	r := New()
	a := NewSubscriber()
	b := NewSubscriber()

	r.Register("u1", a)
	r.Register("u1", b)

	// A's disconnect arrives after B replaced it; it must not evict B.
	r.Unregister("u1", a)

	if r.Len() != 1 {
		t.Fatalf("expected one live entry after stale unregister, got %d", r.Len())
	}
	if !r.Push("u1", []byte("still-b")) {
		t.Fatal("push after stale unregister must still reach B")
	}
	payload, ok := drain(b, time.Second)
	if !ok || string(payload) != "still-b" {
		t.Fatalf("B did not receive push after stale unregister, got %q ok=%v", payload, ok)
	}
}

func TestRegistry_UnregisterRemovesExactlyOnce(t *testing.T) {
	r := New()
	sub := NewSubscriber()
	r.Register("u1", sub)

	r.Unregister("u1", sub)
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d entries", r.Len())
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("expected channel closed after unregister")
	}

	// Second unregister of the same subscriber is a no-op (no double close).
	r.Unregister("u1", sub)
}

func TestRegistry_SlowSubscriberDoesNotBlockPush(t *testing.T) {
	r := New()
	sub := NewSubscriber()
	r.Register("u1", sub)

	// Fill the send queue without draining; pushes beyond the buffer are
	// dropped but must return promptly.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sendBuffer+10; i++ {
			r.Push("u1", []byte("m"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked on a slow subscriber")
	}
}

func TestRegistry_ConcurrentPushAndDisconnect(t *testing.T) {
	r := New()
	sub := NewSubscriber()
	r.Register("u1", sub)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.Push("u1", []byte("m"))
		}
	}()
	go func() {
		defer wg.Done()
		r.Unregister("u1", sub)
	}()

	// Must not panic (send on closed channel) or deadlock; pushes after the
	// entry disappears are treated as "no subscriber".
	wg.Wait()
}
