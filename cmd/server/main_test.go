package main

import (
	"context"
	"testing"
	"time"

	"github.com/ripplehq/ripple/backend/internal/notifications"
)

func TestPurgeLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		// The hourly ticker never fires inside this test, so the store is
		// never queried; only the cancellation path runs.
		purgeLoop(ctx, notifications.NewStore(nil))
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("purge loop did not stop after context cancellation")
	}
}
