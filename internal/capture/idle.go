package capture

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// idleTracker counts in-flight requests to detect a quiet network.
type idleTracker struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func newIdleTracker() *idleTracker {
	return &idleTracker{inflight: make(map[string]struct{})}
}

func (t *idleTracker) Started(id string) {
	t.mu.Lock()
	t.inflight[id] = struct{}{}
	t.mu.Unlock()
}

func (t *idleTracker) Finished(id string) {
	t.mu.Lock()
	delete(t.inflight, id)
	t.mu.Unlock()
}

func (t *idleTracker) Inflight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// WaitIdle returns once at most maxInflight requests have been open for the
// whole quiet window.
func (t *idleTracker) WaitIdle(ctx context.Context, maxInflight int, quiet time.Duration) error {
	poll := quiet / 10
	if poll < 10*time.Millisecond {
		poll = 10 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var quietSince time.Time
	for {
		now := time.Now()
		if t.Inflight() <= maxInflight {
			if quietSince.IsZero() {
				quietSince = now
			}
			if now.Sub(quietSince) >= quiet {
				return nil
			}
		} else {
			quietSince = time.Time{}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("network never settled (%d requests in flight): %w", t.Inflight(), ctx.Err())
		}
	}
}
