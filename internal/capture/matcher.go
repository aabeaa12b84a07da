package capture

import (
	"context"
	"sync"
)

// ResponseEvent is a response whose body has finished loading.
type ResponseEvent struct {
	RequestID string
	URL       string
	Status    int
}

// MatchFunc selects the response a capture waits for.
type MatchFunc func(ResponseEvent) bool

// MatchURL matches responses for exactly target.
func MatchURL(target string) MatchFunc {
	return func(ev ResponseEvent) bool { return ev.URL == target }
}

// responseBuffer keeps every observed response, so a waiter registered after
// the response arrived still sees it.
type responseBuffer struct {
	mu     sync.Mutex
	events []ResponseEvent
	wake   chan struct{}
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{wake: make(chan struct{}, 1)}
}

// Observe never blocks; it is called from the browser event loop.
func (b *responseBuffer) Observe(ev ResponseEvent) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Wait returns the first buffered or future event accepted by match.
func (b *responseBuffer) Wait(ctx context.Context, match MatchFunc) (ResponseEvent, error) {
	next := 0
	for {
		if ev, ok := b.scan(&next, match); ok {
			return ev, nil
		}
		select {
		case <-b.wake:
		case <-ctx.Done():
			return ResponseEvent{}, ctx.Err()
		}
	}
}

func (b *responseBuffer) scan(next *int, match MatchFunc) (ResponseEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ; *next < len(b.events); *next++ {
		if match(b.events[*next]) {
			return b.events[*next], true
		}
	}
	return ResponseEvent{}, false
}
