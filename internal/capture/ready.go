package capture

import (
	"context"
	"sync"
)

// readySignal tracks DOMContentLoaded for the current navigation. Arm starts
// a new navigation; Fire is called from the event loop and never blocks.
type readySignal struct {
	mu    sync.Mutex
	ch    chan struct{}
	fired bool
}

func newReadySignal() *readySignal {
	return &readySignal{ch: make(chan struct{}), fired: true}
}

// Arm resets the signal and returns the channel closed by the next Fire.
func (r *readySignal) Arm() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ch = make(chan struct{})
	r.fired = false
	return r.ch
}

func (r *readySignal) Fire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fired {
		return
	}
	r.fired = true
	close(r.ch)
}

func waitReady(ctx context.Context, ready <-chan struct{}) error {
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
