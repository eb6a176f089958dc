package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is an in-process sliding-window limiter. Each identifier keeps at
// most max timestamps, so memory per identifier is bounded. It is safe for
// concurrent use.
type Window struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
	now    func() time.Time
}

// Option configures a Window.
type Option func(*Window)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Window) { w.now = now }
}

// NewWindow allows at most max calls per identifier in any span of length window.
func NewWindow(window time.Duration, max int, opts ...Option) *Window {
	w := &Window{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// prune drops timestamps that have left the window. Timestamps are appended
// in order, so the live ones are a suffix.
func (w *Window) prune(ts []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= w.window {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

// IsAllowed records a call for id and reports whether it fits in the window.
func (w *Window) IsAllowed(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	ts := w.prune(w.hits[id], now)
	if len(ts) >= w.max {
		w.hits[id] = ts
		return false
	}
	w.hits[id] = append(ts, now)
	return true
}

// Reset clears id's window.
func (w *Window) Reset(id string) {
	w.mu.Lock()
	delete(w.hits, id)
	w.mu.Unlock()
}

// Sweep forgets identifiers with no calls left in the window and returns how
// many were dropped.
func (w *Window) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	dropped := 0
	for id, ts := range w.hits {
		ts = w.prune(ts, now)
		if len(ts) == 0 {
			delete(w.hits, id)
			dropped++
			continue
		}
		w.hits[id] = ts
	}
	return dropped
}

// Len returns the number of tracked identifiers.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.hits)
}

// Run sweeps every interval until ctx is cancelled.
func (w *Window) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (w *Window) Allow(_ context.Context, id string) (bool, error) {
	return w.IsAllowed(id), nil
}

func (w *Window) Clear(_ context.Context, id string) error {
	w.Reset(id)
	return nil
}
