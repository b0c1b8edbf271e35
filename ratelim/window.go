package ratelim

import (
	"sync"
	"time"
)

// Window allows at most Max events in any trailing Period. Unlike the token
// bucket it never admits a burst above Max, which is what chat sessions need.
type Window struct {
	max    int
	period time.Duration
	now    func() time.Time

	mu     sync.Mutex
	events []time.Time
}

func NewWindow(max int, period time.Duration) *Window {
	return &Window{max: max, period: period, now: time.Now}
}

// WithClock swaps the time source.
func (w *Window) WithClock(now func() time.Time) *Window {
	w.now = now
	return w
}

// Allow records an event and reports whether it fits in the window. Rejected
// events are not recorded.
func (w *Window) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.period)
	keep := w.events[:0]
	for _, t := range w.events {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	w.events = keep
	if len(w.events) >= w.max {
		return false
	}
	w.events = append(w.events, now)
	return true
}

// RetryAfter is how long until the oldest event leaves the window.
func (w *Window) RetryAfter() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.events) < w.max {
		return 0
	}
	d := w.events[0].Add(w.period).Sub(w.now())
	if d < 0 {
		return 0
	}
	return d
}
