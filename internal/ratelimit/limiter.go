// Package ratelimit provides per-key windowed admission control.
package ratelimit

import (
	"sync"
	"time"
)

// Result describes the outcome of one admission attempt.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type window struct {
	start time.Time
	count int
}

// Limiter counts hits per key inside a rolling window. Backpressure is a
// boolean in the Result, never an error: callers decide what a denied hit
// means.
type Limiter struct {
	clock Clock

	mu      sync.Mutex
	windows map[string]*window
}

// New creates a Limiter.
func New() *Limiter {
	return NewWithClock(realClock{})
}

// NewWithClock creates a Limiter with a custom clock (for testing).
func NewWithClock(clock Clock) *Limiter {
	return &Limiter{
		clock:   clock,
		windows: make(map[string]*window),
	}
}

// Hit records one attempt for key and reports whether it is admitted under
// limit attempts per windowSeconds. Counting is atomic; Hit never blocks.
func (l *Limiter) Hit(key string, limit int, windowSeconds int) Result {
	now := l.clock.Now()
	span := time.Duration(windowSeconds) * time.Second

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(span)) {
		w = &window{start: now}
		l.windows[key] = w
	}

	resetAt := w.start.Add(span)
	if w.count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}
	w.count++
	return Result{Allowed: true, Remaining: limit - w.count, ResetAt: resetAt}
}

// Sweep drops windows that ended before now. Call it periodically to keep
// memory bounded under many distinct keys.
func (l *Limiter) Sweep(maxWindowSeconds int) {
	now := l.clock.Now()
	span := time.Duration(maxWindowSeconds) * time.Second

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.windows {
		if !now.Before(w.start.Add(span)) {
			delete(l.windows, k)
		}
	}
}
