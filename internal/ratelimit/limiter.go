package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/thejerf/abtime"
)

// pruneAbove is the number of tracked clients above which expired windows
// are dropped.
const pruneAbove = 1024

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded   bool
	Current    int
	Limit      int
	RetryAfter time.Duration
	Reason     string
}

type window struct {
	start time.Time
	count int
}

// Limiter counts requests per client key in fixed windows.
// It is safe for concurrent use.
type Limiter struct {
	limit Limit
	clock abtime.AbstractTime

	mu      sync.Mutex
	windows map[string]*window
}

// New creates a limiter. A nil clock uses real time.
func New(limit Limit, clock abtime.AbstractTime) *Limiter {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &Limiter{limit: limit, clock: clock, windows: make(map[string]*window)}
}

// Allow records a request for key unless the key's window is full.
func (l *Limiter) Allow(key string) CheckResult {
	if !l.limit.Enabled() {
		return CheckResult{}
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= l.limit.Window {
		if len(l.windows) >= pruneAbove {
			l.prune(now)
		}
		w = &window{start: now}
		l.windows[key] = w
	}

	if w.count >= l.limit.MaxRequests {
		return CheckResult{
			Exceeded:   true,
			Current:    w.count,
			Limit:      l.limit.MaxRequests,
			RetryAfter: w.start.Add(l.limit.Window).Sub(now),
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d requests in %s window",
				w.count, l.limit.MaxRequests, l.limit.Window),
		}
	}
	w.count++
	return CheckResult{Current: w.count, Limit: l.limit.MaxRequests}
}

func (l *Limiter) prune(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.limit.Window {
			delete(l.windows, k)
		}
	}
}

// Clients returns the number of tracked client windows.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
