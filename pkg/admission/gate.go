// Package admission provides a sliding-window gate that bounds how many
// reply generations the process starts within a time window.
//
// One Gate is shared by every session. It is purely in-memory and resets
// when the process restarts.
package admission

import (
	"sync"
	"time"
)

// Default limits.
const (
	DefaultMaxRequests = 40
	DefaultWindow      = 24 * time.Hour
)

// Gate is a sliding-window limiter. It is safe for concurrent use.
type Gate struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	entries []time.Time // admission times, oldest first
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// New creates a gate admitting at most max calls per window.
// Non-positive values fall back to the defaults.
func New(max int, window time.Duration, opts ...Option) *Gate {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	g := &Gate{
		max:    max,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TryAdmit prunes entries older than the window and admits the call if
// fewer than max remain. Pruning and recording happen under one lock.
func (g *Gate) TryAdmit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)
	if len(g.entries) >= g.max {
		return false
	}
	g.entries = append(g.entries, now)
	return true
}

// Stats reports current usage.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prune(g.now())
	return Stats{
		Used:   len(g.entries),
		Max:    g.max,
		Window: g.window,
	}
}

// Stats is a snapshot of gate usage.
type Stats struct {
	Used   int           `json:"used"`
	Max    int           `json:"max"`
	Window time.Duration `json:"window"`
}

func (g *Gate) prune(now time.Time) {
	cut := 0
	for cut < len(g.entries) && now.Sub(g.entries[cut]) >= g.window {
		cut++
	}
	if cut > 0 {
		g.entries = append(g.entries[:0], g.entries[cut:]...)
	}
}
