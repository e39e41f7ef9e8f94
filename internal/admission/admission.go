// Package admission enforces the concurrent-execution cap. A slot is
// reserved synchronously at submission time and released exactly once
// when the owning execution reaches a terminal state.
package admission

import (
	"fmt"
	"sync"
)

// Rejected is returned by Reserve when the concurrency cap has been
// reached.
type Rejected struct {
	Limit   int
	Current int
}

func (r Rejected) Error() string {
	return fmt.Sprintf("admission: at capacity (%d/%d)", r.Current, r.Limit)
}

// Gate bounds the number of concurrently in-flight executions.
type Gate struct {
	mu      sync.Mutex
	limit   int
	current int
}

// NewGate returns a Gate bounded by limit. limit must be positive.
func NewGate(limit int) *Gate {
	if limit <= 0 {
		limit = 1
	}
	return &Gate{limit: limit}
}

// Reserve atomically tests and increments the in-flight counter. It
// returns a Rejected error, carrying the limit and the count observed
// at the time of rejection, when the cap is already reached.
func (g *Gate) Reserve() (*Reservation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current >= g.limit {
		return nil, Rejected{Limit: g.limit, Current: g.current}
	}
	g.current++
	return &Reservation{gate: g}, nil
}

// Current returns the number of currently reserved slots.
func (g *Gate) Current() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Limit returns the configured concurrency cap.
func (g *Gate) Limit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit
}

// SetLimit updates the concurrency cap, e.g. after a catalog reload
// changes settings.max_concurrent_executions. It does not evict
// already-admitted executions.
func (g *Gate) SetLimit(limit int) {
	if limit <= 0 {
		limit = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limit = limit
}

func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current > 0 {
		g.current--
	}
}

// Reservation is a scoped handle on one reserved slot. Release is
// idempotent: only the first call decrements the counter.
type Reservation struct {
	gate     *Gate
	released bool
	mu       sync.Mutex
}

// Release returns the slot to the gate. Safe to call more than once
// and from any goroutine; only the first call has effect.
func (r *Reservation) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	r.gate.release()
}
