package decisionlog

import (
	"sync"

	"github.com/soloport/devicegate/internal/model"
)

// Ring is a fixed-capacity buffer of recent decisions, oldest dropped
// first. It backs the admin "recent decisions" endpoint without letting
// memory grow with traffic. Safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	buf   []model.AccessDecision
	next  int
	count int
}

// NewRing creates a ring holding up to capacity decisions.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 256
	}
	return &Ring{buf: make([]model.AccessDecision, capacity)}
}

// Push appends a decision, dropping the oldest when full.
func (r *Ring) Push(d model.AccessDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = d
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Recent returns the stored decisions, newest first.
func (r *Ring) Recent() []model.AccessDecision {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.AccessDecision, 0, r.count)
	for i := 1; i <= r.count; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Len returns the number of stored decisions.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
