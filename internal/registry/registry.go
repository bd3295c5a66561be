// Package registry holds the single sanctioned device identity.
// The slot is register-once: under any number of concurrent first
// contacts exactly one caller wins, and the record never changes again
// outside the privileged reset path.
package registry

import (
	"sync"
	"time"

	"github.com/soloport/devicegate/internal/model"
)

// Registry is the single-slot owner store. Zero value is not usable;
// construct with New.
type Registry struct {
	mu  sync.Mutex
	rec *model.OwnerRecord
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// RegisterIfAbsent atomically sets the owner record if the slot is
// empty. The returned bool reports whether THIS call performed the
// registration; losers of a concurrent race get the winning record and
// false, and the gate routes them down the mismatch path.
func (r *Registry) RegisterIfAbsent(fp model.Fingerprint) (model.OwnerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rec != nil {
		return *r.rec, false
	}
	rec := model.OwnerRecord{Fingerprint: fp, RegisteredAt: time.Now().UTC()}
	r.rec = &rec
	return rec, true
}

// Current returns the registered owner record, if any.
func (r *Registry) Current() (model.OwnerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rec == nil {
		return model.OwnerRecord{}, false
	}
	return *r.rec, true
}

// Seed installs a record recovered from the durable store at startup.
// No-op when the slot is already occupied; reports whether it seeded.
func (r *Registry) Seed(rec model.OwnerRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rec != nil || rec.Fingerprint == "" {
		return false
	}
	r.rec = &rec
	return true
}

// Reset clears the slot. Privileged operation, never called from the
// request path. Returns the record that was cleared, if any.
func (r *Registry) Reset() (model.OwnerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rec == nil {
		return model.OwnerRecord{}, false
	}
	old := *r.rec
	r.rec = nil
	return old, true
}
