// Package blocklist is the permanent store of disqualified fingerprints.
// Additions are monotonic: repeat offences merge into the existing
// record, and nothing on the request path ever removes one.
package blocklist

import (
	"sort"
	"sync"
	"time"

	"github.com/soloport/devicegate/internal/model"
)

type entry struct {
	reason       string
	firstSeenAt  time.Time
	lastSeenAt   time.Time
	attemptCount int64
	sources      map[string]bool
}

// BlockList is a mergeable, in-memory authoritative block store.
// All operations are linearizable under a single mutex.
type BlockList struct {
	mu      sync.Mutex
	entries map[model.Fingerprint]*entry
}

// New returns an empty BlockList.
func New() *BlockList {
	return &BlockList{entries: make(map[model.Fingerprint]*entry)}
}

// AddOrMerge upserts a block record. First block creates the record
// with the given reason; later blocks of the same fingerprint keep the
// original reason and merge metadata: attempt count, last-seen time,
// and the source address set. Returns a snapshot of the merged record.
func (b *BlockList) AddOrMerge(fp model.Fingerprint, reason, sourceAddr string) model.BlockRecord {
	now := time.Now().UTC()

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[fp]
	if !ok {
		e = &entry{
			reason:      reason,
			firstSeenAt: now,
			sources:     make(map[string]bool),
		}
		b.entries[fp] = e
	}
	e.attemptCount++
	e.lastSeenAt = now
	if sourceAddr != "" {
		e.sources[sourceAddr] = true
	}
	return e.snapshot(fp)
}

// Contains reports whether the fingerprint is blocked.
func (b *BlockList) Contains(fp model.Fingerprint) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[fp]
	return ok
}

// Get returns the block record for a fingerprint, if present.
func (b *BlockList) Get(fp model.Fingerprint) (model.BlockRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[fp]
	if !ok {
		return model.BlockRecord{}, false
	}
	return e.snapshot(fp), true
}

// All returns every block record, most recently seen first.
func (b *BlockList) All() []model.BlockRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.BlockRecord, 0, len(b.entries))
	for fp, e := range b.entries {
		out = append(out, e.snapshot(fp))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeenAt.Equal(out[j].LastSeenAt) {
			return out[i].LastSeenAt.After(out[j].LastSeenAt)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out
}

// Len returns the number of blocked fingerprints.
func (b *BlockList) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Remove deletes a block record. Privileged operator override only;
// the request-handling path never calls this. Reports whether a record
// was removed.
func (b *BlockList) Remove(fp model.Fingerprint) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[fp]; !ok {
		return false
	}
	delete(b.entries, fp)
	return true
}

// Seed installs a record recovered from the durable store at startup.
// An existing in-memory record wins; seeding never lowers attempt
// counts or drops source addresses.
func (b *BlockList) Seed(rec model.BlockRecord) {
	if rec.Fingerprint == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[rec.Fingerprint]; ok {
		return
	}
	e := &entry{
		reason:       rec.Reason,
		firstSeenAt:  rec.FirstSeenAt,
		lastSeenAt:   rec.LastSeenAt,
		attemptCount: rec.AttemptCount,
		sources:      make(map[string]bool, len(rec.SourceAddresses)),
	}
	for _, s := range rec.SourceAddresses {
		e.sources[s] = true
	}
	b.entries[rec.Fingerprint] = e
}

func (e *entry) snapshot(fp model.Fingerprint) model.BlockRecord {
	sources := make([]string, 0, len(e.sources))
	for s := range e.sources {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	return model.BlockRecord{
		Fingerprint:     fp,
		Reason:          e.reason,
		FirstSeenAt:     e.firstSeenAt,
		LastSeenAt:      e.lastSeenAt,
		AttemptCount:    e.attemptCount,
		SourceAddresses: sources,
	}
}
