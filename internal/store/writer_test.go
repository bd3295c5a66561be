package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/soloport/devicegate/internal/model"
)

// stubBackend records applied operations; optionally fails everything.
type stubBackend struct {
	mu     sync.Mutex
	blocks map[model.Fingerprint]model.BlockRecord
	owner  *model.OwnerRecord
	fail   bool
	closed bool
}

func newStubBackend() *stubBackend {
	return &stubBackend{blocks: make(map[model.Fingerprint]model.BlockRecord)}
}

var errStub = errors.New("backend down")

func (s *stubBackend) SaveBlock(_ context.Context, rec model.BlockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStub
	}
	s.blocks[rec.Fingerprint] = rec
	return nil
}

func (s *stubBackend) DeleteBlock(_ context.Context, fp model.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStub
	}
	delete(s.blocks, fp)
	return nil
}

func (s *stubBackend) LoadBlocks(context.Context) ([]model.BlockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BlockRecord
	for _, r := range s.blocks {
		out = append(out, r)
	}
	return out, nil
}

func (s *stubBackend) SaveOwner(_ context.Context, rec model.OwnerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStub
	}
	s.owner = &rec
	return nil
}

func (s *stubBackend) DeleteOwner(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStub
	}
	s.owner = nil
	return nil
}

func (s *stubBackend) LoadOwner(context.Context) (model.OwnerRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == nil {
		return model.OwnerRecord{}, false, nil
	}
	return *s.owner, true, nil
}

func (s *stubBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestWriterAppliesOperations(t *testing.T) {
	backend := newStubBackend()
	w := NewWriter(backend, nil)

	w.SaveBlock(model.BlockRecord{Fingerprint: "fp1", Reason: "r"})
	w.SaveOwner(model.OwnerRecord{Fingerprint: "own"})
	w.DeleteBlock("fpX")

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if _, ok := backend.blocks["fp1"]; !ok {
		t.Error("block write not applied")
	}
	if backend.owner == nil || backend.owner.Fingerprint != "own" {
		t.Error("owner write not applied")
	}
	if !backend.closed {
		t.Error("Close must close the backend")
	}
}

func TestWriterBackendFailureDoesNotPropagate(t *testing.T) {
	backend := newStubBackend()
	backend.fail = true
	w := NewWriter(backend, nil)

	// Failing persistence must never surface to the caller.
	w.SaveBlock(model.BlockRecord{Fingerprint: "fp1"})
	w.SaveOwner(model.OwnerRecord{Fingerprint: "own"})

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if w.Failures() != 2 {
		t.Errorf("expected 2 recorded failures, got %d", w.Failures())
	}
}

func TestWriterNilBackend(t *testing.T) {
	w := NewWriter(nil, nil)

	w.SaveBlock(model.BlockRecord{Fingerprint: "fp1"})
	w.DeleteOwner()

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if w.Dropped() != 0 {
		t.Errorf("nil backend must not count drops, got %d", w.Dropped())
	}
}
