package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soloport/devicegate/internal/model"
)

const (
	writerQueueSize = 1024
	writeTimeout    = 5 * time.Second
)

type opKind int

const (
	opSaveBlock opKind = iota
	opDeleteBlock
	opSaveOwner
	opDeleteOwner
)

type op struct {
	kind  opKind
	block model.BlockRecord
	fp    model.Fingerprint
	owner model.OwnerRecord
}

// Writer applies store mutations asynchronously so the decision path
// never blocks on persistence. Enqueueing never waits: when the queue
// is full or the backend keeps failing, operations are dropped with a
// warning and the in-memory state remains authoritative.
type Writer struct {
	backend Backend
	logger  *slog.Logger

	ops  chan op
	wg   sync.WaitGroup
	once sync.Once

	dropped  atomic.Int64
	failures atomic.Int64
}

// NewWriter starts a writer draining into the backend. A nil backend
// yields a writer whose operations are all no-ops (in-memory-only mode).
func NewWriter(backend Backend, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		backend: backend,
		logger:  logger,
		ops:     make(chan op, writerQueueSize),
	}
	if backend != nil {
		w.wg.Add(1)
		go w.run()
	}
	return w
}

// SaveBlock queues a block-record upsert.
func (w *Writer) SaveBlock(rec model.BlockRecord) {
	w.enqueue(op{kind: opSaveBlock, block: rec})
}

// DeleteBlock queues a block-record removal.
func (w *Writer) DeleteBlock(fp model.Fingerprint) {
	w.enqueue(op{kind: opDeleteBlock, fp: fp})
}

// SaveOwner queues an owner-record write.
func (w *Writer) SaveOwner(rec model.OwnerRecord) {
	w.enqueue(op{kind: opSaveOwner, owner: rec})
}

// DeleteOwner queues an owner-record removal.
func (w *Writer) DeleteOwner() {
	w.enqueue(op{kind: opDeleteOwner})
}

// Dropped returns how many operations were discarded because the queue
// was full.
func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// Failures returns how many operations the backend rejected.
func (w *Writer) Failures() int64 {
	return w.failures.Load()
}

// Close drains pending operations and closes the backend.
func (w *Writer) Close() error {
	w.once.Do(func() { close(w.ops) })
	w.wg.Wait()
	if w.backend == nil {
		return nil
	}
	return w.backend.Close()
}

func (w *Writer) enqueue(o op) {
	if w.backend == nil {
		return
	}
	select {
	case w.ops <- o:
	default:
		if w.dropped.Add(1) == 1 {
			w.logger.Warn("durable store queue full, dropping writes; in-memory state remains authoritative")
		}
	}
}

func (w *Writer) run() {
	defer w.wg.Done()

	for o := range w.ops {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := w.apply(ctx, o)
		cancel()
		if err != nil {
			n := w.failures.Add(1)
			// Warn on the first failure and then once every 100 so a
			// dead backend does not flood the log.
			if n == 1 || n%100 == 0 {
				w.logger.Warn("durable store write failed, continuing in-memory",
					"error", err, "failures", n)
			}
		}
	}
}

func (w *Writer) apply(ctx context.Context, o op) error {
	switch o.kind {
	case opSaveBlock:
		return w.backend.SaveBlock(ctx, o.block)
	case opDeleteBlock:
		return w.backend.DeleteBlock(ctx, o.fp)
	case opSaveOwner:
		return w.backend.SaveOwner(ctx, o.owner)
	case opDeleteOwner:
		return w.backend.DeleteOwner(ctx)
	}
	return nil
}
