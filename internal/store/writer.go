package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/twwat/imxup-sub002/internal/logging"
)

// Snapshot returns deep copies of the in-memory galleries for the given
// paths. Paths no longer present in memory are simply omitted.
type Snapshot func(paths []string) []*Gallery

// Writer is the single background task that serializes durable writes.
// Callers mark paths dirty (or deleted); the writer drains the pending set on
// a fixed interval and flushes everything in one transaction, coalescing
// rapid mutations into one I/O operation.
type Writer struct {
	store    *Store
	logger   *slog.Logger
	interval time.Duration
	snapshot Snapshot

	mu      sync.Mutex
	dirty   map[string]struct{}
	deleted map[string]struct{}

	flushMu  sync.Mutex
	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

// NewWriter constructs a writer flushing every interval via snapshot.
func NewWriter(s *Store, logger *slog.Logger, interval time.Duration, snapshot Snapshot) *Writer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Writer{
		store:    s,
		logger:   logger.With(logging.String(logging.FieldComponent, "writer")),
		interval: interval,
		snapshot: snapshot,
		dirty:    make(map[string]struct{}),
		deleted:  make(map[string]struct{}),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background flush loop.
func (w *Writer) Start() {
	go w.run()
}

func (w *Writer) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			return
		case <-ticker.C:
			if err := w.Flush(context.Background()); err != nil {
				w.logger.Warn("periodic flush failed", logging.Error(err))
			}
		}
	}
}

// MarkDirty schedules a gallery for the next flush.
func (w *Writer) MarkDirty(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.deleted, path)
	w.dirty[path] = struct{}{}
}

// MarkDeleted schedules a gallery row for deletion on the next flush.
func (w *Writer) MarkDeleted(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.dirty, path)
	w.deleted[path] = struct{}{}
}

// Flush synchronously drains everything pending. Safe to call concurrently
// with the background loop.
func (w *Writer) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	var dirtyPaths []string
	for path := range w.dirty {
		dirtyPaths = append(dirtyPaths, path)
	}
	var deletedPaths []string
	for path := range w.deleted {
		deletedPaths = append(deletedPaths, path)
	}
	w.dirty = make(map[string]struct{})
	w.deleted = make(map[string]struct{})
	w.mu.Unlock()

	if len(deletedPaths) > 0 {
		if _, err := w.store.DeleteByPaths(ctx, deletedPaths...); err != nil {
			return err
		}
	}
	if len(dirtyPaths) > 0 {
		galleries := w.snapshot(dirtyPaths)
		if err := w.store.UpsertGalleries(ctx, galleries); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes pending writes and stops the loop.
func (w *Writer) Close(ctx context.Context) error {
	w.stopOnce.Do(func() {
		close(w.quit)
	})
	<-w.done
	return w.Flush(ctx)
}
