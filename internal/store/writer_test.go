package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/twwat/imxup-sub002/internal/logging"
	"github.com/twwat/imxup-sub002/internal/store"
	"github.com/twwat/imxup-sub002/internal/testsupport"
)

// memorySource mimics the queue manager's in-memory map for writer tests.
type memorySource struct {
	mu        sync.Mutex
	galleries map[string]*store.Gallery
}

func (m *memorySource) snapshot(paths []string) []*store.Gallery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.Gallery, 0, len(paths))
	for _, path := range paths {
		if g, ok := m.galleries[path]; ok {
			out = append(out, g.Clone())
		}
	}
	return out
}

func TestWriterCoalescesDirtyPaths(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	src := &memorySource{galleries: map[string]*store.Gallery{
		"/pics/w": {ID: s.NextID(), Path: "/pics/w", Name: "W", Status: store.StatusReady},
	}}
	w := store.NewWriter(s, logging.NewNop(), 10*time.Millisecond, src.snapshot)

	// Many rapid mutations, one durable row.
	for i := 0; i < 50; i++ {
		src.mu.Lock()
		src.galleries["/pics/w"].UploadedImages = i
		src.mu.Unlock()
		w.MarkDirty("/pics/w")
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	loaded, err := s.GetByPath(ctx, "/pics/w")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if loaded == nil || loaded.UploadedImages != 49 {
		t.Fatalf("expected latest snapshot persisted, got %#v", loaded)
	}
}

func TestWriterFlushesOnInterval(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	src := &memorySource{galleries: map[string]*store.Gallery{
		"/pics/tick": {ID: s.NextID(), Path: "/pics/tick", Name: "Tick", Status: store.StatusReady},
	}}
	w := store.NewWriter(s, logging.NewNop(), 5*time.Millisecond, src.snapshot)
	w.Start()
	defer w.Close(ctx)

	w.MarkDirty("/pics/tick")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		loaded, err := s.GetByPath(ctx, "/pics/tick")
		if err != nil {
			t.Fatalf("GetByPath failed: %v", err)
		}
		if loaded != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("writer never flushed the dirty path")
}

func TestWriterDeleteWinsOverDirty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	g := &store.Gallery{ID: s.NextID(), Path: "/pics/gone", Name: "Gone", Status: store.StatusReady}
	if err := s.Upsert(ctx, g); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	src := &memorySource{galleries: map[string]*store.Gallery{}}
	w := store.NewWriter(s, logging.NewNop(), time.Hour, src.snapshot)

	w.MarkDirty("/pics/gone")
	w.MarkDeleted("/pics/gone")
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	loaded, err := s.GetByPath(ctx, "/pics/gone")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if loaded != nil {
		t.Fatal("deleted gallery should be gone")
	}
}

func TestWriterCloseFlushesPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	src := &memorySource{galleries: map[string]*store.Gallery{
		"/pics/close": {ID: s.NextID(), Path: "/pics/close", Name: "Close", Status: store.StatusReady},
	}}
	w := store.NewWriter(s, logging.NewNop(), time.Hour, src.snapshot)
	w.Start()

	w.MarkDirty("/pics/close")
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	loaded, err := s.GetByPath(ctx, "/pics/close")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Close must flush pending writes")
	}
}
