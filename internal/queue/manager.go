package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/twwat/imxup-sub002/internal/config"
	"github.com/twwat/imxup-sub002/internal/logging"
	"github.com/twwat/imxup-sub002/internal/store"
)

var (
	// ErrNotFound means no queue item exists for the path.
	ErrNotFound = errors.New("queue item not found")
	// ErrUploading rejects removal of an item mid-transfer.
	ErrUploading = errors.New("item is uploading")
	// ErrNotStartable rejects StartItem from an illegal state.
	ErrNotStartable = errors.New("item not in a startable state")
)

// startable lists the statuses StartItem accepts. scan_failed items must be
// removed and re-added so the folder is validated again.
var startable = map[store.Status]struct{}{
	store.StatusReady:        {},
	store.StatusPaused:       {},
	store.StatusIncomplete:   {},
	store.StatusUploadFailed: {},
}

// Scans is the scan worker's intake.
type Scans interface {
	Enqueue(path string)
}

const workQueueDepth = 1024

var titleCaser = cases.Title(language.English)

// Manager is the queue's single source of truth while the daemon runs.
type Manager struct {
	store     *store.Store
	writer    *store.Writer
	scans     Scans
	logger    *slog.Logger
	autoStart bool

	mu           sync.Mutex
	items        map[string]*store.Gallery
	order        []string
	counts       map[store.Status]int
	batching     bool
	batchDirty   map[string]struct{}
	pendingStart map[string]struct{}

	work chan string
}

// NewManager wires the manager to its store and scan worker. The background
// writer is created here so the manager's in-memory map is its only snapshot
// source.
func NewManager(st *store.Store, scans Scans, cfg *config.Config, logger *slog.Logger) *Manager {
	m := &Manager{
		store:        st,
		scans:        scans,
		logger:       logger.With(logging.String(logging.FieldComponent, "queue")),
		autoStart:    cfg.Upload.AutoStart,
		items:        make(map[string]*store.Gallery),
		counts:       make(map[store.Status]int),
		pendingStart: make(map[string]struct{}),
		work:         make(chan string, workQueueDepth),
	}
	interval := time.Duration(cfg.Workflow.PersistIntervalMS) * time.Millisecond
	m.writer = store.NewWriter(st, logger, interval, m.snapshot)
	return m
}

// Start recovers persisted state and launches the background writer.
// Transient statuses (queued, uploading) downgrade to ready with their
// resumable sets intact; unscanned items go back to the scan worker.
func (m *Manager) Start(ctx context.Context) error {
	downgraded, err := m.store.ResetTransient(ctx)
	if err != nil {
		return fmt.Errorf("reset transient statuses: %w", err)
	}
	if downgraded > 0 {
		m.logger.Info("downgraded interrupted transfers", logging.Int64("count", downgraded))
	}

	galleries, err := m.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load galleries: %w", err)
	}

	m.mu.Lock()
	var rescan []string
	for _, g := range galleries {
		m.items[g.Path] = g
		m.order = append(m.order, g.Path)
		m.counts[g.Status]++
		if g.Status == store.StatusValidating || g.Status == store.StatusScanning {
			g.Status = store.StatusValidating
			rescan = append(rescan, g.Path)
		}
	}
	m.mu.Unlock()

	for _, path := range rescan {
		m.scans.Enqueue(path)
	}
	m.logger.Info("queue loaded",
		logging.Int("items", len(galleries)),
		logging.Int("rescan", len(rescan)))

	m.writer.Start()
	return nil
}

// Stop flushes pending writes and halts the writer.
func (m *Manager) Stop(ctx context.Context) error {
	return m.writer.Close(ctx)
}

// Work is the channel the upload driver consumes: paths in queued status.
func (m *Manager) Work() <-chan string {
	return m.work
}

// Flush forces a synchronous durable write of everything pending.
func (m *Manager) Flush(ctx context.Context) error {
	return m.writer.Flush(ctx)
}

// Add creates a new item in validating status and hands it to the scan
// worker. It never blocks on I/O: the store id is pre-assigned from the
// watermark and the row is committed by the background writer.
func (m *Manager) Add(path, name, template string, tabID int64) (*store.Gallery, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	if name == "" {
		name = DisplayName(abs)
	}
	if tabID == 0 {
		tabID = 1
	}

	m.mu.Lock()
	if _, exists := m.items[abs]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", abs, store.ErrDuplicatePath)
	}
	g := &store.Gallery{
		ID:       m.store.NextID(),
		Path:     abs,
		Name:     name,
		Status:   store.StatusValidating,
		AddedAt:  time.Now().UTC(),
		Order:    len(m.order) + 1,
		TabID:    tabID,
		Template: template,
	}
	m.items[abs] = g
	m.order = append(m.order, abs)
	m.counts[g.Status]++
	m.markDirtyLocked(abs)
	clone := g.Clone()
	m.mu.Unlock()

	m.scans.Enqueue(abs)
	m.logger.Info("gallery added",
		logging.Int64(logging.FieldGallery, g.ID),
		logging.String("path", abs))
	return clone, nil
}

// AutoStartOnReady marks one item to be queued as soon as its scan
// succeeds, independent of the global auto_start setting.
func (m *Manager) AutoStartOnReady(path string) {
	m.mu.Lock()
	m.pendingStart[path] = struct{}{}
	m.mu.Unlock()
}

// StartItem moves an item into queued status and schedules it for the
// upload driver.
func (m *Manager) StartItem(path string) error {
	m.mu.Lock()
	g, ok := m.items[path]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if _, ok := startable[g.Status]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s is %s: %w", path, g.Status, ErrNotStartable)
	}
	m.setStatusLocked(g, store.StatusQueued)
	m.mu.Unlock()

	select {
	case m.work <- path:
	default:
		// Queue depth exceeded; the driver's periodic sweep picks up
		// queued items the channel never carried.
		m.logger.Warn("work queue full", logging.String("path", path))
	}
	return nil
}

// UpdateStatus is the single mutation point for an item's status.
func (m *Manager) UpdateStatus(path string, status store.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.items[path]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	m.setStatusLocked(g, status)
	return nil
}

// setStatusLocked keeps the O(1) per-status counters true and schedules the
// debounced durable write. Caller holds m.mu.
func (m *Manager) setStatusLocked(g *store.Gallery, status store.Status) {
	if g.Status == status {
		return
	}
	m.counts[g.Status]--
	if m.counts[g.Status] <= 0 {
		delete(m.counts, g.Status)
	}
	old := g.Status
	g.Status = status
	m.counts[status]++
	if store.IsTerminal(status) {
		now := time.Now().UTC()
		g.FinishedAt = &now
	}
	m.markDirtyLocked(g.Path)
	m.logger.Debug("status changed",
		logging.Int64(logging.FieldGallery, g.ID),
		logging.String("from", string(old)),
		logging.String(logging.FieldStatus, string(status)))
}

// RemoveItem deletes an item unless it is mid-transfer. Remaining insertion
// orders are renumbered densely.
func (m *Manager) RemoveItem(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.items[path]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if g.Status == store.StatusUploading {
		return fmt.Errorf("%s: %w", path, ErrUploading)
	}
	m.removeLocked(path, g)
	return nil
}

func (m *Manager) removeLocked(path string, g *store.Gallery) {
	delete(m.items, path)
	delete(m.pendingStart, path)
	m.counts[g.Status]--
	if m.counts[g.Status] <= 0 {
		delete(m.counts, g.Status)
	}
	for i, p := range m.order {
		if p == path {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.renumberLocked()
	m.writer.MarkDeleted(path)
}

// ClearByStatus removes every item currently in one of the given statuses.
func (m *Manager) ClearByStatus(statuses ...store.Status) int {
	want := make(map[store.Status]struct{}, len(statuses))
	for _, s := range statuses {
		if s == store.StatusUploading {
			continue
		}
		want[s] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var victims []string
	for path, g := range m.items {
		if _, ok := want[g.Status]; ok {
			victims = append(victims, path)
		}
	}
	for _, path := range victims {
		m.removeLocked(path, m.items[path])
	}
	return len(victims)
}

// MoveItem repositions an item at index (0-based) within the insertion
// order; every displaced item is renumbered.
func (m *Manager) MoveItem(path string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[path]; !ok {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	cur := -1
	for i, p := range m.order {
		if p == path {
			cur = i
			break
		}
	}
	if index < 0 {
		index = 0
	}
	if index >= len(m.order) {
		index = len(m.order) - 1
	}
	if cur == index {
		return nil
	}
	m.order = append(m.order[:cur], m.order[cur+1:]...)
	m.order = append(m.order[:index], append([]string{path}, m.order[index:]...)...)
	m.renumberLocked()
	return nil
}

// renumberLocked reassigns dense 1..K orders, marking changed rows dirty.
func (m *Manager) renumberLocked() {
	for i, path := range m.order {
		g := m.items[path]
		if g.Order != i+1 {
			g.Order = i + 1
			m.markDirtyLocked(path)
		}
	}
}

// BeginBatch defers dirty-path scheduling so a bulk operation lands in one
// store round-trip.
func (m *Manager) BeginBatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batching = true
	m.batchDirty = make(map[string]struct{})
}

// EndBatch hands the deferred set to the writer and flushes synchronously.
func (m *Manager) EndBatch(ctx context.Context) error {
	m.mu.Lock()
	deferred := m.batchDirty
	m.batching = false
	m.batchDirty = nil
	m.mu.Unlock()

	for path := range deferred {
		m.writer.MarkDirty(path)
	}
	return m.writer.Flush(ctx)
}

func (m *Manager) markDirtyLocked(path string) {
	if m.batching {
		m.batchDirty[path] = struct{}{}
		return
	}
	m.writer.MarkDirty(path)
}

// Get returns a deep copy of one item.
func (m *Manager) Get(path string) (*store.Gallery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.items[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return g.Clone(), nil
}

// Items returns deep copies in insertion order.
func (m *Manager) Items() []*store.Gallery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.Gallery, 0, len(m.order))
	for _, path := range m.order {
		out = append(out, m.items[path].Clone())
	}
	return out
}

// Counts returns a copy of the per-status counters.
func (m *Manager) Counts() map[store.Status]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[store.Status]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// snapshot feeds the background writer deep copies of dirty items.
func (m *Manager) snapshot(paths []string) []*store.Gallery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.Gallery, 0, len(paths))
	for _, path := range paths {
		if g, ok := m.items[path]; ok {
			out = append(out, g.Clone())
		}
	}
	return out
}

// DisplayName derives a human-readable gallery name from a folder basename.
func DisplayName(path string) string {
	base := filepath.Base(path)
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return "Untitled"
	}
	return titleCaser.String(base)
}
