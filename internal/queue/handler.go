package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twwat/imxup-sub002/internal/logging"
	"github.com/twwat/imxup-sub002/internal/scanner"
	"github.com/twwat/imxup-sub002/internal/store"
)

// ScanStarted implements scanner.Handler.
func (m *Manager) ScanStarted(path string) {
	if err := m.UpdateStatus(path, store.StatusScanning); err != nil {
		m.logger.Warn("scan started for unknown item", logging.String("path", path))
	}
}

// ScanSucceeded records the scan's measurements and moves the item to ready.
// The write is flushed synchronously so views reflect readiness without the
// debounce delay; auto-start then queues the item in the same transition.
func (m *Manager) ScanSucceeded(path string, res *scanner.Result) {
	m.mu.Lock()
	g, ok := m.items[path]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("scan finished for unknown item", logging.String("path", path))
		return
	}
	g.TotalImages = res.TotalImages
	g.TotalBytes = res.TotalBytes
	g.WidthAgg = res.WidthAgg
	g.HeightAgg = res.HeightAgg
	g.Failures = nil
	m.setStatusLocked(g, store.StatusReady)
	_, start := m.pendingStart[path]
	delete(m.pendingStart, path)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.writer.Flush(ctx); err != nil {
		m.logger.Warn("ready flush failed", logging.String("path", path), logging.Error(err))
	}

	if m.autoStart || start {
		if err := m.StartItem(path); err != nil {
			m.logger.Warn("auto-start failed", logging.String("path", path), logging.Error(err))
		}
	}
}

// ScanFailed finalizes the item as scan_failed, keeping the per-file
// failure list for diagnostics. Like ScanSucceeded, the terminal state is
// flushed synchronously rather than waiting out the debounce.
func (m *Manager) ScanFailed(path string, reason error) {
	m.mu.Lock()
	g, ok := m.items[path]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("scan failed for unknown item", logging.String("path", path))
		return
	}
	delete(m.pendingStart, path)
	var valErr *scanner.ValidationError
	if errors.As(reason, &valErr) {
		g.Failures = valErr.Failures
	} else {
		g.Failures = []store.FileError{{Filename: "", Reason: reason.Error()}}
	}
	m.setStatusLocked(g, store.StatusScanFailed)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.writer.Flush(ctx); err != nil {
		m.logger.Warn("scan_failed flush failed", logging.String("path", path), logging.Error(err))
	}
}

// SetRemoteGallery records the remote identity once the engine acquires it.
func (m *Manager) SetRemoteGallery(path, remoteID, remoteURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.items[path]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	g.RemoteID = remoteID
	g.RemoteURL = remoteURL
	m.markDirtyLocked(path)
	return nil
}

// MarkImageUploaded grows the resumable set and running byte/image counters
// as the engine completes individual files.
func (m *Manager) MarkImageUploaded(path string, meta store.ImageMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.items[path]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if g.HasUploaded(meta.Filename) {
		return nil
	}
	g.MarkUploaded(meta.Filename)
	g.UploadedImages++
	g.UploadedBytes += meta.Size
	m.markDirtyLocked(path)
	return nil
}

// FinishItem applies the engine's aggregate result and the terminal status
// the driver decided on.
func (m *Manager) FinishItem(path string, status store.Status, images []store.ImageMeta, failures []store.FileError, widthAgg, heightAgg int) error {
	m.mu.Lock()
	g, ok := m.items[path]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	g.Results = images
	g.Failures = failures
	if widthAgg > 0 {
		g.WidthAgg = widthAgg
	}
	if heightAgg > 0 {
		g.HeightAgg = heightAgg
	}
	m.setStatusLocked(g, status)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.writer.Flush(ctx)
}
