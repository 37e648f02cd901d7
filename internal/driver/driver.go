package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twwat/imxup-sub002/internal/config"
	"github.com/twwat/imxup-sub002/internal/engine"
	"github.com/twwat/imxup-sub002/internal/logging"
	"github.com/twwat/imxup-sub002/internal/queue"
	"github.com/twwat/imxup-sub002/internal/store"
)

// Mirror pairs a configured secondary destination with its own slot pool.
type Mirror struct {
	Name string
	Pool engine.SlotPool
}

// Driver owns the active-gallery pointer. Everything it runs goes through
// the queue manager's mutation points, so the manager's map stays the single
// source of truth.
type Driver struct {
	mgr          *queue.Manager
	st           *store.Store
	eng          *engine.Engine
	mirrors      []mirrorRunner
	logger       *slog.Logger
	pollInterval time.Duration
	errorRetry   time.Duration

	mu         sync.Mutex
	activePath string
	activeStop *engine.StopFlag
}

type mirrorRunner struct {
	name string
	eng  *engine.Engine
}

// New builds a driver over an already-constructed primary pool and one pool
// per mirror destination.
func New(mgr *queue.Manager, st *store.Store, primary engine.SlotPool, mirrors []Mirror, cfg *config.Config, logger *slog.Logger) *Driver {
	d := &Driver{
		mgr:          mgr,
		st:           st,
		eng:          engine.New(primary, cfg.Upload.MaxRetries, logger),
		logger:       logger.With(logging.String(logging.FieldComponent, "driver")),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetry:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
	}
	if d.pollInterval <= 0 {
		d.pollInterval = 2 * time.Second
	}
	for _, m := range mirrors {
		d.mirrors = append(d.mirrors, mirrorRunner{
			name: m.Name,
			eng:  engine.New(m.Pool, cfg.Upload.MaxRetries, logger),
		})
	}
	return d
}

// Run blocks consuming the work queue until ctx ends. In-flight transfers
// finish before it returns. A periodic sweep picks up queued items whose
// work-channel handoff was dropped under load, so every queued item is
// eventually processed even past the channel's depth.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-d.mgr.Work():
			if d.process(ctx, path) {
				d.pause(ctx, d.errorRetry)
			}
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

// sweep processes every item still in queued status, in insertion order.
// Items already delivered through the channel are skipped by process's
// status guard, so a double handoff is harmless.
func (d *Driver) sweep(ctx context.Context) {
	for _, g := range d.mgr.Items() {
		if ctx.Err() != nil {
			return
		}
		if g.Status != store.StatusQueued {
			continue
		}
		if d.process(ctx, g.Path) {
			d.pause(ctx, d.errorRetry)
		}
	}
}

// pause sleeps between transfers after one could not start, bounded by ctx.
func (d *Driver) pause(ctx context.Context, wait time.Duration) {
	if wait <= 0 {
		return
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Active reports the path currently transferring, if any.
func (d *Driver) Active() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activePath, d.activePath != ""
}

// Stop requests a soft stop for one item: the active transfer stops at its
// next submission boundary; a queued item is demoted to paused before the
// driver ever picks it up.
func (d *Driver) Stop(path string) error {
	d.mu.Lock()
	if d.activePath == path && d.activeStop != nil {
		d.activeStop.Trigger()
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	g, err := d.mgr.Get(path)
	if err != nil {
		return err
	}
	if g.Status == store.StatusQueued {
		return d.mgr.UpdateStatus(path, store.StatusPaused)
	}
	return fmt.Errorf("%s is %s, nothing to stop", path, g.Status)
}

func (d *Driver) setActive(path string, stop *engine.StopFlag) {
	d.mu.Lock()
	d.activePath = path
	d.activeStop = stop
	d.mu.Unlock()
}

// process runs one gallery transfer end to end. It reports whether the
// transfer failed before any image was submitted, so the caller can back off
// before the next item.
func (d *Driver) process(ctx context.Context, path string) bool {
	g, err := d.mgr.Get(path)
	if err != nil {
		d.logger.Warn("dequeued unknown item", logging.String("path", path))
		return false
	}
	// A stop or removal may have landed between StartItem and dequeue.
	if g.Status != store.StatusQueued {
		d.logger.Debug("skipping dequeued item",
			logging.String("path", path),
			logging.String(logging.FieldStatus, string(g.Status)))
		return false
	}

	stop := &engine.StopFlag{}
	d.setActive(path, stop)
	defer d.setActive("", nil)

	if err := d.mgr.UpdateStatus(path, store.StatusUploading); err != nil {
		d.logger.Warn("status update failed", logging.String("path", path), logging.Error(err))
		return false
	}

	events := make(chan engine.Event, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.forward(path, events)
	}()

	res, err := d.eng.Run(ctx, engine.Request{
		Gallery: g,
		Events:  events,
		Stop:    stop,
		RegisterRename: func(remoteID, name string) error {
			return d.st.AddPendingRename(ctx, remoteID, name)
		},
	})
	wg.Wait()

	if err != nil {
		d.logger.Error("transfer could not start",
			logging.Int64(logging.FieldGallery, g.ID),
			logging.Error(err))
		if ferr := d.mgr.FinishItem(path, store.StatusUploadFailed, nil,
			[]store.FileError{{Reason: err.Error()}}, 0, 0); ferr != nil {
			d.logger.Warn("finalize failed", logging.Error(ferr))
		}
		return true
	}

	if res.RemoteID != "" {
		if err := d.mgr.SetRemoteGallery(path, res.RemoteID, res.RemoteURL); err != nil {
			d.logger.Warn("remote identity update failed", logging.Error(err))
		}
	}
	status := statusFor(res)
	if err := d.mgr.FinishItem(path, status, res.Images, res.Failures, res.WidthAgg, res.HeightAgg); err != nil {
		d.logger.Warn("finalize failed", logging.Error(err))
	}
	d.persistImages(ctx, g.ID, res.Images)

	if status == store.StatusCompleted && len(d.mirrors) > 0 {
		d.runMirrors(ctx, g, stop)
	}
	return false
}

// statusFor maps an engine result onto the item's terminal status: a soft
// stop always finalizes incomplete; partial success is incomplete;
// upload_failed means nothing made it to the remote.
func statusFor(res *engine.Result) store.Status {
	switch {
	case res.Complete():
		return store.StatusCompleted
	case res.Stopped, res.UploadedCount() > 0:
		return store.StatusIncomplete
	default:
		return store.StatusUploadFailed
	}
}

// forward translates engine events into manager mutations and logs.
func (d *Driver) forward(path string, events <-chan engine.Event) {
	for ev := range events {
		switch e := ev.(type) {
		case engine.GalleryStarted:
			d.logger.Info("transfer started",
				logging.Int64(logging.FieldGallery, e.GalleryID),
				logging.String(logging.FieldSessionID, e.SessionID),
				logging.Int("pending", e.Pending))
		case engine.ImageCompleted:
			if e.Outcome.OK() {
				if err := d.mgr.MarkImageUploaded(path, *e.Outcome.Meta); err != nil {
					d.logger.Warn("image bookkeeping failed",
						logging.String(logging.FieldFilename, e.Outcome.Filename),
						logging.Error(err))
				}
			}
		}
	}
}

// persistImages writes the normalized per-image rows for a finished run.
func (d *Driver) persistImages(ctx context.Context, galleryID int64, images []store.ImageMeta) {
	if len(images) == 0 {
		return
	}
	now := time.Now().UTC()
	records := make([]store.ImageRecord, 0, len(images))
	for _, m := range images {
		records = append(records, store.ImageRecord{
			GalleryID:  galleryID,
			Filename:   m.Filename,
			Size:       m.Size,
			Width:      m.Width,
			Height:     m.Height,
			UploadedAt: &now,
			URL:        m.URL,
			ThumbURL:   m.ThumbURL,
		})
	}
	if err := d.st.ReplaceImages(ctx, galleryID, records); err != nil {
		d.logger.Warn("image rows not persisted",
			logging.Int64(logging.FieldGallery, galleryID),
			logging.Error(err))
	}
}

// runMirrors distributes a completed gallery to each secondary destination.
// Each mirror run starts from a clean slate: the primary's resumable set and
// remote identity must not leak into another host.
func (d *Driver) runMirrors(ctx context.Context, g *store.Gallery, stop *engine.StopFlag) {
	for _, m := range d.mirrors {
		rec, err := d.st.CreateSecondaryUpload(ctx, g.ID, m.name)
		if err != nil {
			d.logger.Warn("mirror record creation failed",
				logging.String("destination", m.name), logging.Error(err))
			continue
		}
		if stop.Stopped() || ctx.Err() != nil {
			rec.Status = store.SecondaryCancelled
			d.updateSecondary(ctx, rec)
			continue
		}

		rec.Status = store.SecondaryUploading
		rec.TotalBytes = g.TotalBytes
		d.updateSecondary(ctx, rec)

		fresh := g.Clone()
		fresh.Uploaded = nil
		fresh.Results = nil
		fresh.RemoteID = ""
		fresh.RemoteURL = ""

		res, err := m.eng.Run(ctx, engine.Request{Gallery: fresh, Stop: stop})
		switch {
		case err != nil:
			rec.Status = store.SecondaryFailed
			rec.Error = err.Error()
		case res.Stopped:
			rec.Status = store.SecondaryCancelled
			rec.UploadedBytes = res.TransferredBytes
		case res.Complete():
			rec.Status = store.SecondaryCompleted
			rec.UploadedBytes = res.TransferredBytes
			rec.ResultURL = res.RemoteURL
		default:
			rec.Status = store.SecondaryFailed
			rec.UploadedBytes = res.TransferredBytes
			if len(res.Failures) > 0 {
				rec.Error = fmt.Sprintf("%d of %d images failed", res.Failed, res.TotalImages)
			}
		}
		d.updateSecondary(ctx, rec)
		d.logger.Info("mirror finished",
			logging.Int64(logging.FieldGallery, g.ID),
			logging.String("destination", m.name),
			logging.String(logging.FieldStatus, string(rec.Status)))
	}
}

func (d *Driver) updateSecondary(ctx context.Context, rec *store.SecondaryUpload) {
	if err := d.st.UpdateSecondaryUpload(ctx, rec); err != nil {
		d.logger.Warn("mirror record update failed",
			logging.String("destination", rec.Destination),
			logging.Error(err))
	}
}
