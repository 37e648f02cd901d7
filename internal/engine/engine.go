package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/twwat/imxup-sub002/internal/logging"
	"github.com/twwat/imxup-sub002/internal/scanner"
	"github.com/twwat/imxup-sub002/internal/store"
	"github.com/twwat/imxup-sub002/internal/uploader"
)

const passBackoffBase = 500 * time.Millisecond

// Engine transfers one gallery at a time through a bounded slot pool.
type Engine struct {
	slots       SlotPool
	maxRetries  int
	backoffBase time.Duration
	logger      *slog.Logger
}

// New builds an engine. maxRetries is the total pass budget: the initial
// pass plus retries, minimum 1.
func New(slots SlotPool, maxRetries int, logger *slog.Logger) *Engine {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Engine{
		slots:       slots,
		maxRetries:  maxRetries,
		backoffBase: passBackoffBase,
		logger:      logger.With(logging.String(logging.FieldComponent, "engine")),
	}
}

// Request carries one gallery into Run.
type Request struct {
	// Gallery is a caller-owned snapshot; Run never mutates it.
	Gallery *store.Gallery
	// Events, when non-nil, receives the run's event stream and is closed
	// when Run returns. The consumer must drain it.
	Events chan<- Event
	// Stop is the cooperative soft-stop flag; may be nil.
	Stop *StopFlag
	// RegisterRename records an anonymously created remote gallery so its
	// display name can be corrected asynchronously; may be nil.
	RegisterRename func(remoteID, name string) error
}

type run struct {
	e      *Engine
	g      *store.Gallery
	req    Request
	logger *slog.Logger

	remoteID  string
	remoteURL string

	bytes      atomic.Int64
	hadConnect atomic.Bool
}

// Run executes the full transfer and returns the aggregate result. An error
// is returned only when the run could not start (unreadable folder, no
// images); per-image failures live in the Result.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Events != nil {
		defer close(req.Events)
	}
	g := req.Gallery
	sessionID := uuid.NewString()
	r := &run{
		e:   e,
		g:   g,
		req: req,
		logger: e.logger.With(
			logging.Int64(logging.FieldGallery, g.ID),
			logging.String(logging.FieldSessionID, sessionID)),
	}

	files, err := enumerateImages(g.Path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files in %s", g.Path)
	}

	// Session state is cleared exactly once per gallery, never per image.
	if err := e.slots.ResetSessions(); err != nil {
		r.logger.Warn("session reset failed", logging.Error(err))
	}

	resumedMeta := make(map[string]store.ImageMeta, len(g.Results))
	for _, m := range g.Results {
		resumedMeta[m.Filename] = m
	}
	var pending []string
	resumed := 0
	for _, name := range files {
		if g.HasUploaded(name) {
			resumed++
		} else {
			pending = append(pending, name)
		}
	}

	r.emit(GalleryStarted{
		GalleryID:   g.ID,
		Path:        g.Path,
		SessionID:   sessionID,
		TotalImages: len(files),
		Pending:     len(pending),
	})
	r.logger.Info("gallery transfer started",
		logging.Int("images", len(files)),
		logging.Int("pending", len(pending)),
		logging.Int("resumed", resumed))

	start := time.Now()
	r.remoteID, r.remoteURL = g.RemoteID, g.RemoteURL
	if r.remoteID == "" && len(pending) > 0 {
		r.createNamedGallery(ctx, g.Name)
	}

	success := make(map[string]*store.ImageMeta)
	lastErr := make(map[string]string)
	stopped := false

	toSend := pending
	for pass := 1; len(toSend) > 0; pass++ {
		failed, passStopped := r.runPass(ctx, pass, toSend, success, lastErr)
		toSend = failed
		if passStopped {
			stopped = true
			break
		}
		if len(toSend) == 0 || pass >= e.maxRetries {
			break
		}
		if !sleepCtx(ctx, r.backoff(pass)) {
			stopped = true
			break
		}
	}

	res := &Result{
		RemoteID:         r.remoteID,
		RemoteURL:        r.remoteURL,
		TotalImages:      len(files),
		Succeeded:        len(success),
		Failed:           len(lastErr),
		Resumed:          resumed,
		TransferredBytes: r.bytes.Load(),
		Elapsed:          time.Since(start),
		DominantExt:      dominantExtension(files),
		Stopped:          stopped,
	}
	for _, name := range files {
		if meta, ok := success[name]; ok {
			res.Images = append(res.Images, *meta)
			continue
		}
		if reason, ok := lastErr[name]; ok {
			res.Failures = append(res.Failures, store.FileError{Filename: name, Reason: reason})
			continue
		}
		if g.HasUploaded(name) {
			if meta, ok := resumedMeta[name]; ok {
				res.Images = append(res.Images, meta)
			} else {
				res.Images = append(res.Images, store.ImageMeta{Filename: name})
			}
		}
	}
	res.WidthAgg, res.HeightAgg = meanDimensions(res.Images)

	r.emit(GalleryFinished{GalleryID: g.ID, Result: res})
	r.logger.Info("gallery transfer finished",
		logging.Int("succeeded", res.Succeeded),
		logging.Int("failed", res.Failed),
		logging.Int("resumed", res.Resumed),
		logging.Int64("bytes", res.TransferredBytes),
		logging.Bool("stopped", res.Stopped),
		logging.Duration("elapsed", res.Elapsed))
	return res, nil
}

// runPass submits names through the rolling window, waits for every
// submitted upload to resolve, and returns the names that failed. While the
// remote gallery id is unknown, uploads go one at a time so the first
// success can adopt the id the remote echoes back.
func (r *run) runPass(ctx context.Context, pass int, names []string, success map[string]*store.ImageMeta, lastErr map[string]string) (failed []string, stopped bool) {
	i := 0
	for r.remoteID == "" && i < len(names) {
		if r.stopRequested(ctx) {
			return failed, true
		}
		name := names[i]
		i++
		slot, err := r.e.slots.Acquire(ctx)
		if err != nil {
			return failed, true
		}
		out, ref := r.uploadOne(ctx, slot, name)
		r.e.slots.Release(slot)
		r.record(out, pass, success, lastErr, &failed)
		if out.OK() {
			r.adoptGallery(ref)
		}
	}

	rest := names[i:]
	outCh := make(chan ImageOutcome, len(rest))
	submitted := 0
	for _, name := range rest {
		if r.stopRequested(ctx) {
			stopped = true
			break
		}
		slot, err := r.e.slots.Acquire(ctx)
		if err != nil {
			stopped = true
			break
		}
		submitted++
		go func(name string, slot Slot) {
			out, _ := r.uploadOne(ctx, slot, name)
			r.e.slots.Release(slot)
			outCh <- out
		}(name, slot)
	}
	for k := 0; k < submitted; k++ {
		r.record(<-outCh, pass, success, lastErr, &failed)
	}
	return failed, stopped
}

func (r *run) uploadOne(ctx context.Context, slot Slot, name string) (ImageOutcome, uploader.GalleryRef) {
	var prev int64
	res, err := slot.Upload(ctx, uploader.UploadRequest{
		Path:      filepath.Join(r.g.Path, name),
		GalleryID: r.remoteID,
		Progress: func(total int64) {
			r.bytes.Add(total - prev)
			prev = total
			r.emit(ImageProgress{GalleryID: r.g.ID, Filename: name, Bytes: total})
		},
	})
	if err != nil {
		kind := uploader.Classify(err)
		if kind == uploader.KindConnect {
			r.hadConnect.Store(true)
		}
		r.logger.Warn("image upload failed",
			logging.String(logging.FieldFilename, name),
			logging.String("kind", kind.String()),
			logging.Error(err))
		return ImageOutcome{Filename: name, Err: err.Error()}, uploader.GalleryRef{}
	}
	meta := &store.ImageMeta{
		Filename: name,
		RemoteID: res.ImageID,
		URL:      res.URL,
		ThumbURL: res.ThumbURL,
		Size:     res.Size,
		Width:    res.Width,
		Height:   res.Height,
	}
	return ImageOutcome{Filename: name, Meta: meta}, uploader.GalleryRef{ID: res.GalleryID, URL: res.GalleryURL}
}

func (r *run) record(out ImageOutcome, pass int, success map[string]*store.ImageMeta, lastErr map[string]string, failed *[]string) {
	if out.OK() {
		success[out.Filename] = out.Meta
		delete(lastErr, out.Filename)
	} else {
		lastErr[out.Filename] = out.Err
		*failed = append(*failed, out.Filename)
	}
	r.emit(ImageCompleted{GalleryID: r.g.ID, Pass: pass, Outcome: out})
}

func (r *run) createNamedGallery(ctx context.Context, name string) {
	slot, err := r.e.slots.Acquire(ctx)
	if err != nil {
		return
	}
	ref, err := slot.CreateGallery(ctx, name)
	r.e.slots.Release(slot)
	switch {
	case err == nil:
		r.remoteID, r.remoteURL = ref.ID, ref.URL
		r.logger.Info("remote gallery created",
			logging.String("remote_id", ref.ID))
	case errors.Is(err, uploader.ErrThrottled):
		r.logger.Warn("named gallery creation throttled, falling back to anonymous")
	default:
		r.logger.Warn("named gallery creation failed, falling back to anonymous",
			logging.Error(err))
	}
}

// adoptGallery takes the id echoed back by the first successful anonymous
// upload and registers a pending rename so naming is corrected off the
// upload path.
func (r *run) adoptGallery(ref uploader.GalleryRef) {
	if ref.ID == "" || r.remoteID != "" {
		return
	}
	r.remoteID, r.remoteURL = ref.ID, ref.URL
	r.logger.Info("anonymous gallery adopted",
		logging.String("remote_id", ref.ID))
	if r.req.RegisterRename != nil {
		if err := r.req.RegisterRename(ref.ID, r.g.Name); err != nil {
			r.logger.Warn("pending rename registration failed", logging.Error(err))
		}
	}
}

func (r *run) emit(ev Event) {
	if r.req.Events != nil {
		r.req.Events <- ev
	}
}

func (r *run) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return r.req.Stop != nil && r.req.Stop.Stopped()
}

// backoff grows with the pass count, stretched when the previous pass saw
// connect-level failures.
func (r *run) backoff(pass int) time.Duration {
	d := r.e.backoffBase * time.Duration(pass)
	if r.hadConnect.Load() {
		d *= 4
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func enumerateImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !scanner.IsImageFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
