package scanner

import (
	"log/slog"
	"sync"

	"github.com/twwat/imxup-sub002/internal/config"
	"github.com/twwat/imxup-sub002/internal/logging"
)

// Handler receives scan outcomes. The queue manager implements it: it moves
// the item to scanning on start, and to ready or scan_failed on completion.
type Handler interface {
	ScanStarted(path string)
	ScanSucceeded(path string, res *Result)
	ScanFailed(path string, reason error)
}

// Worker runs folder scans one at a time off an internal work queue.
// Enqueue never blocks; the queue is unbounded because scan requests are
// human-paced and small.
type Worker struct {
	cfg     config.Scan
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []string
	stopped bool

	done chan struct{}
}

func NewWorker(cfg config.Scan, handler Handler, logger *slog.Logger) *Worker {
	w := &Worker{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(logging.String(logging.FieldComponent, "scanner")),
		done:    make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Start launches the sequential scan loop.
func (w *Worker) Start() {
	go w.run()
}

// Enqueue schedules a folder for scanning and returns immediately.
func (w *Worker) Enqueue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.pending = append(w.pending, path)
	w.cond.Signal()
}

// Stop drains nothing: the in-flight scan finishes, queued paths are dropped.
// Blocks until the loop exits.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.stopped = true
	w.pending = nil
	w.cond.Signal()
	w.mu.Unlock()
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.pending) == 0 && !w.stopped {
			w.cond.Wait()
		}
		if w.stopped {
			w.mu.Unlock()
			return
		}
		path := w.pending[0]
		w.pending = w.pending[1:]
		w.mu.Unlock()

		w.scanOne(path)
	}
}

func (w *Worker) scanOne(path string) {
	w.handler.ScanStarted(path)
	w.logger.Info("scan started", logging.String("path", path))

	res, err := Scan(path, w.cfg)
	if err != nil {
		w.logger.Warn("scan failed",
			logging.String("path", path),
			logging.Error(err))
		w.handler.ScanFailed(path, err)
		return
	}

	w.logger.Info("scan completed",
		logging.String("path", path),
		logging.Int("images", res.TotalImages),
		logging.Int64("bytes", res.TotalBytes),
		logging.Int("sampled", res.Sampled))
	w.handler.ScanSucceeded(path, res)
}
