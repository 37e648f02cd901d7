package scanner

import (
	"sync"
	"testing"
	"time"

	"github.com/twwat/imxup-sub002/internal/logging"
	"github.com/twwat/imxup-sub002/internal/testsupport"
)

type recordingHandler struct {
	mu        sync.Mutex
	started   []string
	succeeded map[string]*Result
	failed    map[string]error
	notify    chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		succeeded: make(map[string]*Result),
		failed:    make(map[string]error),
		notify:    make(chan string, 16),
	}
}

func (h *recordingHandler) ScanStarted(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, path)
}

func (h *recordingHandler) ScanSucceeded(path string, res *Result) {
	h.mu.Lock()
	h.succeeded[path] = res
	h.mu.Unlock()
	h.notify <- path
}

func (h *recordingHandler) ScanFailed(path string, reason error) {
	h.mu.Lock()
	h.failed[path] = reason
	h.mu.Unlock()
	h.notify <- path
}

func (h *recordingHandler) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.notify:
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for scan %d of %d", i+1, n)
		}
	}
}

func TestWorkerProcessesSequentially(t *testing.T) {
	good := t.TempDir()
	testsupport.WriteImageFolder(t, good, 4, 640, 480)
	empty := t.TempDir()

	h := newRecordingHandler()
	w := NewWorker(scanConfig(), h, logging.NewNop())
	w.Start()
	defer w.Stop()

	w.Enqueue(good)
	w.Enqueue(empty)
	h.wait(t, 2)

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.started) != 2 || h.started[0] != good || h.started[1] != empty {
		t.Errorf("started order = %v", h.started)
	}
	res, ok := h.succeeded[good]
	if !ok {
		t.Fatalf("good folder did not succeed: failures=%v", h.failed)
	}
	if res.TotalImages != 4 || res.WidthAgg != 640 {
		t.Errorf("result = %+v", res)
	}
	if _, ok := h.failed[empty]; !ok {
		t.Errorf("empty folder did not fail")
	}
}

func TestWorkerStopDropsQueued(t *testing.T) {
	h := newRecordingHandler()
	w := NewWorker(scanConfig(), h, logging.NewNop())
	w.Start()
	w.Stop()

	w.Enqueue(t.TempDir())
	time.Sleep(50 * time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.started) != 0 {
		t.Errorf("scans ran after stop: %v", h.started)
	}
}
