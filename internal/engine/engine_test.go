package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/twwat/imxup-sub002/internal/logging"
	"github.com/twwat/imxup-sub002/internal/store"
	"github.com/twwat/imxup-sub002/internal/testsupport"
	"github.com/twwat/imxup-sub002/internal/uploader"
)

// fakePool scripts upload outcomes per filename and tracks the in-flight
// window so tests can assert the concurrency bound.
type fakePool struct {
	slots chan *fakeSlot
	size  int

	mu          sync.Mutex
	attempts    map[string]int
	failFirst   map[string]int // fail this many attempts before succeeding; -1 fails forever
	createErr   error
	created     []string
	galleryID   string
	inFlight    int
	maxInFlight int
	resets      int
	delay       time.Duration
	acquires    int
	onAcquire   func(n int) // called with the acquire count, before the caller's next boundary check
	totalStarts int
}

type fakeSlot struct {
	pool *fakePool
}

func newFakePool(size int) *fakePool {
	p := &fakePool{
		slots:     make(chan *fakeSlot, size),
		size:      size,
		attempts:  make(map[string]int),
		failFirst: make(map[string]int),
		galleryID: "g-remote",
	}
	for i := 0; i < size; i++ {
		p.slots <- &fakeSlot{pool: p}
	}
	return p
}

func (p *fakePool) Acquire(ctx context.Context) (Slot, error) {
	select {
	case s := <-p.slots:
		p.mu.Lock()
		p.acquires++
		n := p.acquires
		hook := p.onAcquire
		p.mu.Unlock()
		if hook != nil {
			hook(n)
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *fakePool) Release(s Slot) { p.slots <- s.(*fakeSlot) }

func (p *fakePool) ResetSessions() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	return nil
}
func (p *fakePool) Size() int { return p.size }

func (s *fakeSlot) CreateGallery(_ context.Context, name string) (uploader.GalleryRef, error) {
	p := s.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return uploader.GalleryRef{}, p.createErr
	}
	p.created = append(p.created, name)
	return uploader.GalleryRef{ID: p.galleryID, URL: "https://x/g/" + p.galleryID}, nil
}

func (s *fakeSlot) Upload(_ context.Context, req uploader.UploadRequest) (*uploader.UploadResult, error) {
	p := s.pool
	name := filepathBase(req.Path)

	p.mu.Lock()
	p.attempts[name]++
	attempt := p.attempts[name]
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	p.totalStarts++
	remaining := p.failFirst[name]
	delay := p.delay
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(delay))))
	}

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()

	if remaining == -1 || attempt <= remaining {
		return nil, fmt.Errorf("simulated failure for %s attempt %d", name, attempt)
	}
	if req.Progress != nil {
		req.Progress(1024)
	}
	return &uploader.UploadResult{
		ImageID:    "i-" + name,
		URL:        "https://x/i/" + name,
		ThumbURL:   "https://x/t/" + name,
		Width:      800,
		Height:     600,
		Size:       1024,
		GalleryID:  p.galleryID,
		GalleryURL: "https://x/g/" + p.galleryID,
	}, nil
}

func filepathBase(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func newTestEngine(p *fakePool, maxRetries int) *Engine {
	e := New(p, maxRetries, logging.NewNop())
	e.backoffBase = time.Millisecond
	return e
}

func testGallery(t *testing.T, count int) *store.Gallery {
	t.Helper()
	dir := t.TempDir()
	testsupport.WriteImageFolder(t, dir, count, 800, 600)
	return &store.Gallery{ID: 7, Path: dir, Name: "Test Gallery"}
}

func TestRunAllSucceed(t *testing.T) {
	p := newFakePool(4)
	p.delay = 5 * time.Millisecond
	e := newTestEngine(p, 3)
	g := testGallery(t, 10)

	res, err := e.Run(context.Background(), Request{Gallery: g})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Complete() {
		t.Fatalf("result not complete: %+v", res)
	}
	if res.Succeeded != 10 || res.Failed != 0 {
		t.Fatalf("succeeded=%d failed=%d", res.Succeeded, res.Failed)
	}
	if res.Succeeded+res.Failed != res.TotalImages {
		t.Errorf("succeeded+failed != total")
	}
	if res.RemoteID != "g-remote" {
		t.Errorf("remote id = %q", res.RemoteID)
	}
	if len(p.created) != 1 || p.created[0] != "Test Gallery" {
		t.Errorf("named creations = %v", p.created)
	}
	if p.maxInFlight > 4 {
		t.Errorf("window exceeded: max in-flight = %d", p.maxInFlight)
	}
	if p.resets != 1 {
		t.Errorf("session resets = %d, want 1", p.resets)
	}
	if res.WidthAgg != 800 || res.HeightAgg != 600 {
		t.Errorf("aggregates = %dx%d", res.WidthAgg, res.HeightAgg)
	}
	if res.DominantExt != "png" {
		t.Errorf("dominant ext = %q", res.DominantExt)
	}
	for i, m := range res.Images {
		want := fmt.Sprintf("img_%03d.png", i+1)
		if m.Filename != want {
			t.Errorf("images[%d] = %s, want %s", i, m.Filename, want)
		}
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	p := newFakePool(4)
	p.failFirst["img_003.png"] = 2 // fails pass 1 and 2, succeeds pass 3
	e := newTestEngine(p, 3)
	g := testGallery(t, 10)

	res, err := e.Run(context.Background(), Request{Gallery: g})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Succeeded != 10 || res.Failed != 0 {
		t.Fatalf("succeeded=%d failed=%d, want 10/0", res.Succeeded, res.Failed)
	}
	if p.attempts["img_003.png"] != 3 {
		t.Errorf("attempts for img_003 = %d, want 3", p.attempts["img_003.png"])
	}
	if p.attempts["img_001.png"] != 1 {
		t.Errorf("attempts for img_001 = %d, want 1", p.attempts["img_001.png"])
	}
}

func TestRetriesExhausted(t *testing.T) {
	p := newFakePool(2)
	p.failFirst["img_002.png"] = -1
	e := newTestEngine(p, 2)
	g := testGallery(t, 5)

	res, err := e.Run(context.Background(), Request{Gallery: g})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Succeeded != 4 || res.Failed != 1 {
		t.Fatalf("succeeded=%d failed=%d, want 4/1", res.Succeeded, res.Failed)
	}
	if p.attempts["img_002.png"] != 2 {
		t.Errorf("attempts = %d, want 2", p.attempts["img_002.png"])
	}
	if len(res.Failures) != 1 || res.Failures[0].Filename != "img_002.png" {
		t.Errorf("failures = %+v", res.Failures)
	}
	if res.Complete() {
		t.Error("result reported complete despite a failure")
	}
	if len(res.Images) != 4 {
		t.Errorf("images = %d, want 4", len(res.Images))
	}
}

func TestAnonymousFallback(t *testing.T) {
	p := newFakePool(3)
	p.createErr = fmt.Errorf("create: %w", uploader.ErrThrottled)
	e := newTestEngine(p, 3)
	g := testGallery(t, 6)

	var renamedID, renamedName string
	renames := 0
	res, err := e.Run(context.Background(), Request{
		Gallery: g,
		RegisterRename: func(remoteID, name string) error {
			renames++
			renamedID, renamedName = remoteID, name
			return nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Complete() {
		t.Fatalf("result not complete: %+v", res)
	}
	if len(p.created) != 0 {
		t.Errorf("named creations after throttle = %v", p.created)
	}
	if res.RemoteID != "g-remote" {
		t.Errorf("remote id = %q", res.RemoteID)
	}
	if renames != 1 || renamedID != "g-remote" || renamedName != "Test Gallery" {
		t.Errorf("rename registration: count=%d id=%q name=%q", renames, renamedID, renamedName)
	}
}

func TestResumeSkipsUploadedSet(t *testing.T) {
	p := newFakePool(2)
	e := newTestEngine(p, 3)
	g := testGallery(t, 8)
	g.RemoteID = "g-remote"
	for i := 1; i <= 3; i++ {
		name := fmt.Sprintf("img_%03d.png", i)
		g.MarkUploaded(name)
		g.Results = append(g.Results, store.ImageMeta{Filename: name, RemoteID: "old-" + name, Width: 640, Height: 480})
	}

	res, err := e.Run(context.Background(), Request{Gallery: g})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Resumed != 3 || res.Succeeded != 5 {
		t.Fatalf("resumed=%d succeeded=%d, want 3/5", res.Resumed, res.Succeeded)
	}
	if res.UploadedCount() != 8 || !res.Complete() {
		t.Fatalf("uploaded=%d complete=%v", res.UploadedCount(), res.Complete())
	}
	for i := 1; i <= 3; i++ {
		name := fmt.Sprintf("img_%03d.png", i)
		if p.attempts[name] != 0 {
			t.Errorf("%s re-uploaded on resume", name)
		}
	}
	seen := make(map[string]bool)
	if len(res.Images) != 8 {
		t.Fatalf("images = %d, want 8", len(res.Images))
	}
	for i, m := range res.Images {
		if seen[m.Filename] {
			t.Errorf("duplicate filename %s", m.Filename)
		}
		seen[m.Filename] = true
		want := fmt.Sprintf("img_%03d.png", i+1)
		if m.Filename != want {
			t.Errorf("images[%d] = %s, want %s", i, m.Filename, want)
		}
	}
	// Resumed metadata is merged, not re-fetched.
	if res.Images[0].RemoteID != "old-img_001.png" {
		t.Errorf("resumed meta = %+v", res.Images[0])
	}
}

func TestSoftStopAtSubmissionBoundary(t *testing.T) {
	p := newFakePool(1)
	e := newTestEngine(p, 3)
	g := testGallery(t, 10)
	g.RemoteID = "g-remote" // no create call, so acquires map 1:1 to uploads

	var stop StopFlag
	p.onAcquire = func(n int) {
		if n == 3 {
			stop.Trigger()
		}
	}

	res, err := e.Run(context.Background(), Request{Gallery: g, Stop: &stop})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Stopped {
		t.Fatal("result not marked stopped")
	}
	if res.Succeeded != 3 || res.Failed != 0 {
		t.Fatalf("succeeded=%d failed=%d, want 3/0", res.Succeeded, res.Failed)
	}
	if p.totalStarts != 3 {
		t.Errorf("submissions after stop: total starts = %d", p.totalStarts)
	}
	if res.Complete() {
		t.Error("stopped run reported complete")
	}
}

func TestEventStream(t *testing.T) {
	p := newFakePool(2)
	e := newTestEngine(p, 3)
	g := testGallery(t, 4)

	events := make(chan Event, 256)
	var got []Event
	done := make(chan struct{})
	go func() {
		for ev := range events {
			got = append(got, ev)
		}
		close(done)
	}()

	res, err := e.Run(context.Background(), Request{Gallery: g, Events: events})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	<-done

	if len(got) < 2 {
		t.Fatalf("got %d events", len(got))
	}
	started, ok := got[0].(GalleryStarted)
	if !ok {
		t.Fatalf("first event = %T", got[0])
	}
	if started.TotalImages != 4 || started.Pending != 4 || started.SessionID == "" {
		t.Errorf("started = %+v", started)
	}
	finished, ok := got[len(got)-1].(GalleryFinished)
	if !ok {
		t.Fatalf("last event = %T", got[len(got)-1])
	}
	if finished.Result != res {
		t.Error("finished result differs from returned result")
	}
	completed := 0
	for _, ev := range got {
		if ic, ok := ev.(ImageCompleted); ok {
			completed++
			if !ic.Outcome.OK() {
				t.Errorf("unexpected failure outcome: %+v", ic.Outcome)
			}
		}
	}
	if completed != 4 {
		t.Errorf("image completed events = %d, want 4", completed)
	}
}

func TestDeterministicOrderUnderConcurrency(t *testing.T) {
	p := newFakePool(4)
	p.delay = 10 * time.Millisecond
	e := newTestEngine(p, 1)
	g := testGallery(t, 12)

	res, err := e.Run(context.Background(), Request{Gallery: g})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, m := range res.Images {
		want := fmt.Sprintf("img_%03d.png", i+1)
		if m.Filename != want {
			t.Fatalf("images[%d] = %s, want %s", i, m.Filename, want)
		}
	}
}
