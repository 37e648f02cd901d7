package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/twwat/imxup-sub002/internal/store"
	"github.com/twwat/imxup-sub002/internal/testsupport"
)

func newGallery(id int64, path string) *store.Gallery {
	return &store.Gallery{
		ID:     id,
		Path:   path,
		Name:   "Test Gallery",
		Status: store.StatusReady,
	}
}

func TestUpsertRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	finished := time.Now().UTC().Truncate(time.Second)
	gallery := &store.Gallery{
		ID:             s.NextID(),
		Path:           "/pics/trip",
		Name:           "Trip",
		Status:         store.StatusCompleted,
		FinishedAt:     &finished,
		TotalBytes:     1024,
		UploadedBytes:  1024,
		TotalImages:    3,
		UploadedImages: 3,
		WidthAgg:       1920,
		HeightAgg:      1080,
		Order:          1,
		Template:       "default",
		CustomFields:   map[string]string{"note": "vacation"},
		RemoteID:       "abc123",
		RemoteURL:      "https://imx.example/g/abc123",
		Uploaded:       map[string]struct{}{"a.jpg": {}, "b.jpg": {}, "c.jpg": {}},
		Results: []store.ImageMeta{
			{Filename: "a.jpg", URL: "https://imx.example/i/1"},
			{Filename: "b.jpg", URL: "https://imx.example/i/2"},
			{Filename: "c.jpg", URL: "https://imx.example/i/3"},
		},
		Failures: []store.FileError{{Filename: "d.jpg", Reason: "timeout"}},
	}
	if err := s.Upsert(ctx, gallery); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	loaded, err := s.GetByPath(ctx, "/pics/trip")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected gallery")
	}
	if loaded.ID != gallery.ID {
		t.Fatalf("id mismatch: got %d want %d", loaded.ID, gallery.ID)
	}
	if loaded.Name != "Trip" || loaded.Status != store.StatusCompleted {
		t.Fatalf("unexpected fields: %#v", loaded)
	}
	if loaded.FinishedAt == nil || !loaded.FinishedAt.Equal(finished) {
		t.Fatalf("finished timestamp mismatch: %v", loaded.FinishedAt)
	}
	if len(loaded.Uploaded) != 3 || !loaded.HasUploaded("b.jpg") {
		t.Fatalf("uploaded set mismatch: %#v", loaded.Uploaded)
	}
	if len(loaded.Results) != 3 || loaded.Results[1].Filename != "b.jpg" {
		t.Fatalf("results mismatch: %#v", loaded.Results)
	}
	if len(loaded.Failures) != 1 || loaded.Failures[0].Reason != "timeout" {
		t.Fatalf("failures mismatch: %#v", loaded.Failures)
	}
	if loaded.CustomFields["note"] != "vacation" {
		t.Fatalf("custom fields mismatch: %#v", loaded.CustomFields)
	}
}

func TestUpsertUpdatesSingleField(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	gallery := newGallery(s.NextID(), "/pics/one")
	if err := s.Upsert(ctx, gallery); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	gallery.Name = "Renamed"
	if err := s.Upsert(ctx, gallery); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	loaded, err := s.GetByPath(ctx, "/pics/one")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if loaded.Name != "Renamed" {
		t.Fatalf("expected renamed gallery, got %q", loaded.Name)
	}
	if loaded.Status != store.StatusReady {
		t.Fatalf("status should be unchanged, got %q", loaded.Status)
	}
}

func TestUpsertRejectsIDCollision(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id := s.NextID()
	if err := s.Upsert(ctx, newGallery(id, "/pics/a")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	err := s.Upsert(ctx, newGallery(id, "/pics/b"))
	if !errors.Is(err, store.ErrIDConflict) {
		t.Fatalf("expected ErrIDConflict, got %v", err)
	}

	// The colliding row must not have replaced the original.
	loaded, err := s.GetByPath(ctx, "/pics/a")
	if err != nil || loaded == nil {
		t.Fatalf("original gallery missing after collision: %v", err)
	}
	if other, _ := s.GetByPath(ctx, "/pics/b"); other != nil {
		t.Fatal("colliding gallery should not exist")
	}
}

func TestBatchUpsertSkipsMalformedRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	good1 := newGallery(0, "/pics/good1")
	good2 := newGallery(0, "/pics/good2")
	err := s.UpsertGalleries(ctx, []*store.Gallery{good1, nil, {Path: ""}, good2})
	if err != nil {
		t.Fatalf("UpsertGalleries returned error: %v", err)
	}

	all, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 galleries, got %d", len(all))
	}
}

func TestBatchUpsertCommitsRestOnIDConflict(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id := s.NextID()
	if err := s.Upsert(ctx, newGallery(id, "/pics/existing")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	conflicting := newGallery(id, "/pics/conflict")
	ok := newGallery(s.NextID(), "/pics/ok")
	err := s.UpsertGalleries(ctx, []*store.Gallery{conflicting, ok})
	if !errors.Is(err, store.ErrIDConflict) {
		t.Fatalf("expected ErrIDConflict in joined error, got %v", err)
	}

	loaded, err := s.GetByPath(ctx, "/pics/ok")
	if err != nil || loaded == nil {
		t.Fatalf("unrelated gallery should have committed: %v", err)
	}
}

func TestReorderAssignsDenseSequence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	paths := []string{"/pics/1", "/pics/2", "/pics/3"}
	for i, path := range paths {
		g := newGallery(0, path)
		g.Order = i + 1
		if err := s.Upsert(ctx, g); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	if err := s.Reorder(ctx, []string{"/pics/3", "/pics/1", "/pics/2"}); err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}

	all, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	wantOrder := []string{"/pics/3", "/pics/1", "/pics/2"}
	for i, g := range all {
		if g.Path != wantOrder[i] {
			t.Fatalf("position %d: got %q want %q", i, g.Path, wantOrder[i])
		}
		if g.Order != i+1 {
			t.Fatalf("position %d: order %d not dense", i, g.Order)
		}
	}
}

func TestDeleteByStatusAndPaths(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		g := newGallery(0, fmt.Sprintf("/pics/%d", i))
		if i%2 == 0 {
			g.Status = store.StatusCompleted
		}
		if err := s.Upsert(ctx, g); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	n, err := s.DeleteByStatus(ctx, store.StatusCompleted)
	if err != nil {
		t.Fatalf("DeleteByStatus failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}

	n, err = s.DeleteByPaths(ctx, "/pics/1")
	if err != nil {
		t.Fatalf("DeleteByPaths failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
}

func TestResetTransientDowngradesToReadyKeepingUploadedSet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	g := newGallery(0, "/pics/resume")
	g.Status = store.StatusUploading
	g.Uploaded = map[string]struct{}{"done.jpg": {}}
	if err := s.Upsert(ctx, g); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	queued := newGallery(0, "/pics/queued")
	queued.Status = store.StatusQueued
	if err := s.Upsert(ctx, queued); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	n, err := s.ResetTransient(ctx)
	if err != nil {
		t.Fatalf("ResetTransient failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows reset, got %d", n)
	}

	loaded, err := s.GetByPath(ctx, "/pics/resume")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if loaded.Status != store.StatusReady {
		t.Fatalf("expected ready, got %q", loaded.Status)
	}
	if !loaded.HasUploaded("done.jpg") {
		t.Fatal("resumable set must survive the downgrade")
	}
}

func TestSetCustomFieldPatchesOneKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	g := newGallery(0, "/pics/fields")
	g.CustomFields = map[string]string{"a": "1", "b": "2"}
	if err := s.Upsert(ctx, g); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := s.SetCustomField(ctx, "/pics/fields", "b", "changed"); err != nil {
		t.Fatalf("SetCustomField failed: %v", err)
	}
	loaded, err := s.GetByPath(ctx, "/pics/fields")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if loaded.CustomFields["a"] != "1" || loaded.CustomFields["b"] != "changed" {
		t.Fatalf("unexpected custom fields: %#v", loaded.CustomFields)
	}

	if err := s.SetCustomField(ctx, "/pics/fields", "a", ""); err != nil {
		t.Fatalf("SetCustomField delete failed: %v", err)
	}
	loaded, _ = s.GetByPath(ctx, "/pics/fields")
	if _, exists := loaded.CustomFields["a"]; exists {
		t.Fatal("empty value should delete the key")
	}
}

func TestNextIDAdvancesPastExistingRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := s.NextID()
	if err := s.Upsert(ctx, newGallery(first, "/pics/x")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	second := s.NextID()
	if second <= first {
		t.Fatalf("ids must be strictly ascending: %d then %d", first, second)
	}
}

func TestReplaceImagesRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	g := newGallery(s.NextID(), "/pics/images")
	if err := s.Upsert(ctx, g); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	records := []store.ImageRecord{
		{GalleryID: g.ID, Filename: "a.jpg", Size: 100, Width: 800, Height: 600, UploadedAt: &now, URL: "https://imx.example/i/a"},
		{GalleryID: g.ID, Filename: "b.jpg", Size: 200, Width: 800, Height: 600},
	}
	if err := s.ReplaceImages(ctx, g.ID, records); err != nil {
		t.Fatalf("ReplaceImages failed: %v", err)
	}

	loaded, err := s.Images(ctx, g.ID)
	if err != nil {
		t.Fatalf("Images failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 images, got %d", len(loaded))
	}
	if loaded[0].Filename != "a.jpg" || loaded[0].UploadedAt == nil {
		t.Fatalf("unexpected first record: %#v", loaded[0])
	}
}
