package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/twwat/imxup-sub002/internal/store"
	"github.com/twwat/imxup-sub002/internal/testsupport"
)

func TestDefaultTabSeeded(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)

	tabs, err := s.Tabs(context.Background())
	if err != nil {
		t.Fatalf("Tabs failed: %v", err)
	}
	if len(tabs) != 1 {
		t.Fatalf("expected 1 seeded tab, got %d", len(tabs))
	}
	if !tabs[0].System || tabs[0].Name != "Default" {
		t.Fatalf("unexpected seeded tab: %#v", tabs[0])
	}
}

func TestTabCRUD(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	tab, err := s.CreateTab(ctx, "Vacation", "#ff8800")
	if err != nil {
		t.Fatalf("CreateTab failed: %v", err)
	}
	if tab.System {
		t.Fatal("user tab must not be a system tab")
	}
	if tab.Color != "#ff8800" {
		t.Fatalf("unexpected color: %q", tab.Color)
	}

	if err := s.RenameTab(ctx, tab.ID, "Holidays"); err != nil {
		t.Fatalf("RenameTab failed: %v", err)
	}
	renamed, err := s.GetTab(ctx, tab.ID)
	if err != nil {
		t.Fatalf("GetTab failed: %v", err)
	}
	if renamed.Name != "Holidays" {
		t.Fatalf("expected renamed tab, got %q", renamed.Name)
	}
}

func TestDeleteTabReassignsMembers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	victim, err := s.CreateTab(ctx, "Victim", "")
	if err != nil {
		t.Fatalf("CreateTab failed: %v", err)
	}
	target, err := s.CreateTab(ctx, "Target", "")
	if err != nil {
		t.Fatalf("CreateTab failed: %v", err)
	}

	for _, path := range []string{"/pics/a", "/pics/b", "/pics/c"} {
		g := newGallery(0, path)
		g.TabID = victim.ID
		if err := s.Upsert(ctx, g); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	if err := s.DeleteTab(ctx, victim.ID, target.ID); err != nil {
		t.Fatalf("DeleteTab failed: %v", err)
	}

	if _, err := s.GetTab(ctx, victim.ID); !errors.Is(err, store.ErrTabNotFound) {
		t.Fatalf("expected tab gone, got %v", err)
	}

	all, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	for _, g := range all {
		if g.TabID != target.ID {
			t.Fatalf("gallery %q not reassigned: tab %d", g.Path, g.TabID)
		}
	}
}

func TestSystemTabImmutable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	other, err := s.CreateTab(ctx, "Other", "")
	if err != nil {
		t.Fatalf("CreateTab failed: %v", err)
	}

	if err := s.DeleteTab(ctx, 1, other.ID); !errors.Is(err, store.ErrSystemTab) {
		t.Fatalf("expected ErrSystemTab on delete, got %v", err)
	}
	if err := s.RenameTab(ctx, 1, "Nope"); !errors.Is(err, store.ErrSystemTab) {
		t.Fatalf("expected ErrSystemTab on rename, got %v", err)
	}
}

func TestDeleteTabRejectsSelfReassignment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	tab, err := s.CreateTab(ctx, "Loop", "")
	if err != nil {
		t.Fatalf("CreateTab failed: %v", err)
	}
	if err := s.DeleteTab(ctx, tab.ID, tab.ID); err == nil {
		t.Fatal("expected error for self reassignment")
	}
}
