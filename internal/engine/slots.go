package engine

import (
	"context"

	"github.com/twwat/imxup-sub002/internal/uploader"
)

// Slot is one checked-out transfer handle.
type Slot interface {
	CreateGallery(ctx context.Context, name string) (uploader.GalleryRef, error)
	Upload(ctx context.Context, req uploader.UploadRequest) (*uploader.UploadResult, error)
}

// SlotPool bounds the rolling window: Acquire blocks while all slots are
// busy, so the number of in-flight uploads never exceeds Size.
type SlotPool interface {
	Acquire(ctx context.Context) (Slot, error)
	Release(Slot)
	ResetSessions() error
	Size() int
}

type handlePool struct {
	p *uploader.Pool
}

// NewSlotPool adapts the uploader's concrete handle pool.
func NewSlotPool(p *uploader.Pool) SlotPool {
	return handlePool{p: p}
}

func (hp handlePool) Acquire(ctx context.Context) (Slot, error) {
	return hp.p.Acquire(ctx)
}

func (hp handlePool) Release(s Slot) {
	hp.p.Release(s.(*uploader.Handle))
}

func (hp handlePool) ResetSessions() error { return hp.p.ResetSessions() }
func (hp handlePool) Size() int            { return hp.p.Size() }
