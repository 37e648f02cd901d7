package uploader

import (
	"context"
	"errors"
)

// Pool holds a fixed set of reusable transfer handles, one per worker slot.
// Acquire blocks until a slot frees up; the engine's rolling window never
// exceeds the pool size, so waiting here is brief.
type Pool struct {
	handles []*Handle
	slots   chan *Handle
}

// NewPool creates size handles up front. The pool never grows or shrinks.
func NewPool(opts Options, size int) (*Pool, error) {
	if size < 1 {
		return nil, errors.New("pool size must be at least 1")
	}
	p := &Pool{
		handles: make([]*Handle, 0, size),
		slots:   make(chan *Handle, size),
	}
	for i := 0; i < size; i++ {
		h, err := NewHandle(opts)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.handles = append(p.handles, h)
		p.slots <- h
	}
	return p, nil
}

// Size reports the number of slots.
func (p *Pool) Size() int {
	return len(p.handles)
}

// Acquire takes a free handle, blocking until one is available or the
// context ends.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	select {
	case h := <-p.slots:
		return h, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a handle to the pool. The handle must have come from
// Acquire on the same pool.
func (p *Pool) Release(h *Handle) {
	p.slots <- h
}

// ResetSessions clears session state on every handle. The caller must hold
// all handles idle (no uploads in flight); the engine calls this between
// galleries, when the window has fully drained.
func (p *Pool) ResetSessions() error {
	var errs []error
	for _, h := range p.handles {
		if err := h.ResetSession(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases connections held by all handles.
func (p *Pool) Close() {
	for _, h := range p.handles {
		h.Close()
	}
}
