package engine

import "github.com/twwat/imxup-sub002/internal/store"

// Event is the engine's notification stream. Exactly one GalleryStarted and
// one GalleryFinished bracket any number of ImageProgress and ImageCompleted
// events. The consumer owns presentation; the engine never blocks on a UI.
type Event interface {
	isEvent()
}

// GalleryStarted opens a transfer run.
type GalleryStarted struct {
	GalleryID   int64
	Path        string
	SessionID   string
	TotalImages int
	Pending     int
}

// ImageProgress reports cumulative bytes sent for one in-flight file.
type ImageProgress struct {
	GalleryID int64
	Filename  string
	Bytes     int64
}

// ImageCompleted reports one file's final outcome for the current pass.
// A file that fails and is retried produces one ImageCompleted per pass.
type ImageCompleted struct {
	GalleryID int64
	Pass      int
	Outcome   ImageOutcome
}

// GalleryFinished closes the run; Result is the same value Run returns.
type GalleryFinished struct {
	GalleryID int64
	Result    *Result
}

func (GalleryStarted) isEvent()  {}
func (ImageProgress) isEvent()   {}
func (ImageCompleted) isEvent()  {}
func (GalleryFinished) isEvent() {}

// ImageOutcome is the tagged per-image result crossing the engine boundary:
// success carries metadata, failure carries the error text.
type ImageOutcome struct {
	Filename string
	Meta     *store.ImageMeta
	Err      string
}

// OK reports whether the outcome is a success.
func (o ImageOutcome) OK() bool {
	return o.Meta != nil
}
