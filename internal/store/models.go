package store

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a gallery in the queue.
type Status string

const (
	StatusValidating   Status = "validating"
	StatusScanning     Status = "scanning"
	StatusReady        Status = "ready"
	StatusScanFailed   Status = "scan_failed"
	StatusQueued       Status = "queued"
	StatusUploading    Status = "uploading"
	StatusPaused       Status = "paused"
	StatusCompleted    Status = "completed"
	StatusIncomplete   Status = "incomplete"
	StatusUploadFailed Status = "upload_failed"
)

var allStatuses = []Status{
	StatusValidating,
	StatusScanning,
	StatusReady,
	StatusScanFailed,
	StatusQueued,
	StatusUploading,
	StatusPaused,
	StatusCompleted,
	StatusIncomplete,
	StatusUploadFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// transientStatuses never survive a restart; they downgrade to ready on load.
var transientStatuses = map[Status]struct{}{
	StatusQueued:    {},
	StatusUploading: {},
}

// terminalStatuses mark a finished transfer attempt.
var terminalStatuses = map[Status]struct{}{
	StatusCompleted:    {},
	StatusIncomplete:   {},
	StatusUploadFailed: {},
	StatusScanFailed:   {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTransient reports whether a status must not survive a restart.
func IsTransient(status Status) bool {
	_, ok := transientStatuses[status]
	return ok
}

// IsTerminal reports whether a status marks a finished attempt.
func IsTerminal(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// ImageMeta is the remote metadata captured for one uploaded image.
type ImageMeta struct {
	Filename string `json:"filename"`
	RemoteID string `json:"remote_id,omitempty"`
	URL      string `json:"url"`
	ThumbURL string `json:"thumb_url,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// FileError pairs a filename with the reason it was rejected or failed.
type FileError struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// Gallery is one queue item: a local folder mapped to one remote gallery.
type Gallery struct {
	ID             int64
	Path           string
	Name           string
	Status         Status
	AddedAt        time.Time
	FinishedAt     *time.Time
	TotalBytes     int64
	UploadedBytes  int64
	TotalImages    int
	UploadedImages int
	WidthAgg       int
	HeightAgg      int
	Order          int
	TabID          int64
	Template       string
	CustomFields   map[string]string
	RemoteID       string
	RemoteURL      string
	// Uploaded is the resumable set of filenames already transferred.
	Uploaded map[string]struct{}
	// Results holds (filename, remote metadata) pairs already captured, in
	// on-disk enumeration order.
	Results  []ImageMeta
	Failures []FileError
}

// Clone returns a deep copy safe to hand to the background writer.
func (g *Gallery) Clone() *Gallery {
	if g == nil {
		return nil
	}
	cp := *g
	if g.FinishedAt != nil {
		finished := *g.FinishedAt
		cp.FinishedAt = &finished
	}
	if g.CustomFields != nil {
		cp.CustomFields = make(map[string]string, len(g.CustomFields))
		for k, v := range g.CustomFields {
			cp.CustomFields[k] = v
		}
	}
	if g.Uploaded != nil {
		cp.Uploaded = make(map[string]struct{}, len(g.Uploaded))
		for k := range g.Uploaded {
			cp.Uploaded[k] = struct{}{}
		}
	}
	cp.Results = append([]ImageMeta(nil), g.Results...)
	cp.Failures = append([]FileError(nil), g.Failures...)
	return &cp
}

// MarkUploaded records one transferred file in the resumable set.
func (g *Gallery) MarkUploaded(filename string) {
	if g.Uploaded == nil {
		g.Uploaded = make(map[string]struct{})
	}
	g.Uploaded[filename] = struct{}{}
}

// HasUploaded reports whether filename is already in the resumable set.
func (g *Gallery) HasUploaded(filename string) bool {
	_, ok := g.Uploaded[filename]
	return ok
}

// ImageRecord is one durable per-image row owned by a gallery.
type ImageRecord struct {
	GalleryID  int64
	Filename   string
	Size       int64
	Width      int
	Height     int
	UploadedAt *time.Time
	URL        string
	ThumbURL   string
}

// Tab is a grouping bucket partitioning galleries for display.
type Tab struct {
	ID       int64
	Name     string
	Position int
	Color    string
	System   bool
}

// PendingRename marks a remote gallery created anonymously that still needs
// its display name corrected by the rename collaborator.
type PendingRename struct {
	RemoteID  string
	Name      string
	CreatedAt time.Time
}

// SecondaryStatus is the independent lifecycle of a mirror upload.
type SecondaryStatus string

const (
	SecondaryPending   SecondaryStatus = "pending"
	SecondaryUploading SecondaryStatus = "uploading"
	SecondaryCompleted SecondaryStatus = "completed"
	SecondaryFailed    SecondaryStatus = "failed"
	SecondaryCancelled SecondaryStatus = "cancelled"
)

// SecondaryUpload tracks distribution of a completed gallery to one
// secondary destination.
type SecondaryUpload struct {
	ID            int64
	GalleryID     int64
	Destination   string
	Status        SecondaryStatus
	UploadedBytes int64
	TotalBytes    int64
	ResultURL     string
	Error         string
	UpdatedAt     time.Time
}
