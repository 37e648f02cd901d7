package ipc

import (
	"time"

	"github.com/twwat/imxup-sub002/internal/store"
)

// Item is the queue entry DTO carried over the wire.
type Item struct {
	ID             int64      `json:"id"`
	Path           string     `json:"path"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	Order          int        `json:"order"`
	TabID          int64      `json:"tab_id"`
	TotalImages    int        `json:"total_images"`
	UploadedImages int        `json:"uploaded_images"`
	TotalBytes     int64      `json:"total_bytes"`
	UploadedBytes  int64      `json:"uploaded_bytes"`
	RemoteURL      string     `json:"remote_url,omitempty"`
	AddedAt        time.Time  `json:"added_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Failures       []string   `json:"failures,omitempty"`
}

// FromGallery flattens a gallery into its wire form.
func FromGallery(g *store.Gallery) Item {
	item := Item{
		ID:             g.ID,
		Path:           g.Path,
		Name:           g.Name,
		Status:         string(g.Status),
		Order:          g.Order,
		TabID:          g.TabID,
		TotalImages:    g.TotalImages,
		UploadedImages: g.UploadedImages,
		TotalBytes:     g.TotalBytes,
		UploadedBytes:  g.UploadedBytes,
		RemoteURL:      g.RemoteURL,
		AddedAt:        g.AddedAt,
		FinishedAt:     g.FinishedAt,
	}
	for _, f := range g.Failures {
		if f.Filename != "" {
			item.Failures = append(item.Failures, f.Filename+": "+f.Reason)
		} else {
			item.Failures = append(item.Failures, f.Reason)
		}
	}
	return item
}

// TabInfo is the tab DTO.
type TabInfo struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	System bool   `json:"system"`
}

// AddRequest registers a folder with the queue. Start queues the item as
// soon as its scan succeeds.
type AddRequest struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Template string `json:"template"`
	TabID    int64  `json:"tab_id"`
	Start    bool   `json:"start"`
}

// AddResponse returns the created item.
type AddResponse struct {
	Item Item `json:"item"`
}

// StartRequest queues items for upload. Empty Paths means every startable
// item.
type StartRequest struct {
	Paths []string `json:"paths"`
}

// StartResponse reports how many items were queued.
type StartResponse struct {
	Started int `json:"started"`
}

// StopRequest soft-stops one item.
type StopRequest struct {
	Path string `json:"path"`
}

// StopResponse acknowledges the stop request.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse summarizes the daemon for the CLI status view.
type StatusResponse struct {
	PID        int            `json:"pid"`
	DBPath     string         `json:"db_path"`
	Counts     map[string]int `json:"counts"`
	ActivePath string         `json:"active_path,omitempty"`
	Items      int            `json:"items"`
}

// ListRequest filters the queue listing.
type ListRequest struct {
	Statuses []string `json:"statuses"`
	TabID    int64    `json:"tab_id"`
}

// ListResponse carries queue entries in insertion order.
type ListResponse struct {
	Items []Item `json:"items"`
}

// RemoveRequest deletes items by path.
type RemoveRequest struct {
	Paths []string `json:"paths"`
}

// RemoveResponse reports the number removed.
type RemoveResponse struct {
	Removed int `json:"removed"`
}

// ClearRequest removes every item in the given statuses.
type ClearRequest struct {
	Statuses []string `json:"statuses"`
}

// ClearResponse reports the number removed.
type ClearResponse struct {
	Removed int `json:"removed"`
}

// MoveRequest repositions an item (0-based index).
type MoveRequest struct {
	Path  string `json:"path"`
	Index int    `json:"index"`
}

// MoveResponse acknowledges the move.
type MoveResponse struct {
	Moved bool `json:"moved"`
}

// TabListRequest fetches all tabs.
type TabListRequest struct{}

// TabListResponse carries tabs in display order.
type TabListResponse struct {
	Tabs []TabInfo `json:"tabs"`
}

// TabCreateRequest adds a tab.
type TabCreateRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// TabCreateResponse returns the created tab.
type TabCreateResponse struct {
	Tab TabInfo `json:"tab"`
}

// TabRenameRequest renames a non-system tab.
type TabRenameRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TabRenameResponse acknowledges the rename.
type TabRenameResponse struct {
	Renamed bool `json:"renamed"`
}

// TabDeleteRequest deletes a non-system tab, reassigning members.
type TabDeleteRequest struct {
	ID         int64 `json:"id"`
	ReassignTo int64 `json:"reassign_to"`
}

// TabDeleteResponse acknowledges the deletion.
type TabDeleteResponse struct {
	Deleted bool `json:"deleted"`
}
