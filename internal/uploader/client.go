package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var copyBufPool = sync.Pool{
	New: func() any { return make([]byte, 64*1024) },
}

// UploadRequest describes one image transfer.
type UploadRequest struct {
	// Path is the absolute path of the file to send.
	Path string
	// GalleryID targets an existing remote gallery. Empty means anonymous:
	// the remote creates a gallery implicitly and returns its id.
	GalleryID string
	// Progress, when non-nil, receives cumulative byte counts as the body
	// streams out.
	Progress ProgressFunc
}

// UploadResult is the remote's record of a stored image.
type UploadResult struct {
	ImageID    string
	URL        string
	ThumbURL   string
	Width      int
	Height     int
	Size       int64
	GalleryID  string
	GalleryURL string
}

// GalleryRef identifies a remote gallery.
type GalleryRef struct {
	ID  string
	URL string
}

type remoteImage struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	ThumbURL string `json:"thumb_url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int64  `json:"size"`
}

type remoteGallery struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type uploadResponse struct {
	Image   remoteImage   `json:"image"`
	Gallery remoteGallery `json:"gallery"`
}

type createGalleryResponse struct {
	Gallery remoteGallery `json:"gallery"`
}

// CreateGallery asks the remote to create a named gallery. A 429 or 403
// response means the account is rate limited for named creation; the caller
// falls back to anonymous creation and records a pending rename.
func (h *Handle) CreateGallery(ctx context.Context, name string) (GalleryRef, error) {
	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return GalleryRef{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/galleries", bytes.NewReader(payload))
	if err != nil {
		return GalleryRef{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", h.apiKey)

	resp, err := h.client.Do(req)
	if err != nil {
		return GalleryRef{}, fmt.Errorf("create gallery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return GalleryRef{}, fmt.Errorf("create gallery %q: status %d: %w", name, resp.StatusCode, ErrThrottled)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return GalleryRef{}, readRemoteError(resp)
	}

	var out createGalleryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return GalleryRef{}, fmt.Errorf("decode response: %w", err)
	}
	if out.Gallery.ID == "" {
		return GalleryRef{}, fmt.Errorf("create gallery %q: remote returned no gallery id", name)
	}
	return GalleryRef{ID: out.Gallery.ID, URL: out.Gallery.URL}, nil
}

// Upload streams one image to the remote as multipart form data. The body is
// produced through a pipe so large files never buffer in memory.
func (h *Handle) Upload(ctx context.Context, ur UploadRequest) (*UploadResult, error) {
	f, err := os.Open(ur.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ur.Path, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	errCh := make(chan error, 1)

	go func() {
		defer pw.Close()
		if ur.GalleryID != "" {
			if err := writer.WriteField("gallery_id", ur.GalleryID); err != nil {
				errCh <- fmt.Errorf("write gallery field: %w", err)
				return
			}
		}
		part, err := writer.CreateFormFile("image", filepath.Base(ur.Path))
		if err != nil {
			errCh <- fmt.Errorf("create form file: %w", err)
			return
		}
		var src io.Reader = f
		if ur.Progress != nil {
			src = NewProgressReader(f, ur.Progress)
		}
		buf := copyBufPool.Get().([]byte)
		_, err = io.CopyBuffer(part, src, buf)
		copyBufPool.Put(buf)
		if err != nil {
			errCh <- fmt.Errorf("stream file: %w", err)
			return
		}
		errCh <- writer.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/upload", pr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-API-Key", h.apiKey)

	resp, err := h.client.Do(req)
	if werr := <-errCh; werr != nil && err == nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, werr
	}
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filepath.Base(ur.Path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readRemoteError(resp)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Image.ID == "" {
		return nil, fmt.Errorf("upload %s: remote returned no image id", filepath.Base(ur.Path))
	}
	return &UploadResult{
		ImageID:    out.Image.ID,
		URL:        out.Image.URL,
		ThumbURL:   out.Image.ThumbURL,
		Width:      out.Image.Width,
		Height:     out.Image.Height,
		Size:       out.Image.Size,
		GalleryID:  out.Gallery.ID,
		GalleryURL: out.Gallery.URL,
	}, nil
}

func readRemoteError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	var decoded struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &decoded) == nil && decoded.Error != "" {
		msg = decoded.Error
	}
	return &RemoteError{StatusCode: resp.StatusCode, Message: msg}
}
