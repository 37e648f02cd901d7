package engine

import (
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/twwat/imxup-sub002/internal/store"
)

// Result is the aggregate outcome of one engine run. Images holds per-image
// metadata in on-disk enumeration order, with resumed files' previously
// captured metadata merged in, indistinguishable from a from-scratch run.
type Result struct {
	RemoteID  string
	RemoteURL string

	TotalImages int
	Succeeded   int
	Failed      int
	Resumed     int

	TransferredBytes int64
	Elapsed          time.Duration

	WidthAgg    int
	HeightAgg   int
	DominantExt string

	Images   []store.ImageMeta
	Failures []store.FileError

	// Stopped marks a soft stop: submissions past the stop point never
	// happened, so Succeeded+Failed may be less than TotalImages.
	Stopped bool
}

// UploadedCount is the number of images the remote now holds: this run's
// successes plus the resumed set.
func (r *Result) UploadedCount() int {
	return r.Succeeded + r.Resumed
}

// Complete reports whether every image made it to the remote.
func (r *Result) Complete() bool {
	return r.UploadedCount() == r.TotalImages && r.Failed == 0 && !r.Stopped
}

func dominantExtension(names []string) string {
	counts := make(map[string]int)
	for _, n := range names {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(n)), ".")
		if ext != "" {
			counts[ext]++
		}
	}
	best, bestCount := "", 0
	for ext, c := range counts {
		if c > bestCount || (c == bestCount && ext < best) {
			best, bestCount = ext, c
		}
	}
	return best
}

// meanDimensions averages the known dimensions across uploaded metadata.
func meanDimensions(metas []store.ImageMeta) (int, int) {
	var wSum, hSum, n int
	for _, m := range metas {
		if m.Width > 0 && m.Height > 0 {
			wSum += m.Width
			hSum += m.Height
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return int(math.Round(float64(wSum) / float64(n))), int(math.Round(float64(hSum) / float64(n)))
}
