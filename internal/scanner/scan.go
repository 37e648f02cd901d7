package scanner

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	// Header decoders for the rest of the accepted extension set.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/twwat/imxup-sub002/internal/config"
	"github.com/twwat/imxup-sub002/internal/store"
)

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
	".webp": {}, ".bmp": {}, ".tif": {}, ".tiff": {},
}

// IsImageFile reports whether path carries an accepted image extension.
func IsImageFile(path string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// FileInfo is one enumerated image file in on-disk (name) order.
type FileInfo struct {
	Name string
	Size int64
}

// Result describes a successfully scanned folder.
type Result struct {
	Files       []FileInfo
	TotalImages int
	TotalBytes  int64
	WidthAgg    int
	HeightAgg   int
	Sampled     int
}

// ValidationError aggregates every per-file integrity failure in one folder.
// Individual corrupt files are never surfaced alone; the folder fails whole.
type ValidationError struct {
	Failures []store.FileError
}

func (e *ValidationError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("1 corrupt file: %s (%s)", e.Failures[0].Filename, e.Failures[0].Reason)
	}
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Filename)
	}
	return fmt.Sprintf("%d corrupt files: %s", len(e.Failures), strings.Join(names, ", "))
}

// Scan enumerates, validates, and characterizes one folder. Sampled files are
// fully decoded; the rest get a header decode only. Any corrupt file fails
// the whole folder.
func Scan(path string, cfg config.Scan) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read folder: %w", err)
	}

	res := &Result{}
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		res.Files = append(res.Files, FileInfo{Name: entry.Name(), Size: fi.Size()})
		res.TotalBytes += fi.Size()
	}
	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Name < res.Files[j].Name })
	res.TotalImages = len(res.Files)
	if res.TotalImages == 0 {
		return nil, fmt.Errorf("no image files in %s", path)
	}

	sampled := selectSample(res.Files, cfg)
	res.Sampled = len(sampled)
	inSample := make(map[string]struct{}, len(sampled))
	for _, f := range sampled {
		inSample[f.Name] = struct{}{}
	}

	var failures []store.FileError
	var widths, heights []int
	for _, f := range res.Files {
		full := filepath.Join(path, f.Name)
		if _, ok := inSample[f.Name]; ok {
			img, err := imaging.Open(full)
			if err != nil {
				failures = append(failures, store.FileError{Filename: f.Name, Reason: fmt.Sprintf("decode: %v", err)})
				continue
			}
			bounds := img.Bounds()
			widths = append(widths, bounds.Dx())
			heights = append(heights, bounds.Dy())
		} else if err := verifyHeader(full); err != nil {
			failures = append(failures, store.FileError{Filename: f.Name, Reason: err.Error()})
		}
	}
	if len(failures) > 0 {
		return nil, &ValidationError{Failures: failures}
	}

	res.WidthAgg = aggregate(widths, cfg)
	res.HeightAgg = aggregate(heights, cfg)
	return res, nil
}

func verifyHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %v", err)
	}
	defer f.Close()
	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("decode header: %v", err)
	}
	return nil
}

// selectSample applies the sampling policy: skip edges, exclude glob matches
// and undersized files, then thin to a fixed count or percentage with even
// spacing across the remaining candidates.
func selectSample(files []FileInfo, cfg config.Scan) []FileInfo {
	candidates := files
	if cfg.SkipFirst && len(candidates) > 1 {
		candidates = candidates[1:]
	}
	if cfg.SkipLast && len(candidates) > 1 {
		candidates = candidates[:len(candidates)-1]
	}

	if len(cfg.ExcludeGlobs) > 0 {
		kept := candidates[:0:0]
		for _, f := range candidates {
			if !matchesAny(f.Name, cfg.ExcludeGlobs) {
				kept = append(kept, f)
			}
		}
		candidates = kept
	}

	if cfg.MinSizeRatio > 0 && len(candidates) > 0 {
		var sum int64
		for _, f := range candidates {
			sum += f.Size
		}
		threshold := int64(cfg.MinSizeRatio * float64(sum) / float64(len(candidates)))
		kept := candidates[:0:0]
		for _, f := range candidates {
			if f.Size >= threshold {
				kept = append(kept, f)
			}
		}
		candidates = kept
	}

	// Filters may have emptied the candidate set; fall back to everything so
	// the dimension estimate never comes from zero files.
	if len(candidates) == 0 {
		candidates = files
	}

	want := cfg.SampleCount
	if cfg.SamplePercent > 0 {
		byPercent := int(math.Ceil(cfg.SamplePercent / 100 * float64(len(candidates))))
		if want == 0 || byPercent < want {
			want = byPercent
		}
	}
	if want <= 0 || want >= len(candidates) {
		return candidates
	}

	sample := make([]FileInfo, 0, want)
	step := float64(len(candidates)) / float64(want)
	for i := 0; i < want; i++ {
		sample = append(sample, candidates[int(float64(i)*step)])
	}
	return sample
}

func matchesAny(name string, globs []string) bool {
	for _, g := range globs {
		if ok, err := filepath.Match(g, name); err == nil && ok {
			return true
		}
	}
	return false
}

// aggregate reduces sampled values to one estimate, optionally trimming IQR
// outliers first.
func aggregate(values []int, cfg config.Scan) int {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)

	if cfg.ExcludeOutliers && len(sorted) >= 4 {
		q1 := quantile(sorted, 0.25)
		q3 := quantile(sorted, 0.75)
		iqr := q3 - q1
		lo := q1 - 1.5*iqr
		hi := q3 + 1.5*iqr
		kept := sorted[:0:0]
		for _, v := range sorted {
			if float64(v) >= lo && float64(v) <= hi {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			sorted = kept
		}
	}

	if cfg.Aggregate == "mean" {
		var sum int
		for _, v := range sorted {
			sum += v
		}
		return int(math.Round(float64(sum) / float64(len(sorted))))
	}
	// Median by default.
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func quantile(sorted []int, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return float64(sorted[lo])
	}
	frac := pos - float64(lo)
	return float64(sorted[lo])*(1-frac) + float64(sorted[hi])*frac
}
