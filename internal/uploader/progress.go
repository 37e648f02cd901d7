package uploader

import "io"

// ProgressFunc receives the cumulative number of bytes read for one file.
type ProgressFunc func(total int64)

// ProgressReader wraps a reader and reports cumulative bytes to a callback.
type ProgressReader struct {
	r        io.Reader
	total    int64
	progress ProgressFunc
}

// NewProgressReader wraps r; progress may be nil.
func NewProgressReader(r io.Reader, progress ProgressFunc) *ProgressReader {
	return &ProgressReader{r: r, progress: progress}
}

func (p *ProgressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.total += int64(n)
		if p.progress != nil {
			p.progress(p.total)
		}
	}
	return n, err
}

// Total returns the cumulative bytes read so far.
func (p *ProgressReader) Total() int64 {
	return p.total
}
