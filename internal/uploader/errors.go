package uploader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrThrottled indicates the remote refused a named gallery creation;
	// the engine falls back to anonymous creation via the first upload.
	ErrThrottled = errors.New("remote throttled gallery creation")
)

// Kind partitions transfer failures for retry/backoff policy.
type Kind int

const (
	KindOther Kind = iota
	KindTimeout
	KindConnect
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnect:
		return "connect"
	default:
		return "other"
	}
}

// Classify maps a transport error onto its failure kind.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return KindConnect
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindConnect
	}
	return KindOther
}

// RemoteError is a non-success API response.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, e.Message)
}
