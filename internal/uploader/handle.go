package uploader

import (
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// Options configures transfer handles.
type Options struct {
	Endpoint       string
	APIKey         string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Handle is one reusable low-level transfer handle. It is owned by exactly
// one worker slot at a time and is reset, not destroyed, between uploads.
type Handle struct {
	client    *http.Client
	transport *http.Transport
	endpoint  string
	apiKey    string
}

// NewHandle builds a handle with independent connect and read timeouts.
func NewHandle(opts Options) (*Handle, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: opts.ConnectTimeout,
		}).DialContext,
		MaxIdleConns:        2,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &Handle{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   opts.ReadTimeout,
		},
		transport: transport,
		endpoint:  opts.Endpoint,
		apiKey:    opts.APIKey,
	}, nil
}

// ResetSession drops session-identifying state (cookies). Called exactly once
// per gallery boundary so the remote's gallery/session association never
// leaks into the next gallery. Pooled connections survive the reset.
func (h *Handle) ResetSession() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("cookie jar: %w", err)
	}
	h.client.Jar = jar
	return nil
}

// Close releases idle connections held by the handle.
func (h *Handle) Close() {
	h.transport.CloseIdleConnections()
}
