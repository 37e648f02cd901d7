package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/twwat/imxup-sub002/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Upload.APIKey = "test"
	cfg.Upload.Endpoint = "http://127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithBatchSize overrides the upload concurrency.
func WithBatchSize(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Upload.BatchSize = n
	}
}

// WithMaxRetries overrides the retry pass budget.
func WithMaxRetries(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Upload.MaxRetries = n
	}
}
