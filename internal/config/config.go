package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Upload contains settings for the remote gallery host and the transfer engine.
type Upload struct {
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	BatchSize      int    `toml:"batch_size"`
	MaxRetries     int    `toml:"max_retries"`
	ConnectTimeout int    `toml:"connect_timeout"`
	ReadTimeout    int    `toml:"read_timeout"`
	AutoStart      bool   `toml:"auto_start"`
}

// Scan contains settings for folder validation and dimension sampling.
type Scan struct {
	SampleCount     int      `toml:"sample_count"`
	SamplePercent   float64  `toml:"sample_percent"`
	SkipFirst       bool     `toml:"skip_first"`
	SkipLast        bool     `toml:"skip_last"`
	ExcludeGlobs    []string `toml:"exclude_globs"`
	MinSizeRatio    float64  `toml:"min_size_ratio"`
	Aggregate       string   `toml:"aggregate"`
	ExcludeOutliers bool     `toml:"exclude_outliers"`
}

// Workflow contains daemon timing and persistence intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	PersistIntervalMS  int `toml:"persist_interval_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// MirrorDestination names one secondary host a completed gallery is mirrored to.
type MirrorDestination struct {
	Name     string `toml:"name"`
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
}

// Mirror contains configuration for secondary distribution after a gallery
// completes its primary upload.
type Mirror struct {
	Enabled      bool                `toml:"enabled"`
	Destinations []MirrorDestination `toml:"destinations"`
}

// Config encapsulates all configuration values for imxup.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Upload: remote endpoint, credentials, concurrency, retry budget
//   - Scan: folder validation and dimension sampling policy
//   - Workflow: queue driver intervals and persistence debounce
//   - Logging: log format and level
//   - Mirror: secondary distribution destinations
type Config struct {
	Paths    Paths    `toml:"paths"`
	Upload   Upload   `toml:"upload"`
	Scan     Scan     `toml:"scan"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
	Mirror   Mirror   `toml:"mirror"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/imxup/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("imxup.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the queue database location inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "galleries.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "imxupd.lock")
}

// SocketPath returns the control socket location used by the CLI.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "imxupd.sock")
}

// WriteSample writes the annotated sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
