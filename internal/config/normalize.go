package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeUpload()
	c.normalizeScan()
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.normalizeMirror()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeUpload() {
	c.Upload.Endpoint = strings.TrimRight(strings.TrimSpace(c.Upload.Endpoint), "/")
	if c.Upload.Endpoint == "" {
		c.Upload.Endpoint = defaultEndpoint
	}
	c.Upload.APIKey = strings.TrimSpace(c.Upload.APIKey)
	if c.Upload.APIKey == "" {
		if value, ok := os.LookupEnv("IMXUP_API_KEY"); ok {
			c.Upload.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Upload.BatchSize <= 0 {
		c.Upload.BatchSize = defaultBatchSize
	}
	if c.Upload.MaxRetries < 0 {
		c.Upload.MaxRetries = 0
	}
	if c.Upload.ConnectTimeout <= 0 {
		c.Upload.ConnectTimeout = defaultConnectTimeout
	}
	if c.Upload.ReadTimeout <= 0 {
		c.Upload.ReadTimeout = defaultReadTimeout
	}
}

func (c *Config) normalizeScan() {
	c.Scan.Aggregate = strings.ToLower(strings.TrimSpace(c.Scan.Aggregate))
	if c.Scan.Aggregate == "" {
		c.Scan.Aggregate = defaultAggregate
	}
	if c.Scan.SampleCount <= 0 && c.Scan.SamplePercent <= 0 {
		c.Scan.SampleCount = defaultSampleCount
	}
	globs := c.Scan.ExcludeGlobs[:0]
	for _, glob := range c.Scan.ExcludeGlobs {
		if trimmed := strings.TrimSpace(glob); trimmed != "" {
			globs = append(globs, trimmed)
		}
	}
	c.Scan.ExcludeGlobs = globs
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.PersistIntervalMS <= 0 {
		c.Workflow.PersistIntervalMS = defaultPersistIntervalMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMirror() {
	destinations := c.Mirror.Destinations[:0]
	for _, dest := range c.Mirror.Destinations {
		dest.Name = strings.TrimSpace(dest.Name)
		dest.Endpoint = strings.TrimRight(strings.TrimSpace(dest.Endpoint), "/")
		dest.APIKey = strings.TrimSpace(dest.APIKey)
		if dest.Name == "" && dest.Endpoint == "" {
			continue
		}
		destinations = append(destinations, dest)
	}
	c.Mirror.Destinations = destinations
}
