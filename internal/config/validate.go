package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateMirror(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/imxup/config.toml"
		}
		return fmt.Errorf("upload.api_key is required. Set IMXUP_API_KEY env var or edit %s (create with 'imxup config init')", defaultPath)
	}
	if c.Upload.BatchSize > 16 {
		return errors.New("upload.batch_size must be 16 or fewer concurrent transfers")
	}
	return nil
}

func (c *Config) validateScan() error {
	switch c.Scan.Aggregate {
	case "mean", "median":
	default:
		return fmt.Errorf("scan.aggregate must be \"mean\" or \"median\", got %q", c.Scan.Aggregate)
	}
	if c.Scan.SamplePercent < 0 || c.Scan.SamplePercent > 100 {
		return errors.New("scan.sample_percent must be between 0 and 100")
	}
	if c.Scan.MinSizeRatio < 0 || c.Scan.MinSizeRatio >= 1 {
		return errors.New("scan.min_size_ratio must be in [0, 1)")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	for name, value := range map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.persist_interval_ms":  c.Workflow.PersistIntervalMS,
	} {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateMirror() error {
	if !c.Mirror.Enabled {
		return nil
	}
	if len(c.Mirror.Destinations) == 0 {
		return errors.New("mirror.destinations must name at least one destination when mirror.enabled is true")
	}
	seen := make(map[string]struct{}, len(c.Mirror.Destinations))
	for _, dest := range c.Mirror.Destinations {
		if dest.Name == "" {
			return errors.New("mirror destination name must be set")
		}
		if dest.Endpoint == "" {
			return fmt.Errorf("mirror destination %q must set an endpoint", dest.Name)
		}
		if _, dup := seen[dest.Name]; dup {
			return fmt.Errorf("mirror destination %q is listed twice", dest.Name)
		}
		seen[dest.Name] = struct{}{}
	}
	return nil
}
