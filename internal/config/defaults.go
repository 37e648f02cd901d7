package config

const (
	defaultDataDir            = "~/.local/share/imxup"
	defaultLogDir             = "~/.local/share/imxup/logs"
	defaultEndpoint           = "https://api.imx.to/v1"
	defaultBatchSize          = 4
	defaultMaxRetries         = 3
	defaultConnectTimeout     = 15
	defaultReadTimeout        = 120
	defaultSampleCount        = 20
	defaultMinSizeRatio       = 0.25
	defaultAggregate          = "median"
	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 10
	defaultPersistIntervalMS  = 100
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Upload: Upload{
			Endpoint:       defaultEndpoint,
			BatchSize:      defaultBatchSize,
			MaxRetries:     defaultMaxRetries,
			ConnectTimeout: defaultConnectTimeout,
			ReadTimeout:    defaultReadTimeout,
		},
		Scan: Scan{
			SampleCount:     defaultSampleCount,
			MinSizeRatio:    defaultMinSizeRatio,
			Aggregate:       defaultAggregate,
			ExcludeOutliers: true,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			PersistIntervalMS:  defaultPersistIntervalMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
