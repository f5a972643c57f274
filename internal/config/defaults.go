package config

// Default values for configuration options, matching the file written by
// LoadOrCreate on first run.
const (
	defaultTestFolder        = "/test"
	defaultDestinationRoot   = "/Dropbox Migration"
	defaultChunkSize         = "50MiB"
	defaultParallelUploads   = 3
	defaultMaxRetries        = 3
	defaultRetryDelaySeconds = 5
	defaultInterFilePause    = "100ms"
	defaultBandwidthLimit    = "0"
	defaultTestLimit         = 10
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
	defaultConnectTimeout    = "10s"
	defaultDataTimeout       = "60s"
	defaultUserAgent         = "drive-migrate/0.1"
)

// defaultExcludePatterns skips OS and editor litter.
var defaultExcludePatterns = []string{".DS_Store", "*.tmp", "~*", "Thumbs.db"}

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		TestFolder: defaultTestFolder,
		Source: SourceConfig{
			RootFolder:      "",
			ExcludePatterns: append([]string(nil), defaultExcludePatterns...),
		},
		Destination: DestinationConfig{
			RootFolder: defaultDestinationRoot,
		},
		Options: OptionsConfig{
			PreserveTimestamps: true,
			MigratePermissions: true,
			ChunkSize:          defaultChunkSize,
			ParallelUploads:    defaultParallelUploads,
			MaxRetries:         defaultMaxRetries,
			RetryDelaySeconds:  defaultRetryDelaySeconds,
			ContinueOnError:    true,
			InterFilePause:     defaultInterFilePause,
			BandwidthLimit:     defaultBandwidthLimit,
			TestLimit:          defaultTestLimit,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
			UserAgent:      defaultUserAgent,
		},
	}
}
