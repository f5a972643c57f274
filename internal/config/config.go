// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for drive-migrate. Values are layered
// defaults -> config file -> environment -> CLI flags.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	// TestFolder is the source folder migrated in --test mode.
	TestFolder  string            `toml:"test_folder"`
	Source      SourceConfig      `toml:"source"`
	Destination DestinationConfig `toml:"destination"`
	Options     OptionsConfig     `toml:"options"`
	Logging     LoggingConfig     `toml:"logging"`
	Network     NetworkConfig     `toml:"network"`
	State       StateConfig       `toml:"state"`
}

// SourceConfig selects what is read from Dropbox.
type SourceConfig struct {
	RootFolder string `toml:"root_folder"`
	// ExcludePatterns are matched as substrings of the source path; patterns
	// containing glob metacharacters also match the base name or full path.
	ExcludePatterns []string `toml:"exclude_patterns"`
}

// DestinationConfig selects where files land in Google Drive.
type DestinationConfig struct {
	RootFolder      string `toml:"root_folder"`
	UseSharedDrive  bool   `toml:"use_shared_drive"`
	SharedDriveName string `toml:"shared_drive_name"`
}

// OptionsConfig controls transfer behavior. Size and duration values are
// strings parsed during resolution ("50MiB", "100ms").
type OptionsConfig struct {
	PreserveTimestamps bool   `toml:"preserve_timestamps"`
	MigratePermissions bool   `toml:"migrate_permissions"`
	ChunkSize          string `toml:"chunk_size"`
	ParallelUploads    int    `toml:"parallel_uploads"`
	MaxRetries         int    `toml:"max_retries"`
	RetryDelaySeconds  int    `toml:"retry_delay_seconds"`
	ContinueOnError    bool   `toml:"continue_on_error"`
	InterFilePause     string `toml:"inter_file_pause"`
	BandwidthLimit     string `toml:"bandwidth_limit"`
	TestLimit          int    `toml:"test_limit"`
	VerifyUploads      bool   `toml:"verify_uploads"`
}

// LoggingConfig controls log output: level, destination file, and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// StateConfig locates credentials, the checkpoint database, logs, and the
// download spool.
type StateConfig struct {
	DataDir string `toml:"data_dir"`
}

// CLIOverrides holds values from global CLI flags. Empty means unset.
type CLIOverrides struct {
	ConfigPath string
	DataDir    string
}
