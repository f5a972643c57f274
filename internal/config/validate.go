package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Validation range constants.
const (
	minParallelUploads = 1
	maxParallelUploads = 32
	minRetries         = 1
	maxRetries         = 20
	maxRetryDelay      = 3600
	minTestLimit       = 1
	chunkAlignBytes    = 256 * 1024 // Drive resumable uploads need 256 KiB multiples
	maxChunkBytes      = 1024 * 1024 * 1024
	minConnectTimeout  = 1 * time.Second
	minDataTimeout     = 5 * time.Second
	maxInterFilePause  = time.Minute
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"auto", "text", "json"}
)

// Validate checks all configuration values and returns every error found,
// so users can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSource(&cfg.Source)...)
	errs = append(errs, validateDestination(&cfg.Destination)...)
	errs = append(errs, validateOptions(&cfg.Options)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateSource(s *SourceConfig) []error {
	var errs []error

	for _, p := range s.ExcludePatterns {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, errors.New("exclude_patterns: empty pattern would exclude everything"))
			continue
		}

		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("exclude_patterns: invalid glob %q", p))
		}
	}

	return errs
}

func validateDestination(d *DestinationConfig) []error {
	if d.UseSharedDrive && strings.TrimSpace(d.SharedDriveName) == "" {
		return []error{errors.New("shared_drive_name: required when use_shared_drive is true")}
	}

	return nil
}

func validateOptions(o *OptionsConfig) []error {
	var errs []error

	if o.ParallelUploads < minParallelUploads || o.ParallelUploads > maxParallelUploads {
		errs = append(errs, fmt.Errorf("parallel_uploads: must be %d-%d, got %d",
			minParallelUploads, maxParallelUploads, o.ParallelUploads))
	}

	if o.MaxRetries < minRetries || o.MaxRetries > maxRetries {
		errs = append(errs, fmt.Errorf("max_retries: must be %d-%d, got %d", minRetries, maxRetries, o.MaxRetries))
	}

	if o.RetryDelaySeconds < 0 || o.RetryDelaySeconds > maxRetryDelay {
		errs = append(errs, fmt.Errorf("retry_delay_seconds: must be 0-%d, got %d", maxRetryDelay, o.RetryDelaySeconds))
	}

	if o.TestLimit < minTestLimit {
		errs = append(errs, fmt.Errorf("test_limit: must be >= %d, got %d", minTestLimit, o.TestLimit))
	}

	errs = append(errs, validateChunkSize(o.ChunkSize)...)

	if _, err := ParseRate(o.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("bandwidth_limit: %w", err))
	}

	if d, err := time.ParseDuration(o.InterFilePause); err != nil {
		errs = append(errs, fmt.Errorf("inter_file_pause: %w", err))
	} else if d < 0 || d > maxInterFilePause {
		errs = append(errs, fmt.Errorf("inter_file_pause: must be 0-%s, got %s", maxInterFilePause, d))
	}

	return errs
}

func validateChunkSize(s string) []error {
	n, err := ParseSize(s)
	if err != nil {
		return []error{fmt.Errorf("chunk_size: %w", err)}
	}

	switch {
	case n <= 0:
		return []error{errors.New("chunk_size: must be positive")}
	case n%chunkAlignBytes != 0:
		return []error{fmt.Errorf("chunk_size: must be a multiple of 256 KiB, got %d bytes", n)}
	case n > maxChunkBytes:
		return []error{fmt.Errorf("chunk_size: must be at most 1 GiB, got %d bytes", n)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !oneOf(l.LogLevel, validLogLevels) {
		errs = append(errs, fmt.Errorf("log_level: must be one of %s, got %q",
			strings.Join(validLogLevels, ", "), l.LogLevel))
	}

	if !oneOf(l.LogFormat, validLogFormats) {
		errs = append(errs, fmt.Errorf("log_format: must be one of %s, got %q",
			strings.Join(validLogFormats, ", "), l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateMinDuration("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateMinDuration("data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

func validateMinDuration(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}

	return false
}
