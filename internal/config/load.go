package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Resolved is a validated configuration with every string-typed size and
// duration parsed and every path made absolute.
type Resolved struct {
	Config

	// Path is the config file the values were read from.
	Path string
	// Created is true when the file did not exist and defaults were written.
	Created bool

	DataDir        string
	LogFile        string
	ChunkSize      int64
	BandwidthLimit int64 // bytes per second, 0 = unlimited
	InterFilePause time.Duration
	RetryDelay     time.Duration
	ConnectTimeout time.Duration
	DataTimeout    time.Duration
}

// Load reads and parses a TOML config file and validates it. Unknown keys
// are fatal errors with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrCreate loads path, first writing the default config file there if
// it does not exist. created reports whether the file was written.
func LoadOrCreate(path string, logger *slog.Logger) (cfg *Config, created bool, err error) {
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			return nil, false, err
		}

		logger.Info("created default config file", slog.String("path", path))

		created = true
	}

	cfg, err = Load(path)
	if err != nil {
		return nil, created, err
	}

	return cfg, created, nil
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	path := DefaultConfigPath()
	if env.ConfigPath != "" {
		path = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		path = cli.ConfigPath
	}

	if path == "" {
		return nil, errors.New("cannot determine config path: no home directory; use --config")
	}

	path = expandTilde(path)

	cfg, created, err := LoadOrCreate(path, logger)
	if err != nil {
		return nil, err
	}

	if env.DataDir != "" {
		cfg.State.DataDir = env.DataDir
	}

	if cli.DataDir != "" {
		cfg.State.DataDir = cli.DataDir
	}

	r, err := resolveValues(cfg)
	if err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	r.Path = path
	r.Created = created

	return r, nil
}

// resolveValues parses sizes and durations and fills derived paths. cfg
// must already have passed Validate, so parse errors here are unexpected.
func resolveValues(cfg *Config) (*Resolved, error) {
	r := &Resolved{Config: *cfg}

	r.DataDir = expandTilde(cfg.State.DataDir)
	if r.DataDir == "" {
		r.DataDir = DefaultDataDir()
	}

	if r.DataDir == "" {
		return nil, errors.New("data_dir: cannot determine default; set state.data_dir")
	}

	r.LogFile = expandTilde(cfg.Logging.LogFile)
	if r.LogFile == "" {
		r.LogFile = DefaultLogPath(r.DataDir)
	}

	var errs []error

	var err error

	if r.ChunkSize, err = ParseSize(cfg.Options.ChunkSize); err != nil {
		errs = append(errs, fmt.Errorf("chunk_size: %w", err))
	}

	if r.BandwidthLimit, err = ParseRate(cfg.Options.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("bandwidth_limit: %w", err))
	}

	if r.InterFilePause, err = time.ParseDuration(cfg.Options.InterFilePause); err != nil {
		errs = append(errs, fmt.Errorf("inter_file_pause: %w", err))
	}

	if r.ConnectTimeout, err = time.ParseDuration(cfg.Network.ConnectTimeout); err != nil {
		errs = append(errs, fmt.Errorf("connect_timeout: %w", err))
	}

	if r.DataTimeout, err = time.ParseDuration(cfg.Network.DataTimeout); err != nil {
		errs = append(errs, fmt.Errorf("data_timeout: %w", err))
	}

	r.RetryDelay = time.Duration(cfg.Options.RetryDelaySeconds) * time.Second

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return r, nil
}
