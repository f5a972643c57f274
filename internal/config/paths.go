package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "drive-migrate"

const configFileName = "config.toml"

// File and directory names under the data directory.
const (
	checkpointFileName = "checkpoint.db"
	credentialsDirName = "credentials"
	logsDirName        = "logs"
	logFileName        = "migration.log"
	spoolDirName       = "spool"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/drive-migrate).
// On macOS, uses ~/Library/Application Support/drive-migrate.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", home, ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for credentials,
// the checkpoint database, logs, and the download spool.
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/drive-migrate).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", home, filepath.Join(".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func xdgDir(envVar, home, fallback string) string {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// CheckpointPath is the SQLite checkpoint database under dataDir.
func CheckpointPath(dataDir string) string {
	return filepath.Join(dataDir, checkpointFileName)
}

// CredentialPath is the credential file for provider under dataDir.
func CredentialPath(dataDir, provider string) string {
	return filepath.Join(dataDir, credentialsDirName, provider+".json")
}

// SpoolDir holds downloaded files while they upload.
func SpoolDir(dataDir string) string {
	return filepath.Join(dataDir, spoolDirName)
}

// DefaultLogPath is the log file used when logging.log_file is unset.
func DefaultLogPath(dataDir string) string {
	return filepath.Join(dataDir, logsDirName, logFileName)
}
