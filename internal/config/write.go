package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	configFilePermissions = 0o644
	configDirPermissions  = 0o755
)

// defaultConfigTemplate is the file written on first run. Every option is
// present with its default value so users can discover and edit them.
const defaultConfigTemplate = `# drive-migrate configuration
# Credentials are read from the environment (or .env):
#   DROPBOX_APP_KEY, DROPBOX_APP_SECRET, GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET

# Source folder migrated by "migrate --test".
test_folder = "/test"

[source]
# Dropbox folder to migrate; empty means the whole Dropbox.
root_folder = ""
# Paths containing any of these are skipped. Globs match the file name.
exclude_patterns = [".DS_Store", "*.tmp", "~*", "Thumbs.db"]

[destination]
# Folder created in Google Drive to hold the migrated tree.
root_folder = "/Dropbox Migration"
use_shared_drive = false
shared_drive_name = ""

[options]
preserve_timestamps = true
migrate_permissions = true
# Upload chunk size; must be a multiple of 256 KiB.
chunk_size = "50MiB"
parallel_uploads = 3
max_retries = 3
retry_delay_seconds = 5
continue_on_error = true
# Pause after each uploaded file, to stay under API rate limits.
inter_file_pause = "100ms"
# Upload bandwidth cap such as "5MB/s"; "0" is unlimited.
bandwidth_limit = "0"
# Number of files migrated by "migrate --test".
test_limit = 10
# Compare Drive's md5 of each upload with the downloaded bytes.
verify_uploads = false

[logging]
# debug, info, warn, error
log_level = "info"
# Defaults to <data_dir>/logs/migration.log
log_file = ""
# auto, text, json
log_format = "auto"

[network]
connect_timeout = "10s"
data_timeout = "60s"
user_agent = "drive-migrate/0.1"

[state]
# Credentials, checkpoint database, logs, and download spool.
# Defaults to the platform data directory.
data_dir = ""
`

// WriteDefault writes the default config file to path, creating parent
// directories. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}

	return atomicWriteFile(path, []byte(defaultConfigTemplate))
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path, then renames it over path.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
