package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvConfig             = "DRIVE_MIGRATE_CONFIG"
	EnvDataDir            = "DRIVE_MIGRATE_DATA_DIR"
	EnvGoogleClientID     = "GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret = "GOOGLE_CLIENT_SECRET"
	EnvDropboxAppKey      = "DROPBOX_APP_KEY"
	EnvDropboxAppSecret   = "DROPBOX_APP_SECRET"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // DRIVE_MIGRATE_CONFIG
	DataDir    string // DRIVE_MIGRATE_DATA_DIR
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DataDir:    os.Getenv(EnvDataDir),
	}
}

// Credentials are the OAuth application registrations for both providers.
type Credentials struct {
	GoogleClientID     string
	GoogleClientSecret string
	DropboxAppKey      string
	DropboxAppSecret   string
}

// ReadCredentials reads OAuth application credentials from the environment.
func ReadCredentials() Credentials {
	return Credentials{
		GoogleClientID:     os.Getenv(EnvGoogleClientID),
		GoogleClientSecret: os.Getenv(EnvGoogleClientSecret),
		DropboxAppKey:      os.Getenv(EnvDropboxAppKey),
		DropboxAppSecret:   os.Getenv(EnvDropboxAppSecret),
	}
}

// RequireGoogle reports every missing Google variable in one error.
func (c Credentials) RequireGoogle() error {
	return requireVars(map[string]string{
		EnvGoogleClientID:     c.GoogleClientID,
		EnvGoogleClientSecret: c.GoogleClientSecret,
	})
}

// RequireDropbox reports a missing Dropbox app key. The secret is optional
// because the PKCE flow works without it.
func (c Credentials) RequireDropbox() error {
	return requireVars(map[string]string{
		EnvDropboxAppKey: c.DropboxAppKey,
	})
}

// RequireAll reports every missing variable for both providers.
func (c Credentials) RequireAll() error {
	return errors.Join(c.RequireDropbox(), c.RequireGoogle())
}

func requireVars(vars map[string]string) error {
	var missing []string

	for _, name := range []string{EnvDropboxAppKey, EnvGoogleClientID, EnvGoogleClientSecret} {
		if v, ok := vars[name]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	return fmt.Errorf("missing required environment variables: %s (set them or add them to .env)",
		strings.Join(missing, ", "))
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return fmt.Errorf("loading %s: %w", p, err)
		}
	}

	return nil
}
