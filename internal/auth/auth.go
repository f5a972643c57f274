// Package auth obtains and persists OAuth2 credentials for the source
// (Dropbox) and destination (Google Drive) accounts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/tonimelisma/drive-migrate/internal/tokenfile"
)

// Provider names, also used as credential file stems.
const (
	ProviderDropbox = "dropbox"
	ProviderGoogle  = "google"
)

// ErrNotLoggedIn is returned when no credential file exists for a provider.
var ErrNotLoggedIn = errors.New("auth: not logged in")

// googleDriveScope grants full Drive access, needed to create folders,
// upload files, and add permissions anywhere in a shared drive.
const googleDriveScope = "https://www.googleapis.com/auth/drive"

// Dropbox scopes for reading files and sharing metadata.
var dropboxScopes = []string{
	"account_info.read",
	"files.metadata.read",
	"files.content.read",
	"sharing.read",
}

// TokenSource provides bearer tokens; satisfied by httpapi.TokenSource.
type TokenSource interface {
	Token() (string, error)
}

// Provider describes one OAuth2 application registration.
type Provider struct {
	Name   string
	Config *oauth2.Config

	// authParams are extra authorization URL parameters.
	authParams []oauth2.AuthCodeOption
}

// GoogleProvider returns the Drive OAuth2 application. Google desktop
// clients accept any loopback port, so the browser flow is used.
func GoogleProvider(clientID, clientSecret string) *Provider {
	return &Provider{
		Name: ProviderGoogle,
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{googleDriveScope},
			Endpoint:     endpoints.Google,
		},
		authParams: []oauth2.AuthCodeOption{
			oauth2.AccessTypeOffline,
			oauth2.ApprovalForce,
		},
	}
}

// DropboxProvider returns the Dropbox OAuth2 application. Dropbox only
// honours exact redirect URIs, so the code-paste flow is used and
// token_access_type=offline requests a refresh token.
func DropboxProvider(appKey, appSecret string) *Provider {
	return &Provider{
		Name: ProviderDropbox,
		Config: &oauth2.Config{
			ClientID:     appKey,
			ClientSecret: appSecret,
			Scopes:       dropboxScopes,
			Endpoint:     endpoints.Dropbox,
		},
		authParams: []oauth2.AuthCodeOption{
			oauth2.SetAuthURLParam("token_access_type", "offline"),
		},
	}
}

// TokenSourceFromPath loads saved credentials and returns a TokenSource
// that refreshes automatically and writes refreshed tokens back to path.
// Returns ErrNotLoggedIn if no credential file exists.
//
// ctx must outlive the TokenSource; refreshes use its HTTP client.
func TokenSourceFromPath(ctx context.Context, p *Provider, path string, logger *slog.Logger) (TokenSource, error) {
	f, err := tokenfile.Load(path)
	if err != nil {
		return nil, err
	}

	if f == nil {
		return nil, fmt.Errorf("%w to %s", ErrNotLoggedIn, p.Name)
	}

	expired := !f.Token.Expiry.IsZero() && f.Token.Expiry.Before(time.Now())
	logger.Debug("loaded saved token",
		slog.String("provider", p.Name),
		slog.String("path", path),
		slog.Time("expiry", f.Token.Expiry),
		slog.Bool("expired", expired),
	)

	return newPersistingSource(p.Config.TokenSource(ctx, f.Token), f.Token, path, p.Name, logger), nil
}

// Logout removes the saved credentials for a provider. Already logged out
// is not an error.
func Logout(path string, logger *slog.Logger) error {
	removed, err := tokenfile.Delete(path)
	if err != nil {
		return err
	}

	if removed {
		logger.Info("logout: removed credentials", slog.String("path", path))
	} else {
		logger.Info("logout: no credentials to remove", slog.String("path", path))
	}

	return nil
}

// SaveAccount records the account identity next to the token.
func SaveAccount(path string, acct *tokenfile.Account) error {
	f, err := tokenfile.Load(path)
	if err != nil {
		return err
	}

	if f == nil {
		return fmt.Errorf("%w: no credentials at %s", ErrNotLoggedIn, path)
	}

	f.Account = acct

	return tokenfile.Save(path, f)
}

// persistingSource writes the token back to disk whenever a refresh
// produces a new access token.
type persistingSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	path     string
	provider string
	last     string
	logger   *slog.Logger
}

func newPersistingSource(
	src oauth2.TokenSource, initial *oauth2.Token, path, provider string, logger *slog.Logger,
) *persistingSource {
	return &persistingSource{
		src:      src,
		path:     path,
		provider: provider,
		last:     initial.AccessToken,
		logger:   logger,
	}
}

func (s *persistingSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.src.Token()
	if err != nil {
		s.logger.Warn("token acquisition failed",
			slog.String("provider", s.provider),
			slog.String("error", err.Error()),
		)

		return "", fmt.Errorf("auth: obtaining %s token: %w", s.provider, err)
	}

	if t.AccessToken != s.last {
		s.logger.Info("token refreshed",
			slog.String("provider", s.provider),
			slog.Time("new_expiry", t.Expiry),
		)

		if err := tokenfile.UpdateToken(s.path, t); err != nil {
			s.logger.Warn("failed to persist refreshed token",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		}

		s.last = t.AccessToken
	}

	return t.AccessToken, nil
}

// saveNewToken persists a freshly exchanged token and wraps it in a
// persisting source.
func saveNewToken(
	ctx context.Context, p *Provider, path string, tok *oauth2.Token, logger *slog.Logger,
) (TokenSource, error) {
	if err := tokenfile.Save(path, &tokenfile.File{Provider: p.Name, Token: tok}); err != nil {
		return nil, fmt.Errorf("auth: saving token: %w", err)
	}

	logger.Info("login successful",
		slog.String("provider", p.Name),
		slog.String("path", path),
		slog.Time("expiry", tok.Expiry),
	)

	return newPersistingSource(p.Config.TokenSource(ctx, tok), tok, path, p.Name, logger), nil
}
