package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/tonimelisma/drive-migrate/internal/auth"
	"github.com/tonimelisma/drive-migrate/internal/checkpoint"
	"github.com/tonimelisma/drive-migrate/internal/config"
	"github.com/tonimelisma/drive-migrate/internal/dropbox"
	"github.com/tonimelisma/drive-migrate/internal/gdrive"
	"github.com/tonimelisma/drive-migrate/internal/migrate"
)

const spoolDirPerms = 0o700

// newHTTPClient applies the network timeouts. There is no overall request
// timeout because downloads and upload chunks can legitimately run long.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	transport.ResponseHeaderTimeout = cfg.DataTimeout

	return &http.Client{Transport: transport}
}

// providerFor returns the OAuth application for name, failing with every
// missing environment variable listed.
func providerFor(name string, creds config.Credentials) (*auth.Provider, error) {
	switch name {
	case auth.ProviderDropbox:
		if err := creds.RequireDropbox(); err != nil {
			return nil, err
		}

		return auth.DropboxProvider(creds.DropboxAppKey, creds.DropboxAppSecret), nil
	case auth.ProviderGoogle:
		if err := creds.RequireGoogle(); err != nil {
			return nil, err
		}

		return auth.GoogleProvider(creds.GoogleClientID, creds.GoogleClientSecret), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want %q or %q)", name, auth.ProviderDropbox, auth.ProviderGoogle)
	}
}

// tokenSourceFor loads the saved credentials for a provider.
func tokenSourceFor(ctx context.Context, cc *CLIContext, name string) (auth.TokenSource, error) {
	p, err := providerFor(name, config.ReadCredentials())
	if err != nil {
		return nil, err
	}

	ts, err := auth.TokenSourceFromPath(ctx, p, config.CredentialPath(cc.Cfg.DataDir, name), cc.Logger)
	if err != nil {
		if errors.Is(err, auth.ErrNotLoggedIn) {
			return nil, fmt.Errorf("%w: run 'drive-migrate login %s' first", err, name)
		}

		return nil, err
	}

	return ts, nil
}

func newDropboxClient(ctx context.Context, cc *CLIContext, hc *http.Client) (*dropbox.Client, error) {
	ts, err := tokenSourceFor(ctx, cc, auth.ProviderDropbox)
	if err != nil {
		return nil, err
	}

	return dropbox.NewClient("", "", hc, ts, cc.Logger, cc.Cfg.Network.UserAgent), nil
}

func newDriveClient(ctx context.Context, cc *CLIContext, hc *http.Client) (*gdrive.Client, error) {
	ts, err := tokenSourceFor(ctx, cc, auth.ProviderGoogle)
	if err != nil {
		return nil, err
	}

	return gdrive.NewClient("", "", hc, ts, cc.Logger, cc.Cfg.Network.UserAgent), nil
}

// migrateOptions are the per-invocation switches of the migrate command.
type migrateOptions struct {
	DryRun bool
	Test   bool
	Resume bool
}

// engineConfig maps resolved configuration and flags onto the engine.
func engineConfig(cfg *config.Resolved, opts migrateOptions) migrate.EngineConfig {
	o := cfg.Options

	return migrate.EngineConfig{
		SourceRoot:      cfg.Source.RootFolder,
		ExcludePatterns: cfg.Source.ExcludePatterns,
		DestinationRoot: cfg.Destination.RootFolder,
		UseSharedDrive:  cfg.Destination.UseSharedDrive,
		SharedDriveName: cfg.Destination.SharedDriveName,
		ParallelUploads: o.ParallelUploads,
		ContinueOnError: o.ContinueOnError,
		InterFilePause:  cfg.InterFilePause,
		BandwidthLimit:  cfg.BandwidthLimit,
		DryRun:          opts.DryRun,
		Resume:          opts.Resume,
		TestMode:        opts.Test,
		TestFolder:      cfg.TestFolder,
		TestLimit:       o.TestLimit,
		Transfer: migrate.TransferOptions{
			MaxRetries:         o.MaxRetries,
			RetryDelay:         cfg.RetryDelay,
			MigratePermissions: o.MigratePermissions,
			PreserveTimestamps: o.PreserveTimestamps,
			SpoolDir:           config.SpoolDir(cfg.DataDir),
		},
	}
}

// session owns the resources of one migrate invocation.
type session struct {
	engine      *migrate.Engine
	checkpoints *checkpoint.Store
}

// openCheckpoints takes the run lock for real runs. Dry runs only read
// prior records, and only when a database exists.
func openCheckpoints(ctx context.Context, cc *CLIContext, dryRun bool) (*checkpoint.Store, error) {
	path := config.CheckpointPath(cc.Cfg.DataDir)

	if !dryRun {
		store, err := checkpoint.Open(ctx, path, cc.Logger)
		if errors.Is(err, checkpoint.ErrLocked) {
			return nil, fmt.Errorf("%w: another migration is running against %s", err, cc.Cfg.DataDir)
		}

		return store, err
	}

	store, err := checkpoint.OpenReader(ctx, path, cc.Logger)
	if errors.Is(err, checkpoint.ErrNoDatabase) {
		return nil, nil
	}

	return store, err
}

// newSession builds clients, the checkpoint store, and the engine.
func newSession(ctx context.Context, cc *CLIContext, opts migrateOptions, observer migrate.Observer) (*session, error) {
	if err := config.ReadCredentials().RequireAll(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(config.SpoolDir(cc.Cfg.DataDir), spoolDirPerms); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}

	hc := newHTTPClient(cc.Cfg)

	dbx, err := newDropboxClient(ctx, cc, hc)
	if err != nil {
		return nil, err
	}

	gd, err := newDriveClient(ctx, cc, hc)
	if err != nil {
		return nil, err
	}

	checkpoints, err := openCheckpoints(ctx, cc, opts.DryRun)
	if err != nil {
		return nil, err
	}

	deps := migrate.Deps{
		Source:      dropbox.NewSource(dbx, cc.Logger),
		Destination: gdrive.NewStore(gd, cc.Cfg.ChunkSize, cc.Cfg.Options.VerifyUploads, cc.Logger),
		Observer:    observer,
		Logger:      cc.Logger,
	}

	// A nil *checkpoint.Store must not become a non-nil interface.
	if checkpoints != nil {
		deps.Checkpoints = checkpoints
	}

	cc.Logger.Debug("session ready",
		slog.String("source_root", cc.Cfg.Source.RootFolder),
		slog.String("destination_root", cc.Cfg.Destination.RootFolder),
		slog.Bool("checkpoints", checkpoints != nil),
	)

	return &session{
		engine:      migrate.NewEngine(engineConfig(cc.Cfg, opts), deps),
		checkpoints: checkpoints,
	}, nil
}

// Close releases the checkpoint lock.
func (s *session) Close() error {
	if s.checkpoints == nil {
		return nil
	}

	return s.checkpoints.Close()
}
