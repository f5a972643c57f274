package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tonimelisma/drive-migrate/internal/httpapi"
	"github.com/tonimelisma/drive-migrate/internal/migrate"
)

// RootID is Drive's alias for the user's My Drive root.
const RootID = "root"

// ErrChecksumMismatch means the uploaded file's md5 differs from the
// source content.
var ErrChecksumMismatch = errors.New("gdrive: uploaded checksum mismatch")

// Store adapts a Client to the migration engine's destination side.
type Store struct {
	client    *Client
	chunkSize int64
	verify    bool
	logger    *slog.Logger
}

// NewStore wraps client. chunkSize must be a multiple of ChunkAlignment;
// zero selects ChunkAlignment. verify compares each uploaded file's md5
// with the source content.
func NewStore(client *Client, chunkSize int64, verify bool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	if chunkSize <= 0 {
		chunkSize = ChunkAlignment
	}

	return &Store{client: client, chunkSize: chunkSize, verify: verify, logger: logger}
}

var (
	_ migrate.DestinationStore = (*Store)(nil)
	_ migrate.SharedRootFinder = (*Store)(nil)
	_ migrate.AccessChecker    = (*Store)(nil)
)

// RootID returns the My Drive root alias.
func (s *Store) RootID() string { return RootID }

// FindContainer looks up a folder by name under parentID.
func (s *Store) FindContainer(ctx context.Context, name, parentID, driveID string) (string, bool, error) {
	id, ok, err := s.client.FindFolder(ctx, name, parentID, driveID)
	if err != nil {
		return "", false, mapError(err)
	}

	return id, ok, nil
}

// CreateContainer creates a folder under parentID.
func (s *Store) CreateContainer(ctx context.Context, name, parentID string) (string, error) {
	id, err := s.client.CreateFolder(ctx, name, parentID)
	if err != nil {
		return "", mapError(err)
	}

	return id, nil
}

// CreateObject uploads content as a new file. With verification on, an md5
// that differs from meta.MD5 is a transient failure so the file is sent
// again.
func (s *Store) CreateObject(
	ctx context.Context, meta migrate.ObjectMetadata, content io.ReaderAt, size int64, progress migrate.ProgressFunc,
) (string, error) {
	f, err := s.client.Upload(ctx, UploadMetadata{
		Name:         meta.Name,
		ParentID:     meta.ParentID,
		MimeType:     meta.MimeType,
		ModifiedTime: meta.ModifiedTime,
	}, content, size, s.chunkSize, progress)
	if err != nil {
		return "", mapError(err)
	}

	if s.verify && meta.MD5 != "" && f.MD5Checksum != "" && !strings.EqualFold(meta.MD5, f.MD5Checksum) {
		s.logger.Warn("uploaded checksum differs from source",
			slog.String("name", meta.Name),
			slog.String("file_id", f.ID),
			slog.String("want", meta.MD5),
			slog.String("got", f.MD5Checksum),
		)

		return "", fmt.Errorf("%w: %w: %s", migrate.ErrTransient, ErrChecksumMismatch, meta.Name)
	}

	return f.ID, nil
}

// CreatePermissionGrant shares objectID with email.
func (s *Store) CreatePermissionGrant(ctx context.Context, objectID, email string, role migrate.DestinationRole) error {
	if err := s.client.CreatePermission(ctx, objectID, email, string(role)); err != nil {
		return mapError(err)
	}

	return nil
}

// FindSharedRoot resolves a shared drive name to its id.
func (s *Store) FindSharedRoot(ctx context.Context, name string) (string, error) {
	id, err := s.client.FindSharedDrive(ctx, name)
	if err != nil {
		return "", mapError(err)
	}

	return id, nil
}

// CheckAccess verifies the credentials and returns the account email.
func (s *Store) CheckAccess(ctx context.Context) (string, error) {
	about, err := s.client.About(ctx)
	if err != nil {
		return "", mapError(err)
	}

	if about.QuotaLimit > 0 {
		s.logger.Info("destination storage quota",
			slog.Int64("used", about.QuotaUsage),
			slog.Int64("limit", about.QuotaLimit),
		)
	}

	return about.EmailAddress, nil
}

// mapError translates client errors into the engine's sentinels.
func mapError(err error) error {
	switch {
	case errors.Is(err, ErrSharedDriveNotFound):
		return fmt.Errorf("%w: %w", migrate.ErrNotFound, err)
	case errors.Is(err, ErrUploadStalled):
		return fmt.Errorf("%w: %w", migrate.ErrTransient, err)
	}

	switch httpapi.Classify(err) {
	case httpapi.ClassAuth:
		return fmt.Errorf("%w: %w", migrate.ErrAuthentication, err)
	case httpapi.ClassNotFound:
		return fmt.Errorf("%w: %w", migrate.ErrNotFound, err)
	case httpapi.ClassTransient:
		return fmt.Errorf("%w: %w", migrate.ErrTransient, err)
	default:
		return err
	}
}
