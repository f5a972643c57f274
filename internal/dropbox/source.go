package dropbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/tonimelisma/drive-migrate/internal/httpapi"
	"github.com/tonimelisma/drive-migrate/internal/migrate"
)

// Source adapts a Client to the migration engine's source side.
type Source struct {
	client *Client
	logger *slog.Logger

	mu   sync.RWMutex
	self *Account
}

// NewSource wraps client.
func NewSource(client *Client, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}

	return &Source{client: client, logger: logger}
}

var (
	_ migrate.SourceLister  = (*Source)(nil)
	_ migrate.AccessChecker = (*Source)(nil)
)

// CheckAccess verifies the credentials and remembers the account, whose
// own membership is left out of translated grants.
func (s *Source) CheckAccess(ctx context.Context) (string, error) {
	acct, err := s.client.CurrentAccount(ctx)
	if err != nil {
		return "", mapError(err)
	}

	s.mu.Lock()
	s.self = acct
	s.mu.Unlock()

	return acct.Email, nil
}

// ListEntries lists every file under root.
func (s *Source) ListEntries(ctx context.Context, root string) ([]migrate.SourceEntry, error) {
	files, err := s.client.ListFolder(ctx, root)
	if err != nil {
		return nil, mapError(err)
	}

	entries := make([]migrate.SourceEntry, 0, len(files))

	for i := range files {
		f := &files[i]

		e := migrate.SourceEntry{
			ID:          f.ID,
			Path:        f.PathDisplay,
			Size:        f.Size,
			Revision:    f.Rev,
			ContentHash: f.ContentHash,
		}

		if !f.ClientModified.IsZero() {
			mod := f.ClientModified
			e.ModifiedTime = &mod
		}

		// Files Dropbox says have no members need no sharing lookup.
		if f.SharedMembers != nil && !*f.SharedMembers {
			e.Sharing = &migrate.SharingRecord{AccessType: migrate.AccessPrivate}
		}

		entries = append(entries, e)
	}

	return entries, nil
}

// FetchSharing returns the file's members as grants. Files whose sharing
// metadata is refused are reported as unshared.
func (s *Source) FetchSharing(ctx context.Context, fileID string) (*migrate.SharingRecord, error) {
	meta, err := s.client.GetSharedFileMetadata(ctx, fileID)
	if err != nil {
		if httpapi.Classify(err) == httpapi.ClassPermanent && !errors.Is(err, ErrPathNotFound) {
			s.logger.Debug("no sharing metadata", slog.String("file_id", fileID), slog.String("error", err.Error()))
			return &migrate.SharingRecord{AccessType: migrate.AccessPrivate}, nil
		}

		return nil, mapError(err)
	}

	members, err := s.client.ListFileMembers(ctx, fileID)
	if err != nil {
		return nil, mapError(err)
	}

	rec := &migrate.SharingRecord{AccessType: migrate.AccessPrivate}

	for _, m := range members {
		if s.isSelf(m) {
			continue
		}

		rec.Grants = append(rec.Grants, migrate.Grant{
			PrincipalEmail: m.Email,
			SourceRole:     sourceRole(m.AccessType),
			RoleLabel:      m.AccessType,
		})
	}

	switch {
	case meta.LinkAudience == "public":
		rec.AccessType = migrate.AccessViewerLink
	case meta.LinkAudience != "" || len(rec.Grants) > 0:
		rec.AccessType = migrate.AccessRestricted
	}

	rec.IsShared = len(rec.Grants) > 0 || meta.LinkAudience != ""

	return rec, nil
}

// Download streams the file at p into w.
func (s *Source) Download(ctx context.Context, p string, w io.Writer) (int64, error) {
	_, n, err := s.client.Download(ctx, p, w)
	if err != nil {
		return n, mapError(err)
	}

	return n, nil
}

func (s *Source) isSelf(m Member) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.self == nil {
		return false
	}

	if m.AccountID != "" && m.AccountID == s.self.AccountID {
		return true
	}

	return m.Email != "" && strings.EqualFold(m.Email, s.self.Email)
}

// sourceRole normalizes a Dropbox access level tag.
func sourceRole(tag string) migrate.SourceRole {
	switch {
	case tag == "owner":
		return migrate.SourceOwner
	case tag == "editor":
		return migrate.SourceEditor
	case strings.HasPrefix(tag, "viewer"):
		return migrate.SourceViewer
	default:
		return migrate.SourceUnknown
	}
}

// mapError translates client errors into the engine's sentinels.
func mapError(err error) error {
	switch {
	case errors.Is(err, ErrPathNotFound):
		return fmt.Errorf("%w: %w", migrate.ErrNotFound, err)
	case errors.Is(err, ErrHashMismatch):
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
