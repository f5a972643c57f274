package migrate

import (
	"context"
	"crypto/md5" //nolint:gosec // md5 matches Drive's md5Checksum, not used for security
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultMimeType = "application/octet-stream"

// TransferOptions configures a TransferUnit.
type TransferOptions struct {
	// MaxRetries is the total number of attempts per file (>= 1).
	MaxRetries         int
	RetryDelay         time.Duration
	MigratePermissions bool
	PreserveTimestamps bool
	// SpoolDir holds downloads while they upload; empty uses the OS temp dir.
	SpoolDir string
	// DryRun skips downloads; the destination store is expected to be a
	// non-mutating stand-in.
	DryRun bool
}

// TransferUnit moves one file: download, upload with metadata, then
// permission grants.
type TransferUnit struct {
	source   SourceLister
	dest     DestinationStore
	opts     TransferOptions
	limiter  *BandwidthLimiter
	observer Observer
	logger   *slog.Logger

	nowFunc func() time.Time
}

// NewTransferUnit creates a TransferUnit. limiter may be nil (unlimited)
// and observer may be nil.
func NewTransferUnit(
	source SourceLister,
	dest DestinationStore,
	opts TransferOptions,
	limiter *BandwidthLimiter,
	observer Observer,
	logger *slog.Logger,
) *TransferUnit {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}

	if observer == nil {
		observer = NopObserver{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &TransferUnit{
		source:   source,
		dest:     dest,
		opts:     opts,
		limiter:  limiter,
		observer: observer,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// ContainerFunc returns the id of the container a file is uploaded into.
type ContainerFunc func(ctx context.Context) (string, error)

// Transfer migrates entry into the container containerID.
func (t *TransferUnit) Transfer(ctx context.Context, entry SourceEntry, containerID string) (TransferRecord, error) {
	return t.TransferInto(ctx, entry, func(context.Context) (string, error) {
		return containerID, nil
	})
}

// TransferInto migrates entry into the container returned by container.
// The container lookup runs inside each attempt, so folder failures share
// the retry budget. Every attempt re-downloads and re-uploads. A source
// file that no longer exists yields a skipped record and no error. On
// exhausted or non-retryable failure the record is failed and the error is
// returned.
func (t *TransferUnit) TransferInto(ctx context.Context, entry SourceEntry, container ContainerFunc) (TransferRecord, error) {
	rec := TransferRecord{
		Path:     entry.Path,
		Revision: entry.Revision,
		Status:   StatusInProgress,
	}

	backoff := retry.WithMaxRetries(uint64(t.opts.MaxRetries-1), constantBackoff(t.opts.RetryDelay)) //nolint:gosec // MaxRetries >= 1

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rec.Attempts++

		id, n, err := t.attempt(ctx, entry, container)
		if err != nil {
			t.logger.Warn("transfer attempt failed",
				slog.String("path", entry.Path),
				slog.Int("attempt", rec.Attempts),
				slog.String("error", err.Error()),
			)

			if retryable(err) {
				return retry.RetryableError(err)
			}

			return err
		}

		rec.DestinationID = id
		rec.Bytes = n

		return nil
	})

	switch {
	case err == nil:
		rec.Status = StatusSucceeded
	case errors.Is(err, ErrSourceNotFound):
		rec.Status = StatusSkipped
		rec.LastError = "source file no longer exists"

		t.logger.Info("source file vanished, skipping", slog.String("path", entry.Path))

		return rec, nil
	default:
		rec.Status = StatusFailed
		rec.LastError = err.Error()

		return rec, fmt.Errorf("transferring %s after %d attempts: %w", entry.Path, rec.Attempts, err)
	}

	if t.opts.MigratePermissions {
		rec.PermissionErrors = t.applyGrants(ctx, entry, rec.DestinationID)
	}

	return rec, nil
}

// attempt resolves the container, then performs one download + upload.
// Returns the new object id and the number of bytes moved.
func (t *TransferUnit) attempt(ctx context.Context, entry SourceEntry, container ContainerFunc) (string, int64, error) {
	containerID, err := container(ctx)
	if err != nil {
		return "", 0, err
	}

	_, name := splitPath(entry.Path)
	meta := ObjectMetadata{
		Name:         name,
		ParentID:     containerID,
		MimeType:     mimeTypeFor(name),
		ModifiedTime: t.modifiedTime(entry),
	}

	progress := func(uploaded, total int64) {
		t.observer.UploadProgress(entry.Path, uploaded, total)
		t.logger.Debug("upload progress",
			slog.String("path", entry.Path),
			slog.Int64("uploaded", uploaded),
			slog.Int64("total", total),
		)
	}

	if t.opts.DryRun {
		id, err := t.dest.CreateObject(ctx, meta, emptyReaderAt{}, entry.Size, progress)
		return id, entry.Size, err
	}

	spool, err := os.CreateTemp(t.opts.SpoolDir, "download-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating spool file: %w", err)
	}

	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	sum := md5.New() //nolint:gosec // see import

	n, err := t.source.Download(ctx, entry.Path, io.MultiWriter(spool, sum))
	if errors.Is(err, ErrNotFound) {
		return "", 0, fmt.Errorf("downloading: %w: %w", ErrSourceNotFound, err)
	}

	if err != nil {
		return "", 0, fmt.Errorf("downloading: %w", err)
	}

	meta.MD5 = hex.EncodeToString(sum.Sum(nil))

	id, err := t.dest.CreateObject(ctx, meta, t.limiter.WrapReaderAt(ctx, spool), n, progress)
	if err != nil {
		return "", 0, fmt.Errorf("uploading: %w", err)
	}

	return id, n, nil
}

// applyGrants applies translated permissions, returning how many failed.
// Failures are logged and never fail the transfer.
func (t *TransferUnit) applyGrants(ctx context.Context, entry SourceEntry, objectID string) int {
	var failed int

	for _, g := range TranslatePermissions(entry.Sharing) {
		if err := t.dest.CreatePermissionGrant(ctx, objectID, g.Email, g.Role); err != nil {
			failed++

			permErr := &PermissionApplyError{Path: entry.Path, Email: g.Email, Role: g.Role, Err: err}
			t.logger.Warn("permission grant failed",
				slog.String("path", entry.Path),
				slog.String("error", permErr.Error()),
			)

			continue
		}

		t.logger.Debug("permission granted",
			slog.String("path", entry.Path),
			slog.String("email", g.Email),
			slog.String("role", string(g.Role)),
		)
	}

	return failed
}

func (t *TransferUnit) modifiedTime(entry SourceEntry) time.Time {
	if t.opts.PreserveTimestamps && entry.ModifiedTime != nil {
		return entry.ModifiedTime.UTC()
	}

	return t.nowFunc().UTC()
}

// mimeTypeFor guesses a content type from the file extension, without
// parameters such as charset.
func mimeTypeFor(name string) string {
	t := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if t == "" {
		return defaultMimeType
	}

	base, _, _ := strings.Cut(t, ";")

	return strings.TrimSpace(base)
}

// constantBackoff waits d between attempts. Unlike retry.NewConstant it
// accepts a zero delay.
func constantBackoff(d time.Duration) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		return d, false
	})
}

// emptyReaderAt stands in for content in dry-run uploads.
type emptyReaderAt struct{}

func (emptyReaderAt) ReadAt([]byte, int64) (int, error) {
	return 0, io.EOF
}
