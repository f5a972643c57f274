package migrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
)

// syntheticPrefix marks ids invented by dryRunStore.
const syntheticPrefix = "dry-run:"

// dryRunStore wraps a DestinationStore so that nothing is created: finds
// are passed through for accurate planning, while creates and grants
// return synthetic ids after logging what would have happened.
type dryRunStore struct {
	real   DestinationStore
	logger *slog.Logger
	seq    atomic.Int64
}

func newDryRunStore(real DestinationStore, logger *slog.Logger) *dryRunStore {
	return &dryRunStore{real: real, logger: logger}
}

func (d *dryRunStore) nextID(kind string) string {
	return fmt.Sprintf("%s%s-%d", syntheticPrefix, kind, d.seq.Add(1))
}

func (d *dryRunStore) FindContainer(ctx context.Context, name, parentID, driveID string) (string, bool, error) {
	// Nothing exists under a container that was never created.
	if strings.HasPrefix(parentID, syntheticPrefix) {
		return "", false, nil
	}

	return d.real.FindContainer(ctx, name, parentID, driveID)
}

func (d *dryRunStore) CreateContainer(_ context.Context, name, parentID string) (string, error) {
	d.logger.Info("dry-run: would create folder", slog.String("name", name), slog.String("parent_id", parentID))

	return d.nextID("folder"), nil
}

func (d *dryRunStore) CreateObject(
	_ context.Context, meta ObjectMetadata, _ io.ReaderAt, size int64, progress ProgressFunc,
) (string, error) {
	d.logger.Info("dry-run: would upload file",
		slog.String("name", meta.Name),
		slog.String("parent_id", meta.ParentID),
		slog.String("mime_type", meta.MimeType),
		slog.Int64("size", size),
	)

	if progress != nil {
		progress(size, size)
	}

	return d.nextID("file"), nil
}

func (d *dryRunStore) CreatePermissionGrant(_ context.Context, objectID, email string, role DestinationRole) error {
	d.logger.Info("dry-run: would grant permission",
		slog.String("object_id", objectID),
		slog.String("email", email),
		slog.String("role", string(role)),
	)

	return nil
}

func (d *dryRunStore) RootID() string {
	return d.real.RootID()
}
