package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// rootKey is the folder map key of the destination root container.
const rootKey = ""

// FolderResolver maps normalized source directory paths to destination
// container ids, creating missing containers on demand. Every prefix of a
// resolved path is cached, so a parent is always mapped before any child
// is created under it.
type FolderResolver struct {
	store        DestinationStore
	rootFolder   string
	sharedRootID string
	logger       *slog.Logger

	mu    sync.RWMutex
	cache map[string]string

	// flight collapses concurrent resolution of the same uncached prefix
	// into one find-or-create.
	flight singleflight.Group
}

// NewFolderResolver creates a resolver that builds rootFolder under the
// shared root when sharedRootID is set, otherwise under store.RootID().
func NewFolderResolver(store DestinationStore, rootFolder, sharedRootID string, logger *slog.Logger) *FolderResolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &FolderResolver{
		store:        store,
		rootFolder:   rootFolder,
		sharedRootID: sharedRootID,
		logger:       logger,
		cache:        make(map[string]string),
	}
}

// Init resolves the destination root folder once per run, creating each
// segment of the configured root path as needed.
func (r *FolderResolver) Init(ctx context.Context) error {
	parent := r.sharedRootID
	if parent == "" {
		parent = r.store.RootID()
	}

	for _, seg := range strings.Split(NormalizePath(r.rootFolder), "/") {
		if seg == "" {
			continue
		}

		id, err := r.findOrCreate(ctx, seg, parent)
		if err != nil {
			return fmt.Errorf("%w: resolving destination root %q: %w", ErrDestinationStructure, r.rootFolder, err)
		}

		parent = id
	}

	r.mu.Lock()
	r.cache[rootKey] = parent
	r.mu.Unlock()

	r.logger.Info("destination root resolved",
		slog.String("root_folder", r.rootFolder),
		slog.String("container_id", parent),
		slog.Bool("shared_drive", r.sharedRootID != ""),
	)

	return nil
}

// Resolve returns the container id for a source directory path, creating
// any missing containers along the way. Cached paths return without
// touching the store.
func (r *FolderResolver) Resolve(ctx context.Context, dirPath string) (string, error) {
	key := NormalizePath(dirPath)
	if id, ok := r.lookup(key); ok {
		return id, nil
	}

	parent, ok := r.lookup(rootKey)
	if !ok {
		return "", errors.New("migrate: folder resolver used before Init")
	}

	var prefix string

	for _, seg := range strings.Split(key, "/") {
		if seg == "" {
			continue
		}

		if prefix == "" {
			prefix = seg
		} else {
			prefix += "/" + seg
		}

		if id, ok := r.lookup(prefix); ok {
			parent = id
			continue
		}

		id, err := r.resolvePrefix(ctx, prefix, seg, parent)
		if err != nil {
			return "", fmt.Errorf("resolving folder %q: %w", prefix, err)
		}

		parent = id
	}

	return parent, nil
}

// Len reports how many paths are mapped, including the root.
func (r *FolderResolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.cache)
}

func (r *FolderResolver) lookup(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.cache[key]

	return id, ok
}

func (r *FolderResolver) resolvePrefix(ctx context.Context, prefix, name, parentID string) (string, error) {
	v, err, _ := r.flight.Do(prefix, func() (any, error) {
		// Another flight may have finished this prefix since our lookup.
		if id, ok := r.lookup(prefix); ok {
			return id, nil
		}

		id, err := r.findOrCreate(ctx, name, parentID)
		if err != nil {
			return "", err
		}

		r.mu.Lock()
		r.cache[prefix] = id
		r.mu.Unlock()

		return id, nil
	})
	if err != nil {
		return "", err
	}

	id, _ := v.(string)

	return id, nil
}

func (r *FolderResolver) findOrCreate(ctx context.Context, name, parentID string) (string, error) {
	id, found, err := r.store.FindContainer(ctx, name, parentID, r.sharedRootID)
	if err != nil {
		return "", err
	}

	if found {
		r.logger.Debug("folder exists", slog.String("name", name), slog.String("id", id))
		return id, nil
	}

	id, err = r.store.CreateContainer(ctx, name, parentID)
	if err != nil {
		return "", err
	}

	r.logger.Debug("folder created", slog.String("name", name), slog.String("id", id))

	return id, nil
}
