package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultParallelUploads = 3
	defaultTestLimit       = 10

	reasonAlreadyMigrated = "already migrated"
)

// EngineConfig holds the run parameters.
type EngineConfig struct {
	SourceRoot      string
	ExcludePatterns []string

	DestinationRoot string
	UseSharedDrive  bool
	SharedDriveName string

	ParallelUploads int
	ContinueOnError bool
	// InterFilePause is slept after each successful transfer.
	InterFilePause time.Duration
	BandwidthLimit int64

	DryRun bool
	Resume bool
	// TestMode migrates at most TestLimit files from TestFolder, falling back
	// to SourceRoot when TestFolder does not exist.
	TestMode   bool
	TestFolder string
	TestLimit  int

	Transfer TransferOptions
}

// Deps are the engine's collaborators. Checkpoints and Observer may be nil.
type Deps struct {
	Source      SourceLister
	Destination DestinationStore
	Checkpoints CheckpointStore
	Observer    Observer
	Logger      *slog.Logger
}

// Engine runs a migration through the states Initializing, Enumerating,
// Migrating, and finally Completed or Aborted. Run may be called again
// after it returns, but not concurrently.
type Engine struct {
	cfg         EngineConfig
	source      SourceLister
	dest        DestinationStore
	checkpoints CheckpointStore
	observer    Observer
	logger      *slog.Logger

	// sharedRootID is the shared drive id resolved during Initializing.
	sharedRootID string

	mu    sync.Mutex
	state RunState

	aborted atomic.Bool

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
	newRunID  func() string
}

// NewEngine creates an engine. Zero-valued limits fall back to defaults.
func NewEngine(cfg EngineConfig, deps Deps) *Engine {
	if cfg.ParallelUploads < 1 {
		cfg.ParallelUploads = defaultParallelUploads
	}

	if cfg.TestLimit < 1 {
		cfg.TestLimit = defaultTestLimit
	}

	cfg.Transfer.DryRun = cfg.DryRun

	observer := deps.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:         cfg,
		source:      deps.Source,
		dest:        deps.Destination,
		checkpoints: deps.Checkpoints,
		observer:    observer,
		logger:      logger,
		nowFunc:     time.Now,
		sleepFunc:   sleepCtx,
		newRunID:    uuid.NewString,
	}
}

// State returns the engine's current state.
func (e *Engine) State() RunState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

func (e *Engine) setState(s RunState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()

	e.logger.Info("migration state", slog.String("state", string(s)))
	e.observer.StateChanged(s)
}

// run carries the per-run collaborators built during Initializing.
type run struct {
	resolver *FolderResolver
	unit     *TransferUnit
	prior    map[string]CheckpointRecord

	mu      sync.Mutex
	records []TransferRecord
}

func (r *run) add(rec TransferRecord) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// Run executes the migration. Failures during Initializing or Enumerating
// return an error and no summary. Otherwise the summary is always
// returned; the error is non-nil when the run was aborted.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	started := e.nowFunc()
	runID := e.newRunID()

	e.aborted.Store(false)
	e.sharedRootID = ""

	e.logger.Info("migration run starting",
		slog.String("run_id", runID),
		slog.Bool("dry_run", e.cfg.DryRun),
		slog.Bool("resume", e.cfg.Resume),
		slog.Bool("test_mode", e.cfg.TestMode),
	)

	e.setState(StateInitializing)

	r, err := e.initialize(ctx)
	if err != nil {
		return nil, err
	}

	e.setState(StateEnumerating)

	entries, err := e.enumerate(ctx)
	if err != nil {
		return nil, err
	}

	e.setState(StateMigrating)

	e.migrate(ctx, r, entries)

	state := StateCompleted

	var runErr error

	switch {
	case ctx.Err() != nil:
		state = StateAborted
		runErr = fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
	case e.aborted.Load():
		state = StateAborted
		runErr = fmt.Errorf("%w: stopped after an unrecoverable transfer failure", ErrAborted)
	}

	summary := buildSummary(runID, state, e.cfg.DryRun, started, e.nowFunc(), len(entries), r.records)

	e.logger.Info("migration run finished",
		slog.String("run_id", runID),
		slog.Int("records", len(summary.Records)),
		slog.Int("folders", r.resolver.Len()),
		slog.Int64("bytes", summary.Bytes),
	)

	e.setState(state)

	if !e.cfg.DryRun && e.checkpoints != nil {
		// Persist even when the run's context was canceled.
		if err := e.checkpoints.SaveSummary(context.WithoutCancel(ctx), summary); err != nil {
			e.logger.Error("saving run summary", slog.String("error", err.Error()))
		}
	}

	return summary, runErr
}

func (e *Engine) initialize(ctx context.Context) (*run, error) {
	if err := e.checkAccess(ctx); err != nil {
		return nil, err
	}

	if e.cfg.UseSharedDrive {
		finder, ok := e.dest.(SharedRootFinder)
		if !ok {
			return nil, fmt.Errorf("%w: destination does not support shared drives", ErrDestinationStructure)
		}

		id, err := finder.FindSharedRoot(ctx, e.cfg.SharedDriveName)
		if err != nil {
			return nil, fmt.Errorf("%w: shared drive %q: %w", ErrDestinationStructure, e.cfg.SharedDriveName, err)
		}

		e.sharedRootID = id
		e.logger.Info("using shared drive",
			slog.String("name", e.cfg.SharedDriveName),
			slog.String("drive_id", id),
		)
	}

	dest := e.dest
	if e.cfg.DryRun {
		dest = newDryRunStore(e.dest, e.logger)
	}

	resolver := NewFolderResolver(dest, e.cfg.DestinationRoot, e.sharedRootID, e.logger)
	if err := resolver.Init(ctx); err != nil {
		return nil, err
	}

	r := &run{
		resolver: resolver,
		unit: NewTransferUnit(e.source, dest, e.cfg.Transfer,
			NewBandwidthLimiter(e.cfg.BandwidthLimit, e.logger), e.observer, e.logger),
	}

	if e.cfg.Resume && e.checkpoints != nil {
		prior, err := e.checkpoints.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading checkpoint: %w", err)
		}

		r.prior = prior
		e.logger.Info("resuming from checkpoint", slog.Int("records", len(prior)))
	}

	return r, nil
}

func (e *Engine) checkAccess(ctx context.Context) error {
	for _, side := range []struct {
		name string
		impl any
	}{
		{"source", e.source},
		{"destination", e.dest},
	} {
		checker, ok := side.impl.(AccessChecker)
		if !ok {
			continue
		}

		account, err := checker.CheckAccess(ctx)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrAuthentication, side.name, err)
		}

		e.logger.Info("connected", slog.String("side", side.name), slog.String("account", account))
	}

	return nil
}

func (e *Engine) enumerate(ctx context.Context) ([]SourceEntry, error) {
	root := e.cfg.SourceRoot

	if e.cfg.TestMode {
		entries, err := e.source.ListEntries(ctx, e.cfg.TestFolder)

		switch {
		case err == nil:
			root = e.cfg.TestFolder
			return e.plan(entries, root), nil
		case errors.Is(err, ErrNotFound):
			e.logger.Warn("test folder not found, using source root",
				slog.String("test_folder", e.cfg.TestFolder),
				slog.String("source_root", root),
			)
		default:
			return nil, fmt.Errorf("listing test folder %q: %w", e.cfg.TestFolder, err)
		}
	}

	entries, err := e.source.ListEntries(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("listing source root %q: %w", root, err)
	}

	return e.plan(entries, root), nil
}

// plan applies the exclude filter and the test-mode limit.
func (e *Engine) plan(entries []SourceEntry, root string) []SourceEntry {
	kept, excluded := NewExcludeFilter(e.cfg.ExcludePatterns).Apply(entries)

	if e.cfg.TestMode && len(kept) > e.cfg.TestLimit {
		kept = kept[:e.cfg.TestLimit]
	}

	var total int64
	for i := range kept {
		total += kept[i].Size
	}

	e.logger.Info("enumeration complete",
		slog.String("root", root),
		slog.Int("found", len(entries)),
		slog.Int("excluded", excluded),
		slog.Int("planned", len(kept)),
		slog.Int64("bytes", total),
	)

	e.observer.EntriesPlanned(len(kept), total)

	return kept
}

// migrate runs entries through a bounded pool. Submission stops on
// cancellation or abort; work already started runs to completion.
func (e *Engine) migrate(ctx context.Context, r *run, entries []SourceEntry) {
	var g errgroup.Group
	g.SetLimit(e.cfg.ParallelUploads)

	for i := range entries {
		if ctx.Err() != nil || e.aborted.Load() {
			break
		}

		entry := entries[i]

		g.Go(func() error {
			if ctx.Err() != nil || e.aborted.Load() {
				return nil
			}

			e.observer.TransferStarted(entry.Path, entry.Size)

			rec, err := e.process(ctx, r, entry)
			r.add(rec)
			e.observer.TransferFinished(rec)

			switch {
			case errors.Is(err, ErrAuthentication):
				// Every later transfer would fail the same way.
				e.logger.Error("credentials rejected mid-run, stopping", slog.String("error", err.Error()))
				e.aborted.Store(true)
			case rec.Status == StatusFailed && !e.cfg.ContinueOnError:
				e.aborted.Store(true)
			}

			return nil
		})
	}

	_ = g.Wait()
}

// process takes one entry to a terminal record. The error is the transfer
// failure, if any.
func (e *Engine) process(ctx context.Context, r *run, entry SourceEntry) (TransferRecord, error) {
	key := NormalizePath(entry.Path)

	if cp, ok := r.prior[key]; ok && cp.Status == StatusSucceeded && cp.Revision == entry.Revision {
		e.logger.Debug("already migrated", slog.String("path", entry.Path), slog.String("revision", entry.Revision))

		return TransferRecord{
			Path:          entry.Path,
			Revision:      entry.Revision,
			Status:        StatusSkipped,
			LastError:     reasonAlreadyMigrated,
			DestinationID: cp.DestinationID,
		}, nil
	}

	if e.cfg.Transfer.MigratePermissions && entry.Sharing == nil && entry.ID != "" {
		sharing, err := e.source.FetchSharing(ctx, entry.ID)
		if err != nil {
			e.logger.Warn("fetching sharing metadata",
				slog.String("path", entry.Path),
				slog.String("error", err.Error()),
			)
		} else {
			entry.Sharing = sharing
		}
	}

	dir, _ := splitPath(entry.Path)

	rec, err := r.unit.TransferInto(ctx, entry, func(ctx context.Context) (string, error) {
		return r.resolver.Resolve(ctx, dir)
	})

	if err != nil {
		e.logger.Error("transfer failed",
			slog.String("path", entry.Path),
			slog.Int("attempt", rec.Attempts),
			slog.String("error", err.Error()),
		)
	} else {
		e.logger.Info("transfer finished",
			slog.String("path", entry.Path),
			slog.String("status", string(rec.Status)),
			slog.Int64("bytes", rec.Bytes),
		)
	}

	if !e.cfg.DryRun && e.checkpoints != nil {
		cp := CheckpointRecord{
			Path:          key,
			Revision:      rec.Revision,
			Status:        rec.Status,
			Attempts:      rec.Attempts,
			LastError:     rec.LastError,
			DestinationID: rec.DestinationID,
			UpdatedAt:     e.nowFunc().UTC(),
		}

		if saveErr := e.checkpoints.Save(context.WithoutCancel(ctx), []CheckpointRecord{cp}); saveErr != nil {
			e.logger.Error("saving checkpoint", slog.String("path", entry.Path), slog.String("error", saveErr.Error()))
		}
	}

	if rec.Status == StatusSucceeded && !e.cfg.DryRun && e.cfg.InterFilePause > 0 {
		_ = e.sleepFunc(ctx, e.cfg.InterFilePause)
	}

	return rec, err
}

// sleepCtx waits for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
