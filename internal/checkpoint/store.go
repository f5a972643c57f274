// Package checkpoint persists per-file transfer records and run summaries
// in SQLite so an interrupted migration can resume.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/tonimelisma/drive-migrate/internal/migrate"
)

const dirPermissions = 0o700

// ErrLocked means another migration holds the checkpoint database.
var ErrLocked = errors.New("checkpoint: database is in use by another migration")

// ErrNoDatabase means the checkpoint database has not been created yet.
var ErrNoDatabase = errors.New("checkpoint: no checkpoint database")

const (
	sqlLoadTransfers = `SELECT path, revision, status, attempts, last_error, destination_id, updated_at
		FROM transfers`

	sqlUpsertTransfer = `INSERT INTO transfers
		(path, revision, status, attempts, last_error, destination_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
		 revision = excluded.revision,
		 status = excluded.status,
		 attempts = excluded.attempts,
		 last_error = excluded.last_error,
		 destination_id = excluded.destination_id,
		 updated_at = excluded.updated_at`

	sqlStatusCounts = `SELECT status, COUNT(*) FROM transfers GROUP BY status`

	sqlInsertRun = `INSERT INTO runs
		(run_id, state, dry_run, started_at, finished_at,
		 succeeded, failed, skipped, pending, bytes, failed_paths)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
		 state = excluded.state,
		 finished_at = excluded.finished_at,
		 succeeded = excluded.succeeded,
		 failed = excluded.failed,
		 skipped = excluded.skipped,
		 pending = excluded.pending,
		 bytes = excluded.bytes,
		 failed_paths = excluded.failed_paths`

	sqlLastRun = `SELECT run_id, state, dry_run, started_at, finished_at,
		succeeded, failed, skipped, pending, bytes, failed_paths
		FROM runs ORDER BY finished_at DESC LIMIT 1`
)

// Store is the SQLite checkpoint store. A Store opened with Open holds an
// exclusive file lock until Close.
type Store struct {
	db      *sql.DB
	lock    *flock.Flock
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open creates or opens the checkpoint database at dbPath, takes the run
// lock, and applies migrations. Returns ErrLocked when another process
// holds the lock.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), dirPermissions); err != nil {
		return nil, fmt.Errorf("checkpoint: creating directory: %w", err)
	}

	lock := flock.New(dbPath + ".lock")

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("checkpoint: locking %s: %w", dbPath, err)
	}

	if !locked {
		return nil, ErrLocked
	}

	db, err := openDB(dbPath)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		lock.Unlock()

		return nil, err
	}

	logger.Info("checkpoint store opened", slog.String("db_path", dbPath))

	return &Store{db: db, lock: lock, logger: logger, nowFunc: time.Now}, nil
}

// OpenReader opens an existing checkpoint database for inspection without
// taking the run lock, so status can be read while a migration runs.
func OpenReader(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoDatabase
		}

		return nil, fmt.Errorf("checkpoint: %w", err)
	}

	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: opening %s: %w", dbPath, err)
	}

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

func openDB(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: opening database %s: %w", dbPath, err)
	}

	// Workers save concurrently; one connection serializes the writes.
	db.SetMaxOpenConns(1)

	return db, nil
}

// Close closes the database and releases the run lock.
func (s *Store) Close() error {
	err := s.db.Close()

	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}

	if err != nil {
		return fmt.Errorf("checkpoint: closing: %w", err)
	}

	return nil
}

// Load returns every transfer record keyed by normalized path.
func (s *Store) Load(ctx context.Context) (map[string]migrate.CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlLoadTransfers)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: loading transfers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]migrate.CheckpointRecord)

	for rows.Next() {
		var (
			rec       migrate.CheckpointRecord
			status    string
			lastError sql.NullString
			destID    sql.NullString
			updatedAt int64
		)

		if err := rows.Scan(&rec.Path, &rec.Revision, &status, &rec.Attempts, &lastError, &destID, &updatedAt); err != nil {
			return nil, fmt.Errorf("checkpoint: scanning transfer row: %w", err)
		}

		rec.Status = migrate.TransferStatus(status)
		rec.LastError = lastError.String
		rec.DestinationID = destID.String
		rec.UpdatedAt = time.Unix(0, updatedAt).UTC()

		out[rec.Path] = rec
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: iterating transfer rows: %w", err)
	}

	s.logger.Debug("checkpoint loaded", slog.Int("records", len(out)))

	return out, nil
}

// Save upserts records in one transaction.
func (s *Store) Save(ctx context.Context, records []migrate.CheckpointRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("checkpoint: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqlUpsertTransfer)
	if err != nil {
		return fmt.Errorf("checkpoint: preparing upsert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]

		updated := rec.UpdatedAt
		if updated.IsZero() {
			updated = s.nowFunc()
		}

		if _, err := stmt.ExecContext(ctx,
			rec.Path, rec.Revision, string(rec.Status), rec.Attempts,
			nullString(rec.LastError), nullString(rec.DestinationID), updated.UnixNano(),
		); err != nil {
			return fmt.Errorf("checkpoint: saving %s: %w", rec.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("checkpoint: committing: %w", err)
	}

	return nil
}

// SaveSummary records the outcome of a run.
func (s *Store) SaveSummary(ctx context.Context, summary *migrate.RunSummary) error {
	failed := summary.Failed
	if failed == nil {
		failed = []migrate.FailedPath{}
	}

	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("checkpoint: encoding failed paths: %w", err)
	}

	_, err = s.db.ExecContext(ctx, sqlInsertRun,
		summary.RunID, string(summary.State), summary.DryRun,
		summary.StartedAt.UnixNano(), summary.FinishedAt.UnixNano(),
		summary.Counts[migrate.StatusSucceeded], summary.Counts[migrate.StatusFailed],
		summary.Counts[migrate.StatusSkipped], summary.Counts[migrate.StatusPending],
		summary.Bytes, string(failedJSON),
	)
	if err != nil {
		return fmt.Errorf("checkpoint: saving run %s: %w", summary.RunID, err)
	}

	return nil
}

// LastRun returns the most recently finished run, or nil when none is
// recorded.
func (s *Store) LastRun(ctx context.Context) (*migrate.RunSummary, error) {
	var (
		sum        migrate.RunSummary
		state      string
		started    int64
		finished   int64
		succeeded  int
		failed     int
		skipped    int
		pending    int
		failedJSON string
	)

	err := s.db.QueryRowContext(ctx, sqlLastRun).Scan(
		&sum.RunID, &state, &sum.DryRun, &started, &finished,
		&succeeded, &failed, &skipped, &pending, &sum.Bytes, &failedJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("checkpoint: reading last run: %w", err)
	}

	sum.State = migrate.RunState(state)
	sum.StartedAt = time.Unix(0, started).UTC()
	sum.FinishedAt = time.Unix(0, finished).UTC()
	sum.Counts = map[migrate.TransferStatus]int{
		migrate.StatusSucceeded: succeeded,
		migrate.StatusFailed:    failed,
		migrate.StatusSkipped:   skipped,
		migrate.StatusPending:   pending,
	}

	if err := json.Unmarshal([]byte(failedJSON), &sum.Failed); err != nil {
		return nil, fmt.Errorf("checkpoint: decoding failed paths of run %s: %w", sum.RunID, err)
	}

	return &sum, nil
}

// StatusCounts returns how many checkpointed paths are in each status.
func (s *Store) StatusCounts(ctx context.Context) (map[migrate.TransferStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, sqlStatusCounts)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: counting transfers: %w", err)
	}
	defer rows.Close()

	out := make(map[migrate.TransferStatus]int)

	for rows.Next() {
		var (
			status string
			n      int
		)

		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("checkpoint: scanning count row: %w", err)
		}

		out[migrate.TransferStatus(status)] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: iterating count rows: %w", err)
	}

	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
