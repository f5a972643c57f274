// Package migrate is the migration engine: it maps the source namespace
// onto destination folders, decides and sequences transfers with retry and
// resume, and translates sharing metadata into destination grants.
package migrate

import (
	"context"
	"io"
	"time"
)

// SourceEntry is one file reported by the source enumeration. It is not
// modified after enumeration; sharing enrichment produces a copy.
type SourceEntry struct {
	// ID is the source's opaque file id, used to fetch sharing metadata.
	ID   string
	Path string
	Size int64
	// Revision changes whenever the file content changes.
	Revision string
	// ContentHash is the source-computed content digest, used to verify
	// downloads. Empty when the source does not provide one.
	ContentHash  string
	ModifiedTime *time.Time
	Sharing      *SharingRecord
}

// AccessType describes link-level sharing on the source.
type AccessType string

// Access types reported by the source. Link sharing is never translated.
const (
	AccessPrivate    AccessType = "private"
	AccessViewerLink AccessType = "viewer-link"
	AccessEditorLink AccessType = "editor-link"
	AccessRestricted AccessType = "restricted"
)

// SourceRole is the normalized role a principal holds on the source.
type SourceRole string

// Source roles.
const (
	SourceViewer    SourceRole = "viewer"
	SourceCommenter SourceRole = "commenter"
	SourceEditor    SourceRole = "editor"
	SourceOwner     SourceRole = "owner"
	SourceUnknown   SourceRole = "unknown"
)

// Grant is one principal's access on the source.
type Grant struct {
	PrincipalEmail string
	SourceRole     SourceRole
	// RoleLabel is the provider's raw label, e.g. "can_edit".
	RoleLabel string
}

// SharingRecord is the sharing state of one source file.
type SharingRecord struct {
	IsShared   bool
	Grants     []Grant
	AccessType AccessType
}

// DestinationRole is a permission level on the destination.
type DestinationRole string

// Destination roles, named by their Google Drive wire values.
const (
	RoleViewer    DestinationRole = "reader"
	RoleCommenter DestinationRole = "commenter"
	RoleEditor    DestinationRole = "writer"
)

// PermissionGrantRequest is one grant to apply on the destination.
type PermissionGrantRequest struct {
	Email string
	Role  DestinationRole
}

// TransferStatus is the lifecycle state of one file's transfer.
type TransferStatus string

// Transfer statuses. Succeeded, failed, and skipped are terminal.
const (
	StatusPending    TransferStatus = "pending"
	StatusInProgress TransferStatus = "in-progress"
	StatusSucceeded  TransferStatus = "succeeded"
	StatusFailed     TransferStatus = "failed"
	StatusSkipped    TransferStatus = "skipped"
)

// Terminal reports whether no further transitions happen from s.
func (s TransferStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// TransferRecord is the outcome of one file in one run.
type TransferRecord struct {
	Path             string
	Revision         string
	Status           TransferStatus
	Attempts         int
	LastError        string
	DestinationID    string
	PermissionErrors int
	Bytes            int64
}

// RunState is the engine's state machine position.
type RunState string

// Engine states. Completed and Aborted are terminal.
const (
	StateInitializing RunState = "initializing"
	StateEnumerating  RunState = "enumerating"
	StateMigrating    RunState = "migrating"
	StateCompleted    RunState = "completed"
	StateAborted      RunState = "aborted"
)

// FailedPath names a failed file and why.
type FailedPath struct {
	Path   string
	Reason string
}

// RunSummary is the user-facing outcome of a run.
type RunSummary struct {
	RunID      string
	State      RunState
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Counts     map[TransferStatus]int
	Failed     []FailedPath
	Records    []TransferRecord
	Bytes      int64
}

// Succeeded reports whether the run completed and every file either
// succeeded or was skipped.
func (s *RunSummary) Succeeded() bool {
	return s.State == StateCompleted && s.Counts[StatusFailed] == 0 && len(s.Failed) == 0
}

// CheckpointRecord is the durable per-path state used for resume.
type CheckpointRecord struct {
	Path          string
	Revision      string
	Status        TransferStatus
	Attempts      int
	LastError     string
	DestinationID string
	UpdatedAt     time.Time
}

// ObjectMetadata describes a file to create on the destination.
type ObjectMetadata struct {
	Name         string
	ParentID     string
	MimeType     string
	ModifiedTime time.Time
	// MD5 is the hex digest of the content, when known, for verification.
	MD5 string
}

// ProgressFunc reports cumulative bytes uploaded out of total.
type ProgressFunc func(uploaded, total int64)

// SourceLister enumerates and reads the source account.
type SourceLister interface {
	ListEntries(ctx context.Context, root string) ([]SourceEntry, error)
	FetchSharing(ctx context.Context, fileID string) (*SharingRecord, error)
	Download(ctx context.Context, path string, w io.Writer) (int64, error)
}

// DestinationStore creates containers, objects, and grants on the
// destination account.
type DestinationStore interface {
	// FindContainer looks up a non-trashed child container by exact name.
	// driveID scopes the search to a shared drive when non-empty.
	FindContainer(ctx context.Context, name, parentID, driveID string) (string, bool, error)
	CreateContainer(ctx context.Context, name, parentID string) (string, error)
	CreateObject(
		ctx context.Context, meta ObjectMetadata, content io.ReaderAt, size int64, progress ProgressFunc,
	) (string, error)
	CreatePermissionGrant(ctx context.Context, objectID, email string, role DestinationRole) error
	// RootID is the default base container when no shared root is used.
	RootID() string
}

// SharedRootFinder resolves a shared container (shared drive) by name.
type SharedRootFinder interface {
	FindSharedRoot(ctx context.Context, name string) (string, error)
}

// AccessChecker verifies credentials and returns the account identity.
type AccessChecker interface {
	CheckAccess(ctx context.Context) (string, error)
}

// CheckpointStore persists per-path records and run summaries.
type CheckpointStore interface {
	Load(ctx context.Context) (map[string]CheckpointRecord, error)
	Save(ctx context.Context, records []CheckpointRecord) error
	SaveSummary(ctx context.Context, summary *RunSummary) error
}
