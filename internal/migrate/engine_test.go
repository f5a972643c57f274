package migrate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	src         *fakeSource
	store       *fakeStore
	checkpoints *fakeCheckpoints
	observer    *recordingObserver
	sleeps      []time.Duration
}

func newEngineFixture(t *testing.T, entries ...SourceEntry) *engineFixture {
	t.Helper()

	return &engineFixture{
		src:         newFakeSource(entries...),
		store:       newFakeStore(t),
		checkpoints: newFakeCheckpoints(),
		observer:    &recordingObserver{},
	}
}

func (f *engineFixture) engine(t *testing.T, cfg EngineConfig) *Engine {
	t.Helper()

	if cfg.DestinationRoot == "" {
		cfg.DestinationRoot = "/Dropbox Migration"
	}

	if cfg.Transfer.MaxRetries == 0 {
		cfg.Transfer.MaxRetries = 3
	}

	cfg.Transfer.SpoolDir = t.TempDir()

	e := NewEngine(cfg, Deps{
		Source:      f.src,
		Destination: f.store,
		Checkpoints: f.checkpoints,
		Observer:    f.observer,
		Logger:      testLogger(t),
	})

	clock := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	e.nowFunc = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	e.sleepFunc = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	e.newRunID = func() string { return "run-1" }

	return e
}

func TestEngine_MigratesTree(t *testing.T) {
	f := newEngineFixture(t,
		entry("/a/x.txt", "r1"),
		entry("/a/b/y.txt", "r1"),
		entry("/top.txt", "r1"),
	)

	e := f.engine(t, EngineConfig{ContinueOnError: true})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, StateCompleted, e.State())
	assert.True(t, summary.Succeeded())
	assert.Equal(t, 3, summary.Counts[StatusSucceeded])
	assert.Equal(t, 3, summary.Total())
	assert.Equal(t, "run-1", summary.RunID)

	// Dropbox Migration, a, a/b
	_, creates, uploads, _ := f.store.counts()
	assert.Equal(t, 3, creates)
	assert.Equal(t, 3, uploads)

	root := f.store.folders["root/Dropbox Migration"]
	a := f.store.folders[root+"/a"]
	b := f.store.folders[a+"/b"]

	y, ok := f.store.objectByName("y.txt")
	require.True(t, ok)
	assert.Equal(t, b, y.meta.ParentID)

	top, ok := f.store.objectByName("top.txt")
	require.True(t, ok)
	assert.Equal(t, root, top.meta.ParentID)

	assert.Equal(t, []RunState{StateInitializing, StateEnumerating, StateMigrating, StateCompleted}, f.observer.states)
	assert.Equal(t, 3, f.observer.planned)
	assert.Len(t, f.observer.finished, 3)

	require.Len(t, f.checkpoints.summaries, 1)
	assert.Len(t, f.checkpoints.records, 3)
	assert.Equal(t, StatusSucceeded, f.checkpoints.records["a/b/y.txt"].Status)
}

func TestEngine_ExcludePatterns(t *testing.T) {
	f := newEngineFixture(t,
		entry("/a/x.txt", "r1"),
		entry("/a/.DS_Store", "r1"),
		entry("/a/y.tmp", "r1"),
	)

	e := f.engine(t, EngineConfig{ExcludePatterns: []string{".DS_Store", ".tmp"}})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Records, 1)
	assert.Equal(t, "/a/x.txt", summary.Records[0].Path)
}

func TestEngine_ResumeSkipsSameRevision(t *testing.T) {
	f := newEngineFixture(t, entry("/p.txt", "r1"))
	f.checkpoints = newFakeCheckpoints(CheckpointRecord{
		Path: "p.txt", Revision: "r1", Status: StatusSucceeded, DestinationID: "file-old",
	})

	e := f.engine(t, EngineConfig{Resume: true})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Records, 1)
	assert.Equal(t, StatusSkipped, summary.Records[0].Status)
	assert.Equal(t, "file-old", summary.Records[0].DestinationID)
	assert.Zero(t, f.src.downloadCount("/p.txt"))

	_, _, uploads, _ := f.store.counts()
	assert.Zero(t, uploads)
}

func TestEngine_ResumeRemigratesChangedRevision(t *testing.T) {
	f := newEngineFixture(t, entry("/p.txt", "r2"))
	f.checkpoints = newFakeCheckpoints(CheckpointRecord{
		Path: "p.txt", Revision: "r1", Status: StatusSucceeded, DestinationID: "file-old",
	})

	e := f.engine(t, EngineConfig{Resume: true})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Records, 1)
	assert.Equal(t, StatusSucceeded, summary.Records[0].Status)
	assert.Equal(t, 1, f.src.downloadCount("/p.txt"))
	assert.Equal(t, "r2", f.checkpoints.records["p.txt"].Revision)
}

func TestEngine_ResumeRetriesFailedRecord(t *testing.T) {
	f := newEngineFixture(t, entry("/p.txt", "r1"))
	f.checkpoints = newFakeCheckpoints(CheckpointRecord{Path: "p.txt", Revision: "r1", Status: StatusFailed})

	e := f.engine(t, EngineConfig{Resume: true})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, summary.Records[0].Status)
}

func TestEngine_WithoutResumeIgnoresCheckpoint(t *testing.T) {
	f := newEngineFixture(t, entry("/p.txt", "r1"))
	f.checkpoints = newFakeCheckpoints(CheckpointRecord{Path: "p.txt", Revision: "r1", Status: StatusSucceeded})

	e := f.engine(t, EngineConfig{})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, summary.Records[0].Status)
	assert.Equal(t, 1, f.src.downloadCount("/p.txt"))
}

func TestEngine_StopsOnFailureWithoutContinue(t *testing.T) {
	f := newEngineFixture(t,
		entry("/1.txt", "r1"),
		entry("/2.txt", "r1"),
		entry("/3.txt", "r1"),
	)
	f.src.permanent["/2.txt"] = errors.New("disk on fire")

	e := f.engine(t, EngineConfig{ParallelUploads: 1, ContinueOnError: false})

	summary, err := e.Run(context.Background())
	require.ErrorIs(t, err, ErrAborted)
	require.NotNil(t, summary)

	assert.Equal(t, StateAborted, summary.State)
	assert.False(t, summary.Succeeded())
	assert.Equal(t, 1, summary.Counts[StatusSucceeded])
	assert.Equal(t, 1, summary.Counts[StatusFailed])
	assert.Equal(t, 1, summary.Counts[StatusPending])
	assert.Zero(t, f.src.downloadCount("/3.txt"))
	assert.NotContains(t, f.observer.started, "/3.txt")

	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "/2.txt", summary.Failed[0].Path)
	assert.Contains(t, summary.Failed[0].Reason, "disk on fire")
}

func TestEngine_ContinuesOnFailure(t *testing.T) {
	f := newEngineFixture(t,
		entry("/1.txt", "r1"),
		entry("/2.txt", "r1"),
		entry("/3.txt", "r1"),
	)
	f.src.permanent["/2.txt"] = errors.New("disk on fire")

	e := f.engine(t, EngineConfig{ParallelUploads: 1, ContinueOnError: true})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, summary.State)
	assert.False(t, summary.Succeeded())
	assert.Equal(t, 2, summary.Counts[StatusSucceeded])
	assert.Equal(t, 1, summary.Counts[StatusFailed])
	assert.Equal(t, 3, f.src.downloadCount("/2.txt"))
}

func TestEngine_AuthFailureMidRunStops(t *testing.T) {
	f := newEngineFixture(t, entry("/1.txt", "r1"), entry("/2.txt", "r1"))
	f.src.permanent["/1.txt"] = fmt.Errorf("%w: token revoked", ErrAuthentication)

	e := f.engine(t, EngineConfig{ParallelUploads: 1, ContinueOnError: true})

	summary, err := e.Run(context.Background())
	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, StateAborted, summary.State)
	assert.Zero(t, f.src.downloadCount("/2.txt"))
}

func TestEngine_DryRunMutatesNothing(t *testing.T) {
	e1 := entry("/a/x.txt", "r1")
	e1.Sharing = &SharingRecord{IsShared: true, Grants: []Grant{{PrincipalEmail: "ed@example.com", RoleLabel: "editor"}}}

	f := newEngineFixture(t, e1, entry("/b/y.txt", "r1"))

	e := f.engine(t, EngineConfig{DryRun: true, InterFilePause: time.Second})
	e.cfg.Transfer.MigratePermissions = true

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.Counts[StatusSucceeded])

	for _, rec := range summary.Records {
		assert.Contains(t, rec.DestinationID, syntheticPrefix)
	}

	finds, creates, uploads, grants := f.store.counts()
	assert.Positive(t, finds, "dry-run still looks up the real root")
	assert.Zero(t, creates)
	assert.Zero(t, uploads)
	assert.Zero(t, grants)

	assert.Zero(t, f.src.downloadCount("/a/x.txt"))
	assert.Empty(t, f.checkpoints.records)
	assert.Empty(t, f.checkpoints.summaries)
	assert.Empty(t, f.sleeps)
}

func TestEngine_TestModeUsesTestFolder(t *testing.T) {
	f := newEngineFixture(t, entry("/other.txt", "r1"))
	f.src.listings["/test"] = []SourceEntry{
		entry("/test/1.txt", "r1"),
		entry("/test/2.txt", "r1"),
		entry("/test/3.txt", "r1"),
	}
	for _, e := range f.src.listings["/test"] {
		f.src.content[e.Path] = "content of " + e.Path
	}

	e := f.engine(t, EngineConfig{TestMode: true, TestFolder: "/test", TestLimit: 2})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"/test/1.txt", "/test/2.txt"}, recordPaths(summary.Records))
}

func TestEngine_TestModeFallsBackToRoot(t *testing.T) {
	f := newEngineFixture(t, entry("/1.txt", "r1"), entry("/2.txt", "r1"))

	e := f.engine(t, EngineConfig{TestMode: true, TestFolder: "/missing", TestLimit: 1})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/1.txt"}, recordPaths(summary.Records))
}

func TestEngine_SharedDrive(t *testing.T) {
	f := newEngineFixture(t, entry("/a.txt", "r1"))
	f.store.sharedRoots["Team"] = "drive-9"

	e := f.engine(t, EngineConfig{UseSharedDrive: true, SharedDriveName: "Team"})

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, f.store.folders["drive-9/Dropbox Migration"])
}

func TestEngine_SharedDriveMissingIsFatal(t *testing.T) {
	f := newEngineFixture(t, entry("/a.txt", "r1"))

	e := f.engine(t, EngineConfig{UseSharedDrive: true, SharedDriveName: "Nope"})

	summary, err := e.Run(context.Background())
	require.ErrorIs(t, err, ErrDestinationStructure)
	assert.Nil(t, summary)
	assert.Equal(t, StateInitializing, e.State())
}

func TestEngine_AccessFailureIsFatal(t *testing.T) {
	f := newEngineFixture(t, entry("/a.txt", "r1"))
	f.src.accessErr = errors.New("invalid_access_token")

	e := f.engine(t, EngineConfig{})

	summary, err := e.Run(context.Background())
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Nil(t, summary)

	_, creates, _, _ := f.store.counts()
	assert.Zero(t, creates)
}

func TestEngine_ListingFailureIsFatal(t *testing.T) {
	f := newEngineFixture(t)
	f.src.listErr[""] = errors.New("listing exploded")

	e := f.engine(t, EngineConfig{})

	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing exploded")
	assert.Equal(t, StateEnumerating, e.State())
}

func TestEngine_FetchesSharingWhenMissing(t *testing.T) {
	e1 := entry("/a.txt", "r1")
	f := newEngineFixture(t, e1)
	f.src.sharing[e1.ID] = &SharingRecord{IsShared: true, Grants: []Grant{
		{PrincipalEmail: "v@example.com", SourceRole: SourceViewer, RoleLabel: "viewer"},
	}}

	e := f.engine(t, EngineConfig{})
	e.cfg.Transfer.MigratePermissions = true

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.src.sharingFetches)
	require.Len(t, f.store.grants, 1)
	assert.Equal(t, RoleViewer, f.store.grants[0].Role)
}

func TestEngine_InterFilePause(t *testing.T) {
	f := newEngineFixture(t, entry("/1.txt", "r1"), entry("/2.txt", "r1"))

	e := f.engine(t, EngineConfig{ParallelUploads: 1, InterFilePause: 250 * time.Millisecond})

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, f.sleeps)
}

func TestEngine_CanceledBeforeMigrating(t *testing.T) {
	f := newEngineFixture(t, entry("/1.txt", "r1"))

	ctx, cancel := context.WithCancel(context.Background())

	e := f.engine(t, EngineConfig{})
	f.observer = &recordingObserver{}
	e.observer = cancelOnState{Observer: f.observer, state: StateMigrating, cancel: cancel}

	summary, err := e.Run(ctx)
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, StateAborted, summary.State)
	assert.Equal(t, 1, summary.Counts[StatusPending])
	require.Len(t, f.checkpoints.summaries, 1, "summary persisted despite cancellation")
}

func TestEngine_CanceledDuringTransfer(t *testing.T) {
	f := newEngineFixture(t,
		entry("/1.txt", "r1"),
		entry("/2.txt", "r1"),
		entry("/3.txt", "r1"),
	)
	f.src.blocking["/1.txt"] = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-f.src.started
		cancel()
	}()

	e := f.engine(t, EngineConfig{ParallelUploads: 1, ContinueOnError: true})

	summary, err := e.Run(ctx)
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, StateAborted, summary.State)
	require.Len(t, summary.Records, 1)
	assert.Equal(t, "/1.txt", summary.Records[0].Path)
	assert.True(t, summary.Records[0].Status.Terminal())
	assert.Equal(t, 2, summary.Counts[StatusPending])

	assert.Zero(t, f.src.downloadCount("/2.txt"))
	assert.Zero(t, f.src.downloadCount("/3.txt"))
	assert.Equal(t, []string{"/1.txt"}, f.observer.started)

	cp, ok := f.checkpoints.records["1.txt"]
	require.True(t, ok, "in-flight unit checkpointed")
	assert.Equal(t, StatusFailed, cp.Status)
	assert.NotContains(t, f.checkpoints.records, "2.txt")
	require.Len(t, f.checkpoints.summaries, 1)
	assert.Equal(t, StateAborted, f.checkpoints.summaries[0].State)
}

func TestEngine_FolderFailureUsesRetryBudget(t *testing.T) {
	f := newEngineFixture(t, entry("/a/x.txt", "r1"))
	f.store.createFailures["a"] = 1

	e := f.engine(t, EngineConfig{ContinueOnError: false})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, summary.State)
	require.Len(t, summary.Records, 1)
	assert.Equal(t, StatusSucceeded, summary.Records[0].Status)
	assert.Equal(t, 2, summary.Records[0].Attempts)
	assert.Equal(t, 2, f.checkpoints.records["a/x.txt"].Attempts)
}

func TestEngine_FolderFailureExhaustsRetries(t *testing.T) {
	f := newEngineFixture(t, entry("/a/x.txt", "r1"))
	f.store.createFailures["a"] = 10

	e := f.engine(t, EngineConfig{ContinueOnError: false})

	summary, err := e.Run(context.Background())
	require.ErrorIs(t, err, ErrAborted)

	require.Len(t, summary.Records, 1)
	rec := summary.Records[0]
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, 3, rec.Attempts)
	assert.Contains(t, rec.LastError, `resolving folder "a"`)
	assert.Zero(t, f.src.downloadCount("/a/x.txt"))
}

func TestEngine_RunAgainAfterAbort(t *testing.T) {
	f := newEngineFixture(t, entry("/1.txt", "r1"), entry("/2.txt", "r1"))
	f.src.permanent["/1.txt"] = errors.New("disk on fire")

	e := f.engine(t, EngineConfig{ParallelUploads: 1})

	summary, err := e.Run(context.Background())
	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, StateAborted, summary.State)

	delete(f.src.permanent, "/1.txt")

	summary, err = e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, 2, summary.Counts[StatusSucceeded])
}

func TestEngine_ParallelSharesFolders(t *testing.T) {
	var entries []SourceEntry
	for i := range 20 {
		entries = append(entries, entry(fmt.Sprintf("/shared/dir/%02d.txt", i), "r1"))
	}

	f := newEngineFixture(t, entries...)
	f.store.createDelay = 5 * time.Millisecond

	e := f.engine(t, EngineConfig{ParallelUploads: 8})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, summary.Counts[StatusSucceeded])

	// Dropbox Migration, shared, dir
	_, creates, _, _ := f.store.counts()
	assert.Equal(t, 3, creates)
}

// cancelOnState cancels the run when the engine enters state.
type cancelOnState struct {
	Observer
	state  RunState
	cancel context.CancelFunc
}

func (c cancelOnState) StateChanged(s RunState) {
	c.Observer.StateChanged(s)

	if s == c.state {
		c.cancel()
	}
}

func recordPaths(records []TransferRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Path)
	}

	return out
}
