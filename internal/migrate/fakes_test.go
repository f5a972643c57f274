package migrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(bytes.TrimRight(p, "\n")))

	return len(p), nil
}

// fakeSource is an in-memory SourceLister.
type fakeSource struct {
	mu sync.Mutex

	// entries by listing root; "" holds the default listing.
	listings map[string][]SourceEntry
	listErr  map[string]error
	content  map[string]string
	sharing  map[string]*SharingRecord

	// failures makes the next n downloads of a path fail with failErr.
	failures map[string]int
	failErr  error
	// permanent makes every download of a path fail with the given error.
	permanent map[string]error
	// blocking paths signal on started, then wait for ctx to end.
	blocking map[string]bool
	started  chan string

	downloads      map[string]int
	sharingFetches int
	account        string
	accessErr      error
}

func newFakeSource(entries ...SourceEntry) *fakeSource {
	s := &fakeSource{
		listings:  map[string][]SourceEntry{},
		listErr:   map[string]error{},
		content:   map[string]string{},
		sharing:   map[string]*SharingRecord{},
		failures:  map[string]int{},
		permanent: map[string]error{},
		blocking:  map[string]bool{},
		started:   make(chan string, 8),
		downloads: map[string]int{},
		failErr:   fmt.Errorf("%w: connection reset", ErrTransient),
		account:   "source@example.com",
	}

	s.listings[""] = entries
	for _, e := range entries {
		s.content[e.Path] = "content of " + e.Path
	}

	return s
}

func (s *fakeSource) ListEntries(_ context.Context, root string) ([]SourceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.listErr[root]; err != nil {
		return nil, err
	}

	entries, ok := s.listings[root]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, root)
	}

	return append([]SourceEntry(nil), entries...), nil
}

func (s *fakeSource) FetchSharing(_ context.Context, fileID string) (*SharingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sharingFetches++

	if rec, ok := s.sharing[fileID]; ok {
		return rec, nil
	}

	return &SharingRecord{}, nil
}

func (s *fakeSource) Download(ctx context.Context, p string, w io.Writer) (int64, error) {
	s.mu.Lock()
	s.downloads[p]++

	if s.blocking[p] {
		s.mu.Unlock()
		s.started <- p
		<-ctx.Done()

		return 0, ctx.Err()
	}

	if err := s.permanent[p]; err != nil {
		s.mu.Unlock()
		return 0, err
	}

	if s.failures[p] > 0 {
		s.failures[p]--
		s.mu.Unlock()

		return 0, s.failErr
	}

	data, ok := s.content[p]
	s.mu.Unlock()

	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	n, err := io.WriteString(w, data)

	return int64(n), err
}

func (s *fakeSource) CheckAccess(context.Context) (string, error) {
	return s.account, s.accessErr
}

func (s *fakeSource) downloadCount(p string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.downloads[p]
}

// fakeObject is an uploaded file held by fakeStore.
type fakeObject struct {
	meta ObjectMetadata
	data []byte
}

type fakeGrant struct {
	ObjectID string
	Email    string
	Role     DestinationRole
}

// fakeStore is an in-memory DestinationStore. It fails any create whose
// parent it never issued, so tests catch orphaned containers.
type fakeStore struct {
	t *testing.T

	mu         sync.Mutex
	rootID     string
	seq        int
	known      map[string]bool
	folders    map[string]string // parentID + "/" + name -> id
	objects    map[string]fakeObject
	grants     []fakeGrant
	finds      int
	creates    int
	uploads    int
	findDrives []string

	// createDelay slows CreateContainer to widen race windows.
	createDelay time.Duration
	grantErr    map[string]error
	uploadErr   error
	sharedRoots map[string]string

	// createFailures fails the next n CreateContainer calls for a name.
	createFailures map[string]int
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()

	return &fakeStore{
		t:           t,
		rootID:      "root",
		known:       map[string]bool{"root": true},
		folders:     map[string]string{},
		objects:     map[string]fakeObject{},
		grantErr:    map[string]error{},
		sharedRoots: map[string]string{},

		createFailures: map[string]int{},
	}
}

func (f *fakeStore) FindContainer(_ context.Context, name, parentID, driveID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.finds++
	f.findDrives = append(f.findDrives, driveID)

	id, ok := f.folders[parentID+"/"+name]

	return id, ok, nil
}

func (f *fakeStore) CreateContainer(_ context.Context, name, parentID string) (string, error) {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createFailures[name] > 0 {
		f.createFailures[name]--
		return "", fmt.Errorf("%w: 503 backend error", ErrTransient)
	}

	if !f.known[parentID] {
		f.t.Errorf("CreateContainer(%q) under unknown parent %q", name, parentID)
		return "", errors.New("unknown parent")
	}

	key := parentID + "/" + name
	if _, dup := f.folders[key]; dup {
		f.t.Errorf("duplicate container %q", key)
	}

	f.creates++
	f.seq++
	id := fmt.Sprintf("folder-%d", f.seq)
	f.folders[key] = id
	f.known[id] = true

	return id, nil
}

func (f *fakeStore) CreateObject(
	_ context.Context, meta ObjectMetadata, content io.ReaderAt, size int64, progress ProgressFunc,
) (string, error) {
	data, err := io.ReadAll(io.NewSectionReader(content, 0, size))
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.uploadErr != nil {
		return "", f.uploadErr
	}

	if !f.known[meta.ParentID] {
		f.t.Errorf("CreateObject(%q) under unknown parent %q", meta.Name, meta.ParentID)
		return "", errors.New("unknown parent")
	}

	f.uploads++
	f.seq++
	id := fmt.Sprintf("file-%d", f.seq)
	f.objects[id] = fakeObject{meta: meta, data: data}

	if progress != nil {
		progress(size, size)
	}

	return id, nil
}

func (f *fakeStore) CreatePermissionGrant(_ context.Context, objectID, email string, role DestinationRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.grantErr[email]; err != nil {
		return err
	}

	f.grants = append(f.grants, fakeGrant{ObjectID: objectID, Email: email, Role: role})

	return nil
}

func (f *fakeStore) RootID() string {
	return f.rootID
}

func (f *fakeStore) FindSharedRoot(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.sharedRoots[name]
	if !ok {
		return "", fmt.Errorf("%w: shared drive %q", ErrNotFound, name)
	}

	f.known[id] = true

	return id, nil
}

func (f *fakeStore) CheckAccess(context.Context) (string, error) {
	return "dest@example.com", nil
}

// objectByName returns the single uploaded object with the given name.
func (f *fakeStore) objectByName(name string) (fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, o := range f.objects {
		if o.meta.Name == name {
			return o, true
		}
	}

	return fakeObject{}, false
}

func (f *fakeStore) counts() (finds, creates, uploads, grants int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.finds, f.creates, f.uploads, len(f.grants)
}

// fakeCheckpoints is an in-memory CheckpointStore.
type fakeCheckpoints struct {
	mu        sync.Mutex
	records   map[string]CheckpointRecord
	summaries []*RunSummary
	saves     int
}

func newFakeCheckpoints(records ...CheckpointRecord) *fakeCheckpoints {
	c := &fakeCheckpoints{records: map[string]CheckpointRecord{}}
	for _, r := range records {
		c.records[r.Path] = r
	}

	return c
}

func (c *fakeCheckpoints) Load(context.Context) (map[string]CheckpointRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]CheckpointRecord, len(c.records))
	for k, v := range c.records {
		out[k] = v
	}

	return out, nil
}

func (c *fakeCheckpoints) Save(_ context.Context, records []CheckpointRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.saves++

	for _, r := range records {
		c.records[r.Path] = r
	}

	return nil
}

func (c *fakeCheckpoints) SaveSummary(_ context.Context, s *RunSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.summaries = append(c.summaries, s)

	return nil
}

// recordingObserver captures events for assertions.
type recordingObserver struct {
	mu       sync.Mutex
	states   []RunState
	planned  int
	started  []string
	finished []TransferRecord
}

func (o *recordingObserver) StateChanged(s RunState) {
	o.mu.Lock()
	o.states = append(o.states, s)
	o.mu.Unlock()
}

func (o *recordingObserver) EntriesPlanned(files int, _ int64) {
	o.mu.Lock()
	o.planned = files
	o.mu.Unlock()
}

func (o *recordingObserver) TransferStarted(p string, _ int64) {
	o.mu.Lock()
	o.started = append(o.started, p)
	o.mu.Unlock()
}

func (o *recordingObserver) UploadProgress(string, int64, int64) {}

func (o *recordingObserver) TransferFinished(rec TransferRecord) {
	o.mu.Lock()
	o.finished = append(o.finished, rec)
	o.mu.Unlock()
}

func entry(p, rev string) SourceEntry {
	return SourceEntry{ID: "id:" + p, Path: p, Size: int64(len("content of " + p)), Revision: rev}
}
