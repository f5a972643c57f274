package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/drive-migrate/internal/checkpoint"
	"github.com/tonimelisma/drive-migrate/internal/config"
	"github.com/tonimelisma/drive-migrate/internal/migrate"
	"github.com/tonimelisma/drive-migrate/internal/tokenfile"
)

func TestAccountStatus(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	missing, err := accountStatus("dropbox", filepath.Join(dir, "none.json"), now)
	require.NoError(t, err)
	assert.Equal(t, statusAccount{Provider: "dropbox", TokenState: tokenStateMissing}, missing)

	refreshable := filepath.Join(dir, "google.json")
	require.NoError(t, tokenfile.Save(refreshable, &tokenfile.File{
		Provider: "google",
		Token:    &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: now.Add(-time.Hour)},
		Account:  &tokenfile.Account{Email: "me@example.com", DisplayName: "Me"},
	}))

	got, err := accountStatus("google", refreshable, now)
	require.NoError(t, err)
	assert.Equal(t, tokenStateValid, got.TokenState)
	assert.Equal(t, "me@example.com", got.Email)

	expired := filepath.Join(dir, "dropbox.json")
	require.NoError(t, tokenfile.Save(expired, &tokenfile.File{
		Provider: "dropbox",
		Token:    &oauth2.Token{AccessToken: "a", Expiry: now.Add(-time.Minute)},
	}))

	got, err = accountStatus("dropbox", expired, now)
	require.NoError(t, err)
	assert.Equal(t, tokenStateExpired, got.TokenState)
}

func testSummary() *migrate.RunSummary {
	start := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	return &migrate.RunSummary{
		RunID:      "run-1",
		State:      migrate.StateCompleted,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Counts: map[migrate.TransferStatus]int{
			migrate.StatusSucceeded: 4,
			migrate.StatusSkipped:   1,
			migrate.StatusFailed:    1,
		},
		Failed: []migrate.FailedPath{{Path: "/docs/broken.pdf", Reason: "HTTP 500"}},
		Bytes:  2_000_000,
	}
}

func TestNewSummaryOutput(t *testing.T) {
	out := newSummaryOutput(testSummary())

	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, "completed", out.State)
	assert.Equal(t, 4, out.Counts["succeeded"])
	assert.Equal(t, []failedOutput{{Path: "/docs/broken.pdf", Reason: "HTTP 500"}}, out.Failed)
	assert.False(t, out.Succeeded)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer

	printSummary(&buf, testSummary())

	assert.Equal(t, "Migration completed in 1m30s\n"+
		"  succeeded 4, skipped 1, failed 1, pending 0 (2.0 MB transferred)\n"+
		"Failed:\n"+
		"  /docs/broken.pdf: HTTP 500\n", buf.String())
}

func TestPrintCounts_TruncatesFailedList(t *testing.T) {
	s := testSummary()
	s.Failed = nil

	for i := range maxFailedShown + 5 {
		s.Failed = append(s.Failed, migrate.FailedPath{Path: "/f" + string(rune('a'+i)), Reason: "x"})
	}

	var buf bytes.Buffer

	out := newSummaryOutput(s)
	printCounts(&buf, &out)

	assert.Contains(t, buf.String(), "... and 5 more")
}

func TestRunStatus_ReadsCheckpointWhileLocked(t *testing.T) {
	cc := testCLIContext(t)
	ctx := context.Background()

	store, err := checkpoint.Open(ctx, config.CheckpointPath(cc.Cfg.DataDir), cc.Logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Save(ctx, []migrate.CheckpointRecord{
		{Path: "/a", Revision: "1", Status: migrate.StatusSucceeded},
		{Path: "/b", Revision: "1", Status: migrate.StatusFailed},
	}))
	require.NoError(t, store.SaveSummary(ctx, testSummary()))

	cmd := newStatusCmd()
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	require.NoError(t, runStatus(cmd, nil))
}

func TestPrintStatus(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	last := newSummaryOutput(testSummary())

	out := &statusOutput{
		Accounts: []statusAccount{
			{Provider: "dropbox", TokenState: tokenStateValid, Email: "a@example.com"},
			{Provider: "google", TokenState: tokenStateMissing},
		},
		Checkpoint: map[string]int{"succeeded": 4, "failed": 1},
		LastRun:    &last,
	}

	var buf bytes.Buffer

	printStatus(&buf, out, now)

	text := buf.String()
	assert.Contains(t, text, "dropbox  valid    a@example.com")
	assert.Contains(t, text, "google   missing  -")
	assert.Contains(t, text, "  failed       1\n  succeeded    4\n")
	assert.Contains(t, text, "Last run: completed")
	assert.Contains(t, text, "hours ago")
}
