package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drive-migrate/internal/migrate"
)

func TestProgressObserver_TracksBytesAcrossOutcomes(t *testing.T) {
	var buf bytes.Buffer

	p := newProgressObserver(&buf)
	p.StateChanged(migrate.StateEnumerating)
	p.EntriesPlanned(3, 300)
	require.NotNil(t, p.bar)

	p.TransferStarted("/a", 100)
	p.UploadProgress("/a", 40, 100)
	p.UploadProgress("/a", 100, 100)
	p.TransferFinished(migrate.TransferRecord{Path: "/a", Status: migrate.StatusSucceeded, Bytes: 100})
	assert.Equal(t, int64(100), p.bar.State().CurrentNum)

	// A retried upload restarts at zero; the bar must not count bytes twice.
	p.TransferStarted("/b", 100)
	p.UploadProgress("/b", 60, 100)
	p.UploadProgress("/b", 20, 100)
	p.UploadProgress("/b", 100, 100)
	p.TransferFinished(migrate.TransferRecord{Path: "/b", Status: migrate.StatusSucceeded, Bytes: 100})
	assert.Equal(t, int64(200), p.bar.State().CurrentNum)

	p.TransferStarted("/c", 100)
	p.UploadProgress("/c", 10, 100)
	p.TransferFinished(migrate.TransferRecord{Path: "/c", Status: migrate.StatusFailed})
	assert.Equal(t, int64(300), p.bar.State().CurrentNum)

	assert.Equal(t, "[3/3, 1 failed]", p.describe())
	assert.Empty(t, p.sizes)
	assert.Empty(t, p.uploaded)

	p.StateChanged(migrate.StateCompleted)
}

func TestProgressObserver_EventsBeforePlanAreIgnored(t *testing.T) {
	p := newProgressObserver(&bytes.Buffer{})

	assert.NotPanics(t, func() {
		p.TransferStarted("/x", 10)
		p.UploadProgress("/x", 5, 10)
		p.TransferFinished(migrate.TransferRecord{Path: "/x", Status: migrate.StatusSkipped})
		p.StateChanged(migrate.StateAborted)
	})

	assert.Equal(t, "[1/0]", p.describe())
}
