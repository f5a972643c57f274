package main

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"
)

// Signal tests share the process, so they do not run in parallel.

func TestShutdownContext_FirstSignalCancelsSecondForcesExit(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	forced := make(chan struct{})
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx := shutdownContextWith(parent, logger, func() { close(forced) })

	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("failed to send SIGINT: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of SIGINT")
	}

	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("failed to send second SIGINT: %v", err)
	}

	select {
	case <-forced:
	case <-time.After(2 * time.Second):
		t.Fatal("second SIGINT did not force exit")
	}
}

func TestShutdownContext_ParentCancelStopsGoroutine(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx := shutdownContextWith(parent, logger, func() { t.Error("unexpected forced exit") })

	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of parent cancel")
	}
}
