package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// forcedExitCode is used when a second signal interrupts a draining run.
const forcedExitCode = 130

// shutdownContext cancels on the first SIGINT/SIGTERM so the engine stops
// scheduling files and saves its checkpoint. A second signal exits
// immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	return shutdownContextWith(parent, logger, func() { os.Exit(forcedExitCode) })
}

func shutdownContextWith(parent context.Context, logger *slog.Logger, forceExit func()) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Warn("interrupt received, finishing in-flight transfers (repeat to force exit)",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Error("second interrupt, exiting without saving progress",
				slog.String("signal", sig.String()),
			)
			forceExit()
		case <-parent.Done():
			return
		}
	}()

	return ctx
}
