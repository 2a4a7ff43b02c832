package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// exitFunc is replaced in tests.
var exitFunc = os.Exit

// shutdownContext is canceled by the first SIGINT or SIGTERM, letting serve
// drain open requests. A second signal exits the process at once.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go watchSignals(parent, ctx, cancel, signals, logger)

	return ctx
}

func watchSignals(
	parent, ctx context.Context, cancel context.CancelFunc,
	signals chan os.Signal, logger *slog.Logger,
) {
	defer signal.Stop(signals)

	select {
	case <-ctx.Done():
		return
	case sig := <-signals:
		logger.Info("shutting down", slog.String("signal", sig.String()))
		cancel()
	}

	select {
	case <-parent.Done():
	case sig := <-signals:
		logger.Warn("second signal, exiting without drain", slog.String("signal", sig.String()))
		exitFunc(1)
	}
}
