// Command server boots the Gliksbot collaboration orchestrator: it
// loads Config from the environment, wires the runtime via app.New, and
// serves the HTTP surface until an interrupt or SIGTERM triggers a
// graceful shutdown.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gliksbot/gliksbot/app"
	"github.com/Gliksbot/gliksbot/config"
)

// Exit codes per spec.md §6.
const (
	exitOK          = 0
	exitConfigError = 64
	exitBindFailed  = 69
	exitInternal    = 70
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		return exitConfigError
	}

	logger := newServerLogger(serverLogOutput, cfg)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("new app", slog.Any("error", err))
		return exitConfigError
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- application.Start()
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrCh:
		if err != nil {
			logger.Error("server exited", slog.Any("error", err))
			var netErr *net.OpError
			if errors.As(err, &netErr) {
				return exitBindFailed
			}
			return exitInternal
		}
		return exitOK
	case <-sigCtx.Done():
	}

	logger.Info("shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown server", slog.Any("error", err))
		return exitInternal
	}

	if err := <-serverErrCh; err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		return exitInternal
	}
	return exitOK
}
