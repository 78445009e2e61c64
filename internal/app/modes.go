package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"runboat/pkg/logging"
)

// shutdownTimeout bounds the graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

// runController starts every service and blocks until ctx is cancelled or
// SIGINT/SIGTERM is received, then shuts down in reverse order.
func runController(ctx context.Context, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := services.Start(ctx); err != nil {
		return err
	}
	logging.Info("Bootstrap", "Controller running. Press Ctrl+C to stop.")

	<-ctx.Done()
	logging.Info("Bootstrap", "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return services.Stop(shutdownCtx)
}

// Start brings the services up: control loop first, so the API never
// reports a stopped controller, then the watchers and the API.
func (s *Services) Start(ctx context.Context) error {
	s.EventGenerator.Start()
	if err := s.Manager.Start(ctx); err != nil {
		s.EventGenerator.Stop()
		return err
	}

	if s.Watcher != nil {
		if err := s.Watcher.Start(ctx, func(string) { s.Manager.Trigger() }); err != nil {
			// Periodic passes still converge without change notifications.
			logging.Warn("Bootstrap", "Deployment watcher unavailable, relying on periodic passes: %v", err)
		}
	}

	if s.ConfigWatcher != nil {
		if err := s.ConfigWatcher.Start(); err != nil {
			logging.Warn("Bootstrap", "Configuration reload disabled: %v", err)
		}
	}

	if err := s.API.Start(); err != nil {
		_ = s.Manager.Stop()
		s.EventGenerator.Stop()
		return fmt.Errorf("failed to start API server: %w", err)
	}
	return nil
}

// Stop shuts the services down in reverse start order.
func (s *Services) Stop(ctx context.Context) error {
	var firstErr error
	if err := s.API.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if s.ConfigWatcher != nil {
		s.ConfigWatcher.Stop()
	}
	if s.Watcher != nil {
		s.Watcher.Stop()
	}
	if err := s.Manager.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.EventGenerator.Stop()
	return firstErr
}
