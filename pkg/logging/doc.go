// Package logging provides runboat's structured logging on top of log/slog.
//
// Every log line carries a subsystem attribute naming the component that
// produced it (ReconcileManager, Lifecycle, Scheduler, Resolver, Registry,
// KubernetesGateway, APIServer, ConfigWatcher, Bootstrap, ...).
//
// Initialise once at startup, then log through the package functions:
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stdout)
//
//	logging.Info("Bootstrap", "Loaded configuration from %s", path)
//	logging.Warn("Lifecycle", "Transient failure for %s: %v", id, err)
//	logging.Error("ReconcileManager", err, "Pass %s failed", passID)
//
// Init also routes controller-runtime's logr output through the same
// handler, so informer and client logs share the format and level.
//
// Logging before Init is a silent no-op, which keeps package tests quiet.
package logging
