// Package app wires the runboat controller together.
//
// NewApplication loads the configuration file, initializes logging and
// builds the services:
//
//   - the build registry, the desired-state resolver and its event queue
//   - the cluster gateway: Kubernetes by default, in-memory with --local
//   - the reconcile manager running the control loop
//   - the HTTP API (webhooks, build queries, metrics)
//   - the configuration watcher that reloads repositories and limits
//
// Run starts them and blocks until the context is cancelled or SIGINT or
// SIGTERM is received.
//
//	cfg := app.NewConfig(false, true, "runboat.yaml")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
package app
