// Package reconciler drives every build toward its desired state.
//
// # Overview
//
// The reconciler owns the control loop of runboat. On a fixed interval, and
// whenever an external trigger asks for it, the Manager runs a reconciliation
// pass:
//
//  1. Drain the bounded event queue into the desired-state resolver
//  2. Snapshot the build registry
//  3. Ask the scheduler for a plan (admissions, evictions, idle stops, drops)
//  4. Hand every build needing work to the Lifecycle reconciler, fanned out
//     over a fixed number of workers
//
// The system is level-triggered: a pass re-derives everything from registry
// content and cluster observations, so a missed or duplicated event is
// corrected by the next pass.
//
// # Concurrency
//
// Passes never overlap. Within a pass each build id is queued exactly once
// and processed by a single worker, so actions against the same cluster
// resources are serialized without a global lock. Builds with different ids
// are processed concurrently up to the configured worker count.
//
// Gateway calls run on a context detached from the manager's cancellation and
// bounded by the gateway timeout. Stop therefore never aborts a cluster
// mutation half way; it waits for in-flight actions and skips the rest.
//
// # Usage
//
//	manager := reconciler.NewManager(cfg, reg, res, events, gateway)
//	if err := manager.Start(ctx); err != nil {
//	    return fmt.Errorf("failed to start reconciliation: %w", err)
//	}
//	defer manager.Stop()
//
// # Failure isolation
//
// A failing build never aborts a pass. Transient gateway errors leave the
// build in place with LastError set; terminal errors move it to FAILED. The
// pass result lists the failed subset.
package reconciler
