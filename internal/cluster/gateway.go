// Package cluster defines the contract between the reconciliation controller
// and the container-orchestration platform, plus an in-memory implementation
// used for local runs and tests.
package cluster

import (
	"context"
	"errors"
)

// Status is the observed state of a build's workloads.
type Status string

const (
	// StatusReady means all workloads are running and ready.
	StatusReady Status = "ready"

	// StatusPending means workloads exist but are not ready yet (or are
	// still scaling down).
	StatusPending Status = "pending"

	// StatusStopped means workloads exist and are scaled to zero.
	StatusStopped Status = "stopped"

	// StatusAbsent means no resources of the build exist.
	StatusAbsent Status = "absent"

	// StatusError means the platform reports a failure that will not heal
	// without a new deployment (e.g. a progress deadline was exceeded).
	StatusError Status = "error"
)

// Observation is the result of a status fetch.
type Observation struct {
	Status  Status
	Message string
}

// BuildSpec is everything needed to render the workloads of one build.
type BuildSpec struct {
	ID         string
	Repo       string
	Ref        string
	Target     string
	Commit     string
	Generation int64

	// Replicas is 1 for a running build and 0 for a stopped one.
	Replicas int32
}

// Gateway is the set of cluster operations the controller calls.
// Every operation must be safe to repeat.
type Gateway interface {
	// ApplyBuild creates or updates the workloads of a build.
	ApplyBuild(ctx context.Context, id string, spec BuildSpec) error

	// DeleteBuild removes every resource of a build. Deleting an absent
	// build succeeds.
	DeleteBuild(ctx context.Context, id string) error

	// GetStatus observes the current state of a build's workloads.
	GetStatus(ctx context.Context, id string) (Observation, error)
}

// Initializer is implemented by gateways that need to verify their
// connection before the controller starts.
type Initializer interface {
	Init(ctx context.Context) error
}

// TerminalError marks a failure that retrying the same request cannot fix,
// such as an invalid or unschedulable workload spec.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string {
	return e.Err.Error()
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Terminal marks err as terminal. A nil error stays nil.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// IsTerminal reports whether err (or anything it wraps) is terminal.
// Every other error is treated as transient.
func IsTerminal(err error) bool {
	var terminal *TerminalError
	return errors.As(err, &terminal)
}
