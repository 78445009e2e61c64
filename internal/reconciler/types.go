package reconciler

import (
	"errors"
	"time"

	"runboat/internal/build"
	"runboat/internal/scheduler"
)

var (
	// ErrNotRunning is returned by operations that need a started manager.
	ErrNotRunning = errors.New("reconcile manager is not running")

	// ErrNotFailed is returned when retrying a build that is not FAILED.
	ErrNotFailed = errors.New("build is not in FAILED state")
)

// ManagerConfig holds configuration for the Manager.
type ManagerConfig struct {
	// Interval between periodic passes. Defaults to 5 seconds.
	Interval time.Duration

	// WorkerCount is the number of builds reconciled concurrently.
	// Defaults to 4.
	WorkerCount int

	// GatewayTimeout bounds every cluster gateway call. A call exceeding it
	// is a transient failure. Defaults to 30 seconds.
	GatewayTimeout time.Duration

	// DeployTimeout fails builds that stay DEPLOYING for longer than this.
	// Zero disables the timeout.
	DeployTimeout time.Duration

	// Limits are the scheduler budget and timeouts.
	Limits scheduler.Limits

	// Now is the clock used for timestamps and scheduling. Defaults to time.Now.
	Now func() time.Time

	// OnTransition, when set, is called after every recorded lifecycle
	// transition.
	OnTransition TransitionObserver

	// Metrics receives pass, transition and gateway metrics. Optional.
	Metrics *Metrics
}

// TransitionObserver is notified of lifecycle transitions.
type TransitionObserver func(id string, from, to build.LifecycleState)

// PassResult summarises one reconciliation pass.
type PassResult struct {
	// ID correlates log lines of one pass.
	ID string `json:"id"`

	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	// Events is the number of events drained into the resolver.
	Events int `json:"events"`

	// Processed is the number of builds handed to the lifecycle reconciler.
	Processed int `json:"processed"`

	Admitted []string `json:"admitted,omitempty"`
	Stopped  []string `json:"stopped,omitempty"`
	Dropped  []string `json:"dropped,omitempty"`
	Held     []string `json:"held,omitempty"`

	// Pending counts wanted builds still waiting for a budget slot.
	Pending int `json:"pending"`

	// Failed maps build ids to the error their unit of work ended with.
	Failed map[string]string `json:"failed,omitempty"`

	// States counts builds per lifecycle state once the pass completed.
	States map[build.LifecycleState]int `json:"states"`
}

// task is one unit of per-build work within a pass.
type task struct {
	ID       string
	Decision scheduler.Decision
}
