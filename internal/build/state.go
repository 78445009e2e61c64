package build

import "fmt"

// LifecycleState is the managed progress of a build through deployment.
type LifecycleState string

const (
	StateNew       LifecycleState = "NEW"
	StateDeploying LifecycleState = "DEPLOYING"
	StateStarted   LifecycleState = "STARTED"
	StateStopping  LifecycleState = "STOPPING"
	StateStopped   LifecycleState = "STOPPED"
	StateDropping  LifecycleState = "DROPPING"
	StateDropped   LifecycleState = "DROPPED"
	StateFailed    LifecycleState = "FAILED"
)

// AllStates lists every lifecycle state in state machine order.
var AllStates = []LifecycleState{
	StateNew,
	StateDeploying,
	StateStarted,
	StateStopping,
	StateStopped,
	StateDropping,
	StateDropped,
	StateFailed,
}

// transitions is the complete edge set of the lifecycle state machine.
var transitions = map[LifecycleState][]LifecycleState{
	// NEW -> DROPPING covers a build closed before it was ever deployed.
	StateNew:       {StateDeploying, StateDropping},
	StateDeploying: {StateStarted, StateFailed},
	StateStarted:   {StateStopping, StateDeploying},
	StateStopping:  {StateStopped, StateFailed},
	StateStopped:   {StateDeploying, StateDropping},
	StateDropping:  {StateDropped},
	StateFailed:    {StateDropping, StateDeploying},
	StateDropped:   nil,
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to LifecycleState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known lifecycle state.
func (s LifecycleState) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// TransitionError is returned when a build is asked to take an edge that is
// not part of the state machine. It always indicates a programming defect.
type TransitionError struct {
	ID   string
	From LifecycleState
	To   LifecycleState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("build %s: illegal lifecycle transition %s -> %s", e.ID, e.From, e.To)
}
