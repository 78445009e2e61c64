package cluster

import (
	"context"
	"fmt"
	"sync"
)

// MemoryGateway is an in-memory Gateway. Applied builds report ready
// immediately (or stopped when applied with zero replicas) and deleted
// builds report absent. Failures can be injected per operation.
type MemoryGateway struct {
	mu sync.Mutex

	builds map[string]BuildSpec

	// statusOverride forces GetStatus results per build id.
	statusOverride map[string]Observation

	// failures holds errors returned (once each) by the next calls of an operation.
	failures map[string][]error

	calls map[string]int

	initErr error
}

// Operation names used for failure injection and call counting.
const (
	OpApply  = "apply"
	OpDelete = "delete"
	OpStatus = "status"
)

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		builds:         make(map[string]BuildSpec),
		statusOverride: make(map[string]Observation),
		failures:       make(map[string][]error),
		calls:          make(map[string]int),
	}
}

// Init returns the error configured with FailInit.
func (g *MemoryGateway) Init(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initErr
}

// FailInit makes Init return err.
func (g *MemoryGateway) FailInit(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initErr = err
}

// FailNext queues err to be returned by the next call of op.
func (g *MemoryGateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = append(g.failures[op], err)
}

// SetStatus forces the observation returned for id until ClearStatus is called.
func (g *MemoryGateway) SetStatus(id string, obs Observation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusOverride[id] = obs
}

// ClearStatus removes a forced observation.
func (g *MemoryGateway) ClearStatus(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.statusOverride, id)
}

// Calls returns how many times op was invoked.
func (g *MemoryGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// Spec returns the last applied spec for id.
func (g *MemoryGateway) Spec(id string) (BuildSpec, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	spec, ok := g.builds[id]
	return spec, ok
}

// PendingFailures returns how many injected failures of op are still queued.
func (g *MemoryGateway) PendingFailures(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.failures[op])
}

// popFailure must be called with g.mu held.
func (g *MemoryGateway) popFailure(op string) error {
	g.calls[op]++
	queued := g.failures[op]
	if len(queued) == 0 {
		return nil
	}
	g.failures[op] = queued[1:]
	return queued[0]
}

// ApplyBuild stores spec as the build's current workloads.
func (g *MemoryGateway) ApplyBuild(ctx context.Context, id string, spec BuildSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.popFailure(OpApply); err != nil {
		return err
	}
	if spec.Replicas < 0 {
		return Terminal(fmt.Errorf("invalid replica count %d for %s", spec.Replicas, id))
	}
	g.builds[id] = spec
	return nil
}

// DeleteBuild forgets the build. Absent builds are not an error.
func (g *MemoryGateway) DeleteBuild(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.popFailure(OpDelete); err != nil {
		return err
	}
	delete(g.builds, id)
	return nil
}

// GetStatus reports the build's state derived from the last applied spec.
func (g *MemoryGateway) GetStatus(ctx context.Context, id string) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.popFailure(OpStatus); err != nil {
		return Observation{}, err
	}
	if obs, ok := g.statusOverride[id]; ok {
		return obs, nil
	}

	spec, ok := g.builds[id]
	switch {
	case !ok:
		return Observation{Status: StatusAbsent}, nil
	case spec.Replicas == 0:
		return Observation{Status: StatusStopped}, nil
	default:
		return Observation{Status: StatusReady}, nil
	}
}
