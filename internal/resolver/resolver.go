// Package resolver turns repository events into desired-state changes on the
// build registry. It performs no cluster I/O: lifecycle transitions happen
// only when the control loop next reconciles the affected build.
package resolver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"runboat/internal/build"
	"runboat/internal/registry"
	"runboat/pkg/logging"
)

// ErrSourceConflict is returned when an event's build id belongs to a
// record created for a different repository or ref.
var ErrSourceConflict = errors.New("build id belongs to another source")

// Outcome describes what applying an event did to the registry.
type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// Resolver applies events to the registry under a replaceable policy.
type Resolver struct {
	mu       sync.RWMutex
	policy   *Policy
	registry *registry.Registry
	now      func() time.Time
}

// New creates a resolver. A nil now defaults to time.Now.
func New(reg *registry.Registry, policy *Policy, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	if policy == nil {
		policy = &Policy{}
	}
	return &Resolver{
		policy:   policy,
		registry: reg,
		now:      now,
	}
}

// SetPolicy swaps the policy used for subsequent events.
func (r *Resolver) SetPolicy(policy *Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy = policy
}

func (r *Resolver) currentPolicy() *Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// Apply records the desired-state effect of ev. Applying the same event
// twice yields the same registry content as applying it once.
//
// Closed events skip the policy: they only ever touch existing builds, and a
// build whose repository or ref pattern was removed from the configuration
// must still be dropped when its ref goes away.
func (r *Resolver) Apply(ev Event) (Outcome, error) {
	if ev.Kind != EventClosed && !r.currentPolicy().Matches(ev) {
		logging.Debug("Resolver", "Ignoring %s: no matching policy", ev)
		return OutcomeIgnored, nil
	}

	var (
		outcome Outcome
		err     error
	)
	switch ev.Kind {
	case EventPushed:
		outcome, err = r.want(ev, true)
	case EventReopened:
		outcome, err = r.want(ev, ev.Commit != "")
	case EventClosed:
		outcome, err = r.close(ev)
	default:
		return OutcomeIgnored, fmt.Errorf("unknown event kind %s", ev.Kind)
	}

	if err == nil && outcome != OutcomeUnchanged && outcome != OutcomeIgnored {
		logging.Info("Resolver", "Applied %s: %s", ev, outcome)
	}
	return outcome, err
}

// want marks the build WANTED, creating it when allowed and updating the
// commit (and generation) when it changed.
func (r *Resolver) want(ev Event, mayCreate bool) (Outcome, error) {
	id := build.MakeID(ev.Repo, ev.Ref)
	now := r.now()
	changed := false

	_, created, err := r.registry.UpdateOrCreate(id,
		func() (build.Build, bool) {
			if !mayCreate {
				return build.Build{}, false
			}
			b := build.New(ev.Repo, ev.Ref, ev.Commit, now)
			b.Target = ev.Target
			return b, true
		},
		func(b *build.Build) error {
			if err := checkSource(*b, ev); err != nil {
				return err
			}
			if b.Desired != build.DesiredWanted {
				b.Desired = build.DesiredWanted
				if b.State == build.StateNew || b.State == build.StateStopped {
					b.RequestStart(now)
				}
				changed = true
			}
			if ev.Commit != "" && ev.Commit != b.Commit {
				b.Commit = ev.Commit
				b.Generation++
				changed = true
			}
			if ev.Target != "" && ev.Target != b.Target {
				b.Target = ev.Target
				changed = true
			}
			return nil
		})

	switch {
	case errors.Is(err, registry.ErrNotFound):
		return OutcomeIgnored, nil
	case err != nil:
		return "", err
	case created:
		return OutcomeCreated, nil
	case changed:
		return OutcomeUpdated, nil
	default:
		return OutcomeUnchanged, nil
	}
}

// close marks an existing build UNWANTED.
func (r *Resolver) close(ev Event) (Outcome, error) {
	id := build.MakeID(ev.Repo, ev.Ref)
	changed := false

	_, err := r.registry.Update(id, func(b *build.Build) error {
		if err := checkSource(*b, ev); err != nil {
			return err
		}
		if b.Desired != build.DesiredUnwanted {
			b.Desired = build.DesiredUnwanted
			b.StartRequested = false
			b.RetryRequested = false
			changed = true
		}
		return nil
	})

	switch {
	case errors.Is(err, registry.ErrNotFound):
		return OutcomeIgnored, nil
	case err != nil:
		return "", err
	case changed:
		return OutcomeUpdated, nil
	default:
		return OutcomeUnchanged, nil
	}
}

func checkSource(b build.Build, ev Event) error {
	if b.HasSource(ev.Repo, ev.Ref) {
		return nil
	}
	return fmt.Errorf("%w: %s is %s@%s, event is for %s@%s",
		ErrSourceConflict, b.ID, b.Repo, b.Ref, ev.Repo, ev.Ref)
}
