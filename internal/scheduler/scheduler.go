// Package scheduler decides, once per reconciliation pass, which builds may
// start, which must stop to respect the budget, and which must be dropped.
//
// Schedule is a pure function of a registry snapshot and the current time.
// Every decision for a pass is computed before any action is dispatched, so
// admissions and evictions within one pass are mutually consistent even
// though their execution is concurrent.
package scheduler

import (
	"sort"
	"time"

	"runboat/internal/build"
)

// Action is what the scheduler asks the lifecycle reconciler to do.
type Action int

const (
	// ActionNone leaves the build to its own state-driven progress.
	ActionNone Action = iota

	// ActionStart deploys a NEW, STOPPED or FAILED build.
	ActionStart

	// ActionStop scales a STARTED build to zero.
	ActionStop

	// ActionDrop deletes the cluster resources of an UNWANTED build.
	ActionDrop

	// ActionHold keeps a DEPLOYING build from becoming STARTED this pass.
	ActionHold
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	case ActionDrop:
		return "drop"
	case ActionHold:
		return "hold"
	default:
		return "none"
	}
}

// Reason explains a decision; it is used for logging and metrics labels.
type Reason string

const (
	ReasonIdle       Reason = "idle"
	ReasonEvicted    Reason = "evicted"
	ReasonOverBudget Reason = "over-budget"
	ReasonUnwanted   Reason = "unwanted"
	ReasonAdmitted   Reason = "admitted"
	ReasonRetry      Reason = "retry"
)

// Decision is the scheduler verdict for one build.
type Decision struct {
	Action Action
	Reason Reason
}

// Limits are the scheduling knobs taken from configuration.
type Limits struct {
	// MaxStarted is the budget of concurrently started builds.
	MaxStarted int

	// IdleTimeout stops started builds without activity for longer than
	// this. Zero disables idle stops.
	IdleTimeout time.Duration

	// RetryFailedAfter makes a FAILED build eligible for another deploy
	// once it has been failed for this long. Zero disables automatic retry.
	RetryFailedAfter time.Duration
}

// Plan is the outcome of one scheduling round.
type Plan struct {
	// Decisions holds a non-none decision per build id.
	Decisions map[string]Decision

	// Admitted, Stopped, Dropped and Held list build ids in decision order.
	Admitted []string
	Stopped  []string
	Dropped  []string
	Held     []string

	// Occupied is the number of budget slots in use once the plan is
	// carried out. Pending counts wanted builds still waiting for a slot.
	Occupied int
	Pending  int
}

// Decision returns the decision for id, ActionNone when there is none.
func (p Plan) Decision(id string) Decision {
	if d, ok := p.Decisions[id]; ok {
		return d
	}
	return Decision{Action: ActionNone}
}

func (p *Plan) set(id string, d Decision) {
	p.Decisions[id] = d
	switch d.Action {
	case ActionStart:
		p.Admitted = append(p.Admitted, id)
	case ActionStop:
		p.Stopped = append(p.Stopped, id)
	case ActionDrop:
		p.Dropped = append(p.Dropped, id)
	case ActionHold:
		p.Held = append(p.Held, id)
	}
}

// Schedule computes the plan for one pass.
//
// A budget slot is held by every STARTED build that is not being stopped and
// by every DEPLOYING build. Counting in-flight deploys keeps the number of
// STARTED builds within MaxStarted at the end of every pass, because a
// deploy can only complete into a slot that was already reserved for it.
// A stop requested in this pass may still fail, so DEPLOYING builds are only
// allowed to become STARTED while the builds STARTED at snapshot time leave
// room for them; the others are held until a later pass.
func Schedule(builds []build.Build, now time.Time, limits Limits) Plan {
	plan := Plan{Decisions: make(map[string]Decision)}

	var (
		evictable  []build.Build
		candidates []build.Build
		deploying  []build.Build
		occupied   int
		started    int
	)

	for _, b := range builds {
		switch b.State {
		case build.StateStarted:
			started++
		case build.StateDeploying:
			deploying = append(deploying, b)
		}

		if b.Desired == build.DesiredUnwanted {
			switch b.State {
			case build.StateStarted:
				plan.set(b.ID, Decision{Action: ActionStop, Reason: ReasonUnwanted})
			case build.StateNew, build.StateStopped, build.StateFailed:
				plan.set(b.ID, Decision{Action: ActionDrop, Reason: ReasonUnwanted})
			case build.StateDeploying:
				occupied++
			}
			continue
		}

		switch b.State {
		case build.StateStarted:
			if limits.IdleTimeout > 0 && now.Sub(b.LastActivityAt) > limits.IdleTimeout {
				plan.set(b.ID, Decision{Action: ActionStop, Reason: ReasonIdle})
				continue
			}
			occupied++
			evictable = append(evictable, b)
		case build.StateDeploying:
			occupied++
		case build.StateNew, build.StateStopped:
			if b.StartRequested {
				candidates = append(candidates, b)
			}
		case build.StateFailed:
			if retryDue(b, now, limits) {
				candidates = append(candidates, b)
			}
		}
	}

	// Least recently used first.
	sort.SliceStable(evictable, func(i, j int) bool {
		if !evictable[i].LastActivityAt.Equal(evictable[j].LastActivityAt) {
			return evictable[i].LastActivityAt.Before(evictable[j].LastActivityAt)
		}
		return evictable[i].ID < evictable[j].ID
	})

	// Oldest pending request first.
	sort.SliceStable(candidates, func(i, j int) bool {
		ti, tj := requestTime(candidates[i]), requestTime(candidates[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return candidates[i].ID < candidates[j].ID
	})

	maxStarted := limits.MaxStarted
	if maxStarted < 0 {
		maxStarted = 0
	}

	holdDeploys(&plan, deploying, maxStarted-started)

	// A lowered budget is enforced by evicting the least recently used.
	for occupied > maxStarted && len(evictable) > 0 {
		plan.set(evictable[0].ID, Decision{Action: ActionStop, Reason: ReasonOverBudget})
		evictable = evictable[1:]
		occupied--
	}

	for i, c := range candidates {
		if occupied >= maxStarted {
			if len(evictable) == 0 {
				plan.Pending = len(candidates) - i
				break
			}
			plan.set(evictable[0].ID, Decision{Action: ActionStop, Reason: ReasonEvicted})
			evictable = evictable[1:]
			occupied--
		}

		reason := ReasonAdmitted
		if c.State == build.StateFailed {
			reason = ReasonRetry
		}
		plan.set(c.ID, Decision{Action: ActionStart, Reason: reason})
		occupied++
	}

	plan.Occupied = occupied
	return plan
}

// holdDeploys allows at most free DEPLOYING builds to complete. Unwanted
// builds go first so they can move on toward DROPPING; the rest follow in
// the order they started deploying.
func holdDeploys(plan *Plan, deploying []build.Build, free int) {
	sort.SliceStable(deploying, func(i, j int) bool {
		ui := deploying[i].Desired == build.DesiredUnwanted
		uj := deploying[j].Desired == build.DesiredUnwanted
		if ui != uj {
			return ui
		}
		if !deploying[i].StateChangedAt.Equal(deploying[j].StateChangedAt) {
			return deploying[i].StateChangedAt.Before(deploying[j].StateChangedAt)
		}
		return deploying[i].ID < deploying[j].ID
	})

	for i, b := range deploying {
		if i < free {
			continue
		}
		plan.set(b.ID, Decision{Action: ActionHold, Reason: ReasonOverBudget})
	}
}

// retryDue reports whether a FAILED build may be deployed again.
func retryDue(b build.Build, now time.Time, limits Limits) bool {
	if b.RetryRequested || b.NeedsRedeploy() {
		return true
	}
	return limits.RetryFailedAfter > 0 && now.Sub(b.FailedAt) >= limits.RetryFailedAfter
}

func requestTime(b build.Build) time.Time {
	if b.State == build.StateFailed {
		return b.FailedAt
	}
	return b.RequestedAt
}
