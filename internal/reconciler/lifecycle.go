package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"runboat/internal/build"
	"runboat/internal/cluster"
	"runboat/internal/registry"
	"runboat/internal/scheduler"
	"runboat/pkg/logging"
)

// Lifecycle drives one build at a time through its state machine.
//
// Each call to Reconcile compares the build's lifecycle state, the scheduler
// decision for this pass and, where needed, the observed cluster status, and
// issues at most one mutating gateway call. Outcomes are written back to the
// registry through TransitionTo, so only edges of the state machine are ever
// recorded.
type Lifecycle struct {
	registry *registry.Registry
	gateway  cluster.Gateway
	now      func() time.Time

	gatewayTimeout time.Duration
	deployTimeout  time.Duration

	onTransition TransitionObserver
	metrics      *Metrics
}

// NewLifecycle creates a lifecycle reconciler. Zero durations and a nil clock
// fall back to the ManagerConfig defaults.
func NewLifecycle(reg *registry.Registry, gateway cluster.Gateway, config ManagerConfig) *Lifecycle {
	config = withDefaults(config)
	return &Lifecycle{
		registry:       reg,
		gateway:        gateway,
		now:            config.Now,
		gatewayTimeout: config.GatewayTimeout,
		deployTimeout:  config.DeployTimeout,
		onTransition:   config.OnTransition,
		metrics:        config.Metrics,
	}
}

// Reconcile advances the build with the given id by at most one step.
//
// The returned error describes why this build's unit of work did not make
// progress. It never escapes as a panic: a panicking gateway is reported as
// an error for this build only.
func (l *Lifecycle) Reconcile(ctx context.Context, id string, decision scheduler.Decision) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while reconciling build %s: %v", id, r)
			logging.Error("Lifecycle", err, "Recovered from panic")
			l.recordError(id, err)
		}
	}()

	b, ok := l.registry.Get(id)
	if !ok {
		return nil
	}

	switch b.State {
	case build.StateNew:
		return l.reconcileNew(ctx, b, decision)
	case build.StateDeploying:
		return l.reconcileDeploying(ctx, b, decision)
	case build.StateStarted:
		return l.reconcileStarted(ctx, b, decision)
	case build.StateStopping:
		return l.reconcileStopping(ctx, b)
	case build.StateStopped:
		return l.reconcileStopped(ctx, b, decision)
	case build.StateFailed:
		return l.reconcileFailed(ctx, b, decision)
	case build.StateDropping:
		return l.reconcileDropping(ctx, b)
	case build.StateDropped:
		l.finishDrop(b)
		return nil
	default:
		return fmt.Errorf("build %s has unknown lifecycle state %q", id, b.State)
	}
}

func (l *Lifecycle) reconcileNew(ctx context.Context, b build.Build, decision scheduler.Decision) error {
	switch decision.Action {
	case scheduler.ActionStart:
		if b.Desired != build.DesiredWanted {
			return nil
		}
		return l.deploy(ctx, b)
	case scheduler.ActionDrop:
		return l.drop(ctx, b)
	}
	return nil
}

func (l *Lifecycle) reconcileDeploying(ctx context.Context, b build.Build, decision scheduler.Decision) error {
	obs, err := l.status(ctx, b.ID)
	if err != nil {
		return l.handleError(b, err)
	}

	switch obs.Status {
	case cluster.StatusReady:
		if b.NeedsRedeploy() {
			return l.reapply(ctx, b, 1)
		}
		if decision.Action == scheduler.ActionHold {
			logging.Debug("Lifecycle", "Build %s is ready, waiting for a free slot", b.ID)
			return nil
		}
		return l.transition(b.ID, build.StateStarted, nil)

	case cluster.StatusError:
		return l.failWith(b, fmt.Errorf("deployment failed: %s", observationMessage(obs)))

	case cluster.StatusAbsent, cluster.StatusStopped:
		// Workloads vanished or were scaled down behind our back.
		return l.reapply(ctx, b, 1)

	default:
		if l.deployTimeout > 0 && l.now().Sub(b.StateChangedAt) > l.deployTimeout {
			return l.failWith(b, fmt.Errorf("deployment not ready after %s", l.deployTimeout))
		}
		if b.NeedsRedeploy() {
			return l.reapply(ctx, b, 1)
		}
		return nil
	}
}

func (l *Lifecycle) reconcileStarted(ctx context.Context, b build.Build, decision scheduler.Decision) error {
	if decision.Action == scheduler.ActionStop {
		logging.Info("Lifecycle", "Stopping build %s (%s)", b.ID, decision.Reason)
		return l.stop(ctx, b)
	}

	if b.Desired == build.DesiredWanted && b.NeedsRedeploy() {
		logging.Info("Lifecycle", "Redeploying build %s at %s (generation %d)", b.ID, b.Commit, b.Generation)
		return l.deploy(ctx, b)
	}

	obs, err := l.status(ctx, b.ID)
	if err != nil {
		return l.handleError(b, err)
	}

	switch obs.Status {
	case cluster.StatusAbsent, cluster.StatusStopped:
		logging.Warn("Lifecycle", "Build %s is started but its workloads are %s, redeploying", b.ID, obs.Status)
		return l.deploy(ctx, b)
	case cluster.StatusError:
		err := fmt.Errorf("workloads unhealthy: %s", observationMessage(obs))
		l.recordError(b.ID, err)
		return err
	case cluster.StatusReady:
		if b.LastError != "" {
			l.clearError(b.ID)
		}
	}
	return nil
}

func (l *Lifecycle) reconcileStopping(ctx context.Context, b build.Build) error {
	obs, err := l.status(ctx, b.ID)
	if err != nil {
		return l.handleError(b, err)
	}

	switch obs.Status {
	case cluster.StatusStopped, cluster.StatusAbsent:
		return l.transition(b.ID, build.StateStopped, nil)
	case cluster.StatusError:
		return l.failWith(b, fmt.Errorf("stop failed: %s", observationMessage(obs)))
	case cluster.StatusReady:
		// Still running at full scale; the scale-down did not stick.
		return l.reapply(ctx, b, 0)
	}
	return nil
}

func (l *Lifecycle) reconcileStopped(ctx context.Context, b build.Build, decision scheduler.Decision) error {
	switch decision.Action {
	case scheduler.ActionStart:
		if b.Desired != build.DesiredWanted {
			return nil
		}
		return l.deploy(ctx, b)
	case scheduler.ActionDrop:
		return l.drop(ctx, b)
	}
	return nil
}

func (l *Lifecycle) reconcileFailed(ctx context.Context, b build.Build, decision scheduler.Decision) error {
	switch decision.Action {
	case scheduler.ActionStart:
		if b.Desired != build.DesiredWanted {
			return nil
		}
		logging.Info("Lifecycle", "Retrying failed build %s", b.ID)
		return l.deploy(ctx, b)
	case scheduler.ActionDrop:
		return l.drop(ctx, b)
	}
	return nil
}

func (l *Lifecycle) reconcileDropping(ctx context.Context, b build.Build) error {
	obs, err := l.status(ctx, b.ID)
	if err != nil {
		return l.handleError(b, err)
	}

	if obs.Status != cluster.StatusAbsent {
		if err := l.call(ctx, cluster.OpDelete, func(ctx context.Context) error {
			return l.gateway.DeleteBuild(ctx, b.ID)
		}); err != nil {
			l.recordError(b.ID, err)
			return err
		}
		return nil
	}

	if err := l.transition(b.ID, build.StateDropped, nil); err != nil {
		return err
	}
	b.State = build.StateDropped
	l.finishDrop(b)
	return nil
}

// deploy applies the build at full scale and moves it to DEPLOYING.
func (l *Lifecycle) deploy(ctx context.Context, b build.Build) error {
	err := l.apply(ctx, b, 1)
	if err != nil && !cluster.IsTerminal(err) {
		l.recordError(b.ID, err)
		return err
	}

	if terr := l.transition(b.ID, build.StateDeploying, func(rec *build.Build) {
		rec.DeployedGeneration = b.Generation
	}); terr != nil {
		return terr
	}

	if err != nil {
		b.State = build.StateDeploying
		return l.failWith(b, err)
	}
	return nil
}

// reapply re-sends the spec without changing state.
func (l *Lifecycle) reapply(ctx context.Context, b build.Build, replicas int32) error {
	if err := l.apply(ctx, b, replicas); err != nil {
		return l.handleError(b, err)
	}

	if replicas > 0 && b.NeedsRedeploy() {
		now := l.now()
		_, err := l.registry.Update(b.ID, func(rec *build.Build) error {
			rec.DeployedGeneration = b.Generation
			rec.StateChangedAt = now
			return nil
		})
		return err
	}
	return nil
}

// stop scales the build to zero and moves it to STOPPING.
func (l *Lifecycle) stop(ctx context.Context, b build.Build) error {
	err := l.apply(ctx, b, 0)
	if err != nil && !cluster.IsTerminal(err) {
		l.recordError(b.ID, err)
		return err
	}

	if terr := l.transition(b.ID, build.StateStopping, nil); terr != nil {
		return terr
	}

	if err != nil {
		b.State = build.StateStopping
		return l.failWith(b, err)
	}
	return nil
}

// drop deletes the build's resources and moves it to DROPPING.
func (l *Lifecycle) drop(ctx context.Context, b build.Build) error {
	logging.Info("Lifecycle", "Dropping build %s", b.ID)
	if err := l.call(ctx, cluster.OpDelete, func(ctx context.Context) error {
		return l.gateway.DeleteBuild(ctx, b.ID)
	}); err != nil {
		l.recordError(b.ID, err)
		return err
	}
	return l.transition(b.ID, build.StateDropping, nil)
}

// finishDrop removes a DROPPED build from the registry. A build that was
// wanted again while being dropped starts over as a NEW build.
func (l *Lifecycle) finishDrop(b build.Build) {
	if b.Desired == build.DesiredWanted {
		fresh := build.New(b.Repo, b.Ref, b.Commit, l.now())
		fresh.Target = b.Target
		l.registry.Upsert(fresh)
		logging.Info("Lifecycle", "Build %s was reopened while dropping, re-created", b.ID)
		return
	}
	l.registry.Remove(b.ID)
	logging.Info("Lifecycle", "Build %s dropped and removed", b.ID)
}

func (l *Lifecycle) apply(ctx context.Context, b build.Build, replicas int32) error {
	spec := cluster.BuildSpec{
		ID:         b.ID,
		Repo:       b.Repo,
		Ref:        b.Ref,
		Target:     b.Target,
		Commit:     b.Commit,
		Generation: b.Generation,
		Replicas:   replicas,
	}
	return l.call(ctx, cluster.OpApply, func(ctx context.Context) error {
		return l.gateway.ApplyBuild(ctx, b.ID, spec)
	})
}

func (l *Lifecycle) status(ctx context.Context, id string) (cluster.Observation, error) {
	var obs cluster.Observation
	err := l.call(ctx, cluster.OpStatus, func(ctx context.Context) error {
		var err error
		obs, err = l.gateway.GetStatus(ctx, id)
		return err
	})
	return obs, err
}

// call runs one gateway operation under the gateway timeout. The context is
// detached from ctx's cancellation so a shutdown never interrupts a cluster
// mutation half way.
func (l *Lifecycle) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.gatewayTimeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	if err == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%s timed out after %s", op, l.gatewayTimeout)
	}
	l.metrics.recordGatewayCall(op, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// handleError records a gateway error. Terminal errors fail the build when
// its current state has an edge to FAILED; otherwise the build stays put
// and is retried on the next pass.
func (l *Lifecycle) handleError(b build.Build, err error) error {
	if cluster.IsTerminal(err) && build.CanTransition(b.State, build.StateFailed) {
		return l.failWith(b, err)
	}
	l.recordError(b.ID, err)
	return err
}

// failWith moves the build to FAILED with err as its last error.
func (l *Lifecycle) failWith(b build.Build, cause error) error {
	msg := SanitizeErrorMessage(cause.Error())
	if err := l.transition(b.ID, build.StateFailed, func(rec *build.Build) {
		rec.LastError = msg
	}); err != nil {
		return err
	}
	logging.Warn("Lifecycle", "Build %s failed: %s", b.ID, msg)
	return cause
}

// transition records a state machine edge and clears the last error.
func (l *Lifecycle) transition(id string, to build.LifecycleState, mutate func(rec *build.Build)) error {
	now := l.now()
	var from build.LifecycleState

	_, err := l.registry.Update(id, func(rec *build.Build) error {
		from = rec.State
		if err := rec.TransitionTo(to, now); err != nil {
			return err
		}
		rec.LastError = ""
		if mutate != nil {
			mutate(rec)
		}
		return nil
	})
	if err != nil {
		logging.Error("Lifecycle", err, "Refusing transition of build %s", id)
		return err
	}

	logging.Info("Lifecycle", "Build %s: %s -> %s", id, from, to)
	l.metrics.recordTransition(from, to)
	if l.onTransition != nil {
		l.onTransition(id, from, to)
	}
	return nil
}

func (l *Lifecycle) recordError(id string, err error) {
	msg := SanitizeErrorMessage(err.Error())
	logging.Warn("Lifecycle", "Build %s: %s", id, msg)
	_, _ = l.registry.Update(id, func(rec *build.Build) error {
		rec.LastError = msg
		return nil
	})
}

func (l *Lifecycle) clearError(id string) {
	_, _ = l.registry.Update(id, func(rec *build.Build) error {
		rec.LastError = ""
		return nil
	})
}

func observationMessage(obs cluster.Observation) string {
	if obs.Message == "" {
		return string(obs.Status)
	}
	return obs.Message
}
