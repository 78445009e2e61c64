package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"runboat/internal/build"
	"runboat/internal/cluster"
	"runboat/internal/registry"
	"runboat/internal/resolver"
	"runboat/internal/scheduler"
	"runboat/pkg/logging"
)

// Manager is the control loop. It owns the pass timer, the trigger channel
// and the worker fan-out, and is the single entry point other components
// use to feed events and activity into the controller.
//
// It manages:
//   - The event queue drained into the resolver at the start of each pass
//   - The scheduler plan computed from a registry snapshot
//   - A per-pass work queue keyed by build id and its worker pool
type Manager struct {
	mu sync.RWMutex

	config ManagerConfig

	registry  *registry.Registry
	resolver  *resolver.Resolver
	events    *resolver.Queue
	gateway   cluster.Gateway
	lifecycle *Lifecycle

	// passMu keeps passes from overlapping
	passMu sync.Mutex

	// trigger requests an out-of-band pass; it holds at most one request
	trigger chan struct{}

	// lastPass is the result of the most recent completed pass
	lastPass *PassResult

	// ctx is the manager's context
	ctx context.Context

	// cancelFunc cancels the manager's context
	cancelFunc context.CancelFunc

	// wg tracks the loop goroutine
	wg sync.WaitGroup

	// running indicates if the manager is active
	running bool
}

func withDefaults(config ManagerConfig) ManagerConfig {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	if config.GatewayTimeout <= 0 {
		config.GatewayTimeout = 30 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return config
}

// NewManager creates a control loop over the given registry, resolver,
// event queue and cluster gateway.
func NewManager(config ManagerConfig, reg *registry.Registry, res *resolver.Resolver, events *resolver.Queue, gateway cluster.Gateway) *Manager {
	config = withDefaults(config)

	return &Manager{
		config:    config,
		registry:  reg,
		resolver:  res,
		events:    events,
		gateway:   gateway,
		lifecycle: NewLifecycle(reg, gateway, config),
		trigger:   make(chan struct{}, 1),
	}
}

// Start initializes the gateway, runs an immediate pass and then keeps
// reconciling on every interval tick and every Trigger. A gateway
// initialization failure is returned and the manager stays stopped.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}

	if initializer, ok := m.gateway.(cluster.Initializer); ok {
		if err := initializer.Init(ctx); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to initialize cluster gateway: %w", err)
		}
	}

	m.ctx, m.cancelFunc = context.WithCancel(ctx)
	m.running = true
	interval := m.config.Interval
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(m.ctx, interval)

	logging.Info("ReconcileManager", "Started with %d workers, interval %s, budget %d",
		m.config.WorkerCount, interval, m.Limits().MaxStarted)
	return nil
}

// loop runs passes until ctx is cancelled.
func (m *Manager) loop(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.RunPass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunPass(ctx)
		case <-m.trigger:
			m.RunPass(ctx)
		}
	}
}

// Stop cancels the timer and waits for the in-flight pass to finish.
// Builds already handed to a worker complete their action; the rest of the
// pass is skipped.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel := m.cancelFunc
	m.mu.Unlock()

	logging.Info("ReconcileManager", "Stopping reconcile manager...")

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	logging.Info("ReconcileManager", "Reconcile manager stopped")
	return nil
}

// Trigger asks for an immediate pass. Requests made while one is already
// pending are coalesced.
func (m *Manager) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// RunPass performs one reconciliation pass and returns its result. Passes
// are serialized: a call made while another pass runs waits for it.
func (m *Manager) RunPass(ctx context.Context) PassResult {
	m.passMu.Lock()
	defer m.passMu.Unlock()

	now := m.config.Now()
	result := PassResult{
		ID:        uuid.New().String(),
		StartedAt: now,
		Failed:    make(map[string]string),
	}
	start := time.Now()

	events := m.events.Drain()
	result.Events = len(events)
	for _, ev := range events {
		if _, err := m.resolver.Apply(ev); err != nil {
			logging.Warn("ReconcileManager", "Pass %s: failed to apply %s: %v", result.ID, ev, err)
		}
	}

	snapshot := m.registry.ListAll()
	plan := scheduler.Schedule(snapshot, now, m.Limits())
	m.config.Metrics.recordPlan(plan)

	result.Admitted = plan.Admitted
	result.Stopped = plan.Stopped
	result.Dropped = plan.Dropped
	result.Held = plan.Held
	result.Pending = plan.Pending

	queue := newWorkQueue()
	for _, b := range snapshot {
		decision := plan.Decision(b.ID)
		if needsWork(b, decision) {
			queue.Add(task{ID: b.ID, Decision: decision})
			result.Processed++
		}
	}
	queue.Shutdown()

	var (
		failedMu sync.Mutex
		g        errgroup.Group
	)
	for i := 0; i < m.config.WorkerCount; i++ {
		g.Go(func() error {
			for {
				t, ok := queue.Get(ctx)
				if !ok {
					return nil
				}
				if err := m.lifecycle.Reconcile(ctx, t.ID, t.Decision); err != nil {
					failedMu.Lock()
					result.Failed[t.ID] = SanitizeErrorMessage(err.Error())
					failedMu.Unlock()
				}
				queue.Done(t)
			}
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	result.States = m.registry.CountByState()

	if len(result.Failed) > 0 {
		logging.Warn("ReconcileManager", "Pass %s finished in %s: %d processed, %d failed",
			result.ID, result.Duration, result.Processed, len(result.Failed))
	} else {
		logging.Debug("ReconcileManager", "Pass %s finished in %s: %d processed",
			result.ID, result.Duration, result.Processed)
	}
	m.config.Metrics.recordPass(result)

	m.mu.Lock()
	m.lastPass = &result
	m.mu.Unlock()

	return result
}

// needsWork reports whether the lifecycle reconciler has anything to do for
// b in this pass. Settled builds without a decision are skipped.
func needsWork(b build.Build, decision scheduler.Decision) bool {
	if decision.Action != scheduler.ActionNone {
		return true
	}
	switch b.State {
	case build.StateNew, build.StateStopped, build.StateFailed:
		return false
	default:
		return true
	}
}

// SubmitEvent queues a repository event for the next pass and triggers it.
// A manager that is not running refuses events with ErrNotRunning.
func (m *Manager) SubmitEvent(ctx context.Context, ev resolver.Event) error {
	if !m.IsRunning() {
		return fmt.Errorf("failed to queue event %s: %w", ev, ErrNotRunning)
	}
	if err := m.events.Submit(ctx, ev); err != nil {
		return fmt.Errorf("failed to queue event %s: %w", ev, err)
	}
	m.Trigger()
	return nil
}

// Activity records external access to a build. Accessing a stopped build
// requests its restart, so a pass is triggered.
func (m *Manager) Activity(id string) error {
	if err := m.registry.MarkActivity(id, m.config.Now()); err != nil {
		return err
	}
	if b, ok := m.registry.Get(id); ok && b.StartRequested {
		m.Trigger()
	}
	return nil
}

// Retry asks for a FAILED build to be deployed again on the next pass.
func (m *Manager) Retry(id string) error {
	_, err := m.registry.Update(id, func(b *build.Build) error {
		if b.State != build.StateFailed || b.Desired != build.DesiredWanted {
			return fmt.Errorf("%w: %s is %s", ErrNotFailed, b.ID, b.State)
		}
		b.RetryRequested = true
		return nil
	})
	if err != nil {
		return err
	}
	logging.Info("ReconcileManager", "Retry requested for build %s", id)
	m.Trigger()
	return nil
}

// Builds returns the status of every build, ordered by id.
func (m *Manager) Builds() []build.Status {
	builds := m.registry.ListAll()
	statuses := make([]build.Status, 0, len(builds))
	for _, b := range builds {
		statuses = append(statuses, b.Status())
	}
	return statuses
}

// Build returns the status of one build.
func (m *Manager) Build(id string) (build.Status, bool) {
	b, ok := m.registry.Get(id)
	if !ok {
		return build.Status{}, false
	}
	return b.Status(), true
}

// LastPass returns the result of the most recent pass.
func (m *Manager) LastPass() (PassResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastPass == nil {
		return PassResult{}, false
	}
	return *m.lastPass, true
}

// Limits returns the scheduler limits in effect.
func (m *Manager) Limits() scheduler.Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Limits
}

// SetLimits replaces the scheduler limits from the next pass on.
func (m *Manager) SetLimits(limits scheduler.Limits) {
	m.mu.Lock()
	m.config.Limits = limits
	m.mu.Unlock()
	logging.Info("ReconcileManager", "Limits updated: budget %d, idle timeout %s",
		limits.MaxStarted, limits.IdleTimeout)
	m.Trigger()
}

// IsRunning returns whether the manager is running.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// QueuedEvents returns the number of events waiting for the next pass.
func (m *Manager) QueuedEvents() int {
	return m.events.Len()
}
