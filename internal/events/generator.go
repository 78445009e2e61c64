package events

import (
	"context"
	"sync"
	"time"

	"runboat/internal/build"
	"runboat/pkg/logging"
)

// DefaultTimeout bounds one Event create.
const DefaultTimeout = 2 * time.Second

// DefaultQueueSize is the number of events buffered for publishing.
const DefaultQueueSize = 256

// BuildLookup reads a build record by id.
type BuildLookup interface {
	Get(id string) (build.Build, bool)
}

type pendingEvent struct {
	reason EventReason
	data   EventData
}

// EventGenerator renders lifecycle transitions into events and hands them to
// a Sink. Observe only enqueues; a background worker started with Start
// performs the sink calls so a slow API server never holds up a pass.
type EventGenerator struct {
	sink      Sink
	builds    BuildLookup
	namespace string
	templates *MessageTemplateEngine
	timeout   time.Duration
	queue     chan pendingEvent

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewEventGenerator creates a generator for builds living in namespace.
func NewEventGenerator(sink Sink, builds BuildLookup, namespace string) *EventGenerator {
	return &EventGenerator{
		sink:      sink,
		builds:    builds,
		namespace: namespace,
		templates: NewMessageTemplateEngine(),
		timeout:   DefaultTimeout,
		queue:     make(chan pendingEvent, DefaultQueueSize),
	}
}

// Start launches the publishing worker. Events observed before Start stay
// buffered until then.
func (g *EventGenerator) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return
	}
	g.running = true
	g.done = make(chan struct{})

	g.wg.Add(1)
	go g.run(g.done)
}

// Stop publishes what is still buffered and waits for the worker to exit.
func (g *EventGenerator) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	close(g.done)
	g.mu.Unlock()

	g.wg.Wait()
}

func (g *EventGenerator) run(done <-chan struct{}) {
	defer g.wg.Done()
	for {
		select {
		case ev := <-g.queue:
			g.publish(ev)
		case <-done:
			for {
				select {
				case ev := <-g.queue:
					g.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (g *EventGenerator) publish(ev pendingEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	if err := g.BuildEvent(ctx, ev.reason, ev.data); err != nil {
		logging.Debug("Events", "Failed to publish %s for build %s: %v", ev.reason, ev.data.Name, err)
	}
}

// Observe queues the transition of build id from one state to another for
// publishing. It never blocks: when the queue is full the event is dropped.
// Its signature matches the reconciler's transition observer.
func (g *EventGenerator) Observe(id string, from, to build.LifecycleState) {
	reason, ok := ReasonForTransition(from, to)
	if !ok {
		return
	}

	data := EventData{Name: id, From: string(from)}
	if b, found := g.builds.Get(id); found {
		data.Repo = b.Repo
		data.Ref = b.Ref
		data.Commit = b.Commit
		data.Generation = b.Generation
		data.Error = b.LastError
	}

	select {
	case g.queue <- pendingEvent{reason: reason, data: data}:
	default:
		logging.Warn("Events", "Event queue full, dropping %s for build %s", reason, id)
	}
}

// BuildEvent generates an event for the Deployment of the build named in
// data.
func (g *EventGenerator) BuildEvent(ctx context.Context, reason EventReason, data EventData) error {
	data.Namespace = g.namespace

	message := g.templates.Render(reason, data)
	eventType := string(getEventType(reason))

	logging.Debug("Events", "Generating build event: reason=%s, message=%s, type=%s",
		string(reason), message, eventType)

	ref := ObjectRef{
		APIVersion: "apps/v1",
		Kind:       "Deployment",
		Name:       data.Name,
		Namespace:  g.namespace,
	}
	return g.sink.CreateEvent(ctx, ref, string(reason), message, eventType)
}
