package k8s

import (
	"context"
	"fmt"
	"sync"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/rest"
	toolscache "k8s.io/client-go/tools/cache"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"runboat/pkg/logging"
)

// NotifyFunc is called with the build id of a Deployment that changed.
// It runs on the informer goroutine and must not block.
type NotifyFunc func(id string)

// Watcher reports changes to build Deployments using a controller-runtime
// informer cache.
type Watcher struct {
	mu sync.Mutex

	restConfig *rest.Config
	namespace  string
	scheme     *runtime.Scheme

	notify     NotifyFunc
	cancelFunc context.CancelFunc
	running    bool
}

// NewWatcher creates a watcher for the Deployments managed in namespace.
func NewWatcher(restConfig *rest.Config, namespace string, scheme *runtime.Scheme) *Watcher {
	return &Watcher{
		restConfig: restConfig,
		namespace:  namespace,
		scheme:     scheme,
	}
}

// Start runs the informer and blocks until its cache has synced.
func (w *Watcher) Start(ctx context.Context, notify NotifyFunc) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	w.notify = notify
	w.cancelFunc = cancel
	w.running = true
	w.mu.Unlock()

	fail := func(err error) error {
		cancel()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	c, err := cache.New(w.restConfig, cache.Options{
		Scheme: w.scheme,
		DefaultNamespaces: map[string]cache.Config{
			w.namespace: {},
		},
		ByObject: map[client.Object]cache.ByObject{
			&appsv1.Deployment{}: {
				Label: labels.SelectorFromSet(labels.Set{LabelManagedBy: ManagerName}),
			},
		},
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create cache: %w", err))
	}

	informer, err := c.GetInformer(ctx, &appsv1.Deployment{})
	if err != nil {
		return fail(fmt.Errorf("failed to get deployment informer: %w", err))
	}
	if _, err := informer.AddEventHandler(w.eventHandler()); err != nil {
		return fail(fmt.Errorf("failed to add event handler: %w", err))
	}

	go func() {
		if err := c.Start(ctx); err != nil {
			logging.Error("KubernetesWatcher", err, "Cache stopped with error")
		}
	}()

	if !c.WaitForCacheSync(ctx) {
		return fail(fmt.Errorf("failed to sync cache"))
	}

	logging.Info("KubernetesWatcher", "Watching build deployments in namespace %s", w.namespace)
	return nil
}

// Stop shuts the informer down. Stopping a watcher that is not running is a
// no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	logging.Info("KubernetesWatcher", "Stopped watching build deployments")
}

func (w *Watcher) eventHandler() toolscache.ResourceEventHandler {
	return toolscache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			w.handle(obj)
		},
		UpdateFunc: func(_, newObj interface{}) {
			w.handle(newObj)
		},
		DeleteFunc: func(obj interface{}) {
			// Objects deleted while the watch was disconnected.
			if deleted, ok := obj.(toolscache.DeletedFinalStateUnknown); ok {
				obj = deleted.Obj
			}
			w.handle(obj)
		},
	}
}

func (w *Watcher) handle(obj interface{}) {
	o, ok := obj.(client.Object)
	if !ok {
		logging.Warn("KubernetesWatcher", "Ignoring event for unexpected object %T", obj)
		return
	}
	id := o.GetLabels()[LabelBuild]
	if id == "" {
		return
	}

	w.mu.Lock()
	notify, running := w.notify, w.running
	w.mu.Unlock()
	if !running || notify == nil {
		return
	}

	logging.Debug("KubernetesWatcher", "Deployment %s of build %s changed", o.GetName(), id)
	notify(id)
}
