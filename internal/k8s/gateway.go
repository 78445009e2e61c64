package k8s

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/retry"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"runboat/internal/cluster"
	"runboat/pkg/logging"
)

// managedKinds are the kinds a build may own. Deletion and the "anything
// left?" check walk all of them.
var managedKinds = []schema.GroupVersionKind{
	{Group: "apps", Version: "v1", Kind: "Deployment"},
	{Group: "", Version: "v1", Kind: "Service"},
	{Group: "networking.k8s.io", Version: "v1", Kind: "Ingress"},
	{Group: "", Version: "v1", Kind: "ConfigMap"},
	{Group: "", Version: "v1", Kind: "Secret"},
	{Group: "", Version: "v1", Kind: "PersistentVolumeClaim"},
}

// NewScheme returns a scheme with the built-in Kubernetes types registered.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	return scheme
}

// RESTConfig loads the cluster connection. An empty kubeconfig falls back to
// the usual discovery (KUBECONFIG, in-cluster config, ~/.kube/config).
func RESTConfig(kubeconfig string, qps float32, burst int) (*rest.Config, error) {
	var (
		config *rest.Config
		err    error
	)
	if kubeconfig != "" {
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		config, err = ctrl.GetConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Kubernetes configuration: %w", err)
	}
	if qps > 0 {
		config.QPS = qps
	}
	if burst > 0 {
		config.Burst = burst
	}
	return config, nil
}

// NewClient creates a controller-runtime client for config.
func NewClient(config *rest.Config, scheme *runtime.Scheme) (client.Client, error) {
	c, err := client.New(config, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	return c, nil
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	Namespace string

	// QPS and Burst bound the request rate of the gateway as a whole, across
	// all concurrent workers. Zero QPS disables the limiter.
	QPS   float64
	Burst int
}

// Gateway implements cluster.Gateway against a Kubernetes namespace.
type Gateway struct {
	client    client.Client
	namespace string
	renderer  *Renderer
	limiter   *rate.Limiter
}

var (
	_ cluster.Gateway     = (*Gateway)(nil)
	_ cluster.Initializer = (*Gateway)(nil)
)

// NewGateway creates a gateway that renders builds with renderer and applies
// them through c.
func NewGateway(c client.Client, renderer *Renderer, opts GatewayOptions) *Gateway {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.QPS > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.QPS), burst)
	}
	return &Gateway{
		client:    c,
		namespace: opts.Namespace,
		renderer:  renderer,
		limiter:   limiter,
	}
}

// Init verifies that the target namespace exists and is reachable.
func (g *Gateway) Init(ctx context.Context) error {
	ns := &corev1.Namespace{}
	if err := g.client.Get(ctx, client.ObjectKey{Name: g.namespace}, ns); err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("namespace %q does not exist", g.namespace)
		}
		return fmt.Errorf("failed to reach namespace %q: %w", g.namespace, err)
	}
	logging.Info("KubernetesGateway", "Using namespace %s", g.namespace)
	return nil
}

// ApplyBuild creates or updates every object rendered for spec.
func (g *Gateway) ApplyBuild(ctx context.Context, id string, spec cluster.BuildSpec) error {
	spec.ID = id
	objects, err := g.renderer.Render(spec)
	if err != nil {
		return err
	}

	for _, obj := range objects {
		if err := g.apply(ctx, obj); err != nil {
			return classify(fmt.Errorf("failed to apply %s %s: %w", obj.GetKind(), obj.GetName(), err))
		}
	}
	logging.Debug("KubernetesGateway", "Applied %d objects for %s (generation %d, replicas %d)",
		len(objects), id, spec.Generation, spec.Replicas)
	return nil
}

// apply is a create-or-update that retries on write conflicts.
func (g *Gateway) apply(ctx context.Context, obj *unstructured.Unstructured) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		existing := &unstructured.Unstructured{}
		existing.SetGroupVersionKind(obj.GroupVersionKind())
		err := g.client.Get(ctx, client.ObjectKeyFromObject(obj), existing)
		if apierrors.IsNotFound(err) {
			return g.client.Create(ctx, obj.DeepCopy())
		}
		if err != nil {
			return err
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		desired := obj.DeepCopy()
		desired.SetResourceVersion(existing.GetResourceVersion())
		return g.client.Update(ctx, desired)
	})
}

// DeleteBuild deletes every object labelled with the build id.
func (g *Gateway) DeleteBuild(ctx context.Context, id string) error {
	deleted := 0
	for _, gvk := range managedKinds {
		items, err := g.list(ctx, gvk, id)
		if err != nil {
			return fmt.Errorf("failed to list %s objects of %s: %w", gvk.Kind, id, err)
		}
		for i := range items {
			items[i].SetGroupVersionKind(gvk)
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
			err := g.client.Delete(ctx, &items[i], client.PropagationPolicy(metav1.DeletePropagationBackground))
			if err != nil && !apierrors.IsNotFound(err) {
				return fmt.Errorf("failed to delete %s %s: %w", gvk.Kind, items[i].GetName(), err)
			}
			deleted++
		}
	}
	logging.Debug("KubernetesGateway", "Deleted %d objects of %s", deleted, id)
	return nil
}

// GetStatus aggregates the state of the build's Deployments.
func (g *Gateway) GetStatus(ctx context.Context, id string) (cluster.Observation, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return cluster.Observation{}, err
	}
	deployments := &appsv1.DeploymentList{}
	if err := g.client.List(ctx, deployments, g.selector(id)...); err != nil {
		return cluster.Observation{}, fmt.Errorf("failed to list deployments of %s: %w", id, err)
	}

	if len(deployments.Items) == 0 {
		// Leftovers (e.g. a Service still terminating) mean deletion is not
		// complete yet.
		for _, gvk := range managedKinds[1:] {
			items, err := g.list(ctx, gvk, id)
			if err != nil {
				return cluster.Observation{}, fmt.Errorf("failed to list %s objects of %s: %w", gvk.Kind, id, err)
			}
			if len(items) > 0 {
				return cluster.Observation{
					Status:  cluster.StatusPending,
					Message: fmt.Sprintf("%s %s still exists", gvk.Kind, items[0].GetName()),
				}, nil
			}
		}
		return cluster.Observation{Status: cluster.StatusAbsent}, nil
	}

	return aggregate(deployments.Items), nil
}

func (g *Gateway) list(ctx context.Context, gvk schema.GroupVersionKind, id string) ([]unstructured.Unstructured, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(gvk.GroupVersion().WithKind(gvk.Kind + "List"))
	if err := g.client.List(ctx, list, g.selector(id)...); err != nil {
		// Clusters without the Ingress API (or any optional kind) simply
		// have nothing of that kind.
		if apierrors.IsNotFound(err) || meta.IsNoMatchError(err) {
			return nil, nil
		}
		return nil, err
	}
	return list.Items, nil
}

func (g *Gateway) selector(id string) []client.ListOption {
	return []client.ListOption{
		client.InNamespace(g.namespace),
		client.MatchingLabels{LabelBuild: id},
	}
}

// aggregate folds per-Deployment observations into one. Errors win over
// pending, and ready or stopped is only reported when every Deployment
// agrees.
func aggregate(deployments []appsv1.Deployment) cluster.Observation {
	var (
		ready, stopped int
		pending        []string
	)
	for i := range deployments {
		obs := observeDeployment(&deployments[i])
		switch obs.Status {
		case cluster.StatusError:
			return obs
		case cluster.StatusReady:
			ready++
		case cluster.StatusStopped:
			stopped++
		default:
			pending = append(pending, obs.Message)
		}
	}

	switch {
	case len(pending) > 0:
		return cluster.Observation{Status: cluster.StatusPending, Message: strings.Join(pending, "; ")}
	case ready == len(deployments):
		return cluster.Observation{Status: cluster.StatusReady}
	case stopped == len(deployments):
		return cluster.Observation{Status: cluster.StatusStopped}
	default:
		return cluster.Observation{Status: cluster.StatusPending, Message: "deployments are being scaled"}
	}
}

func observeDeployment(d *appsv1.Deployment) cluster.Observation {
	if d.DeletionTimestamp != nil {
		return cluster.Observation{Status: cluster.StatusPending, Message: fmt.Sprintf("%s is being deleted", d.Name)}
	}

	for _, cond := range d.Status.Conditions {
		if cond.Type == appsv1.DeploymentProgressing &&
			cond.Status == corev1.ConditionFalse &&
			cond.Reason == "ProgressDeadlineExceeded" {
			return cluster.Observation{Status: cluster.StatusError, Message: fmt.Sprintf("%s: %s", d.Name, cond.Message)}
		}
		if cond.Type == appsv1.DeploymentReplicaFailure && cond.Status == corev1.ConditionTrue {
			return cluster.Observation{Status: cluster.StatusError, Message: fmt.Sprintf("%s: %s", d.Name, cond.Message)}
		}
	}

	desired := int32(1)
	if d.Spec.Replicas != nil {
		desired = *d.Spec.Replicas
	}

	if desired == 0 {
		if d.Status.Replicas > 0 {
			return cluster.Observation{
				Status:  cluster.StatusPending,
				Message: fmt.Sprintf("%s has %d replicas left", d.Name, d.Status.Replicas),
			}
		}
		return cluster.Observation{Status: cluster.StatusStopped}
	}

	if d.Status.ObservedGeneration >= d.Generation &&
		d.Status.UpdatedReplicas >= desired &&
		d.Status.ReadyReplicas >= desired {
		return cluster.Observation{Status: cluster.StatusReady}
	}
	return cluster.Observation{
		Status:  cluster.StatusPending,
		Message: fmt.Sprintf("%s has %d/%d ready replicas", d.Name, d.Status.ReadyReplicas, desired),
	}
}

// classify marks API errors that a retry cannot fix as terminal.
func classify(err error) error {
	if apierrors.IsInvalid(err) || apierrors.IsBadRequest(err) || meta.IsNoMatchError(err) {
		return cluster.Terminal(err)
	}
	return err
}
