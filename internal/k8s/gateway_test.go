package k8s

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	"runboat/internal/cluster"
)

const testNamespace = "previews"

func newTestGateway(t *testing.T, funcs *interceptor.Funcs, objs ...client.Object) (*Gateway, client.Client) {
	t.Helper()
	builder := fake.NewClientBuilder().WithScheme(NewScheme()).WithObjects(objs...)
	if funcs != nil {
		builder = builder.WithInterceptorFuncs(*funcs)
	}
	c := builder.Build()

	renderer, err := NewRenderer(RendererOptions{Namespace: testNamespace})
	require.NoError(t, err)
	return NewGateway(c, renderer, GatewayOptions{Namespace: testNamespace}), c
}

func getDeployment(t *testing.T, c client.Client, name string) *appsv1.Deployment {
	t.Helper()
	dep := &appsv1.Deployment{}
	require.NoError(t, c.Get(context.Background(), client.ObjectKey{Namespace: testNamespace, Name: name}, dep))
	return dep
}

func setDeploymentStatus(t *testing.T, c client.Client, name string, status appsv1.DeploymentStatus) {
	t.Helper()
	dep := getDeployment(t, c, name)
	dep.Status = status
	require.NoError(t, c.Status().Update(context.Background(), dep))
}

func TestGatewayInit(t *testing.T) {
	ctx := context.Background()

	t.Run("namespace exists", func(t *testing.T) {
		g, _ := newTestGateway(t, nil, &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: testNamespace}})
		assert.NoError(t, g.Init(ctx))
	})

	t.Run("namespace missing", func(t *testing.T) {
		g, _ := newTestGateway(t, nil)
		err := g.Init(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})
}

func TestGatewayApplyCreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	g, c := newTestGateway(t, nil)
	spec := testSpec()

	require.NoError(t, g.ApplyBuild(ctx, spec.ID, spec))

	dep := getDeployment(t, c, spec.ID)
	require.NotNil(t, dep.Spec.Replicas)
	assert.Equal(t, int32(1), *dep.Spec.Replicas)
	assert.Equal(t, spec.ID, dep.Labels[LabelBuild])
	assert.Equal(t, "3", dep.Annotations[AnnotationGeneration])

	svc := &corev1.Service{}
	require.NoError(t, c.Get(ctx, client.ObjectKey{Namespace: testNamespace, Name: spec.ID}, svc))

	// Applying again with a new generation and zero replicas updates in place.
	spec.Generation = 4
	spec.Replicas = 0
	require.NoError(t, g.ApplyBuild(ctx, spec.ID, spec))

	dep = getDeployment(t, c, spec.ID)
	assert.Equal(t, int32(0), *dep.Spec.Replicas)
	assert.Equal(t, "4", dep.Annotations[AnnotationGeneration])

	// Repeating the same request is harmless.
	require.NoError(t, g.ApplyBuild(ctx, spec.ID, spec))
}

func TestGatewayApplyUsesGivenID(t *testing.T) {
	ctx := context.Background()
	g, c := newTestGateway(t, nil)

	spec := testSpec()
	spec.ID = ""
	require.NoError(t, g.ApplyBuild(ctx, "acme-shop-main", spec))
	getDeployment(t, c, "acme-shop-main")
}

func TestGatewayApplyRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	conflicts := 2
	funcs := &interceptor.Funcs{
		Update: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.UpdateOption) error {
			if conflicts > 0 {
				conflicts--
				return apierrors.NewConflict(schema.GroupResource{Group: "apps", Resource: "deployments"}, obj.GetName(), errors.New("modified"))
			}
			return c.Update(ctx, obj, opts...)
		},
	}
	g, c := newTestGateway(t, funcs)
	spec := testSpec()

	require.NoError(t, g.ApplyBuild(ctx, spec.ID, spec))
	spec.Replicas = 0
	require.NoError(t, g.ApplyBuild(ctx, spec.ID, spec))

	assert.Equal(t, 0, conflicts)
	assert.Equal(t, int32(0), *getDeployment(t, c, spec.ID).Spec.Replicas)
}

func TestGatewayApplyErrorClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid object is terminal", func(t *testing.T) {
		g, _ := newTestGateway(t, &interceptor.Funcs{
			Create: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.CreateOption) error {
				return apierrors.NewInvalid(schema.GroupKind{Group: "apps", Kind: "Deployment"}, obj.GetName(),
					field.ErrorList{field.Invalid(field.NewPath("spec", "replicas"), -1, "must be positive")})
			},
		})
		err := g.ApplyBuild(ctx, "acme-shop-main", testSpec())
		require.Error(t, err)
		assert.True(t, cluster.IsTerminal(err))
	})

	t.Run("server errors are transient", func(t *testing.T) {
		g, _ := newTestGateway(t, &interceptor.Funcs{
			Create: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.CreateOption) error {
				return apierrors.NewServiceUnavailable("etcd is sad")
			},
		})
		err := g.ApplyBuild(ctx, "acme-shop-main", testSpec())
		require.Error(t, err)
		assert.False(t, cluster.IsTerminal(err))
	})
}

func TestGatewayStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		replicas int32
		status   appsv1.DeploymentStatus
		want     cluster.Status
	}{
		{
			name:     "no replicas ready yet",
			replicas: 1,
			status:   appsv1.DeploymentStatus{Replicas: 1},
			want:     cluster.StatusPending,
		},
		{
			name:     "ready",
			replicas: 1,
			status:   appsv1.DeploymentStatus{Replicas: 1, UpdatedReplicas: 1, ReadyReplicas: 1, AvailableReplicas: 1},
			want:     cluster.StatusReady,
		},
		{
			name:     "scaled to zero",
			replicas: 0,
			status:   appsv1.DeploymentStatus{},
			want:     cluster.StatusStopped,
		},
		{
			name:     "scaling down",
			replicas: 0,
			status:   appsv1.DeploymentStatus{Replicas: 1, ReadyReplicas: 1},
			want:     cluster.StatusPending,
		},
		{
			name:     "progress deadline exceeded",
			replicas: 1,
			status: appsv1.DeploymentStatus{
				Replicas: 1,
				Conditions: []appsv1.DeploymentCondition{{
					Type:    appsv1.DeploymentProgressing,
					Status:  corev1.ConditionFalse,
					Reason:  "ProgressDeadlineExceeded",
					Message: "ReplicaSet has timed out progressing",
				}},
			},
			want: cluster.StatusError,
		},
		{
			name:     "replica failure",
			replicas: 1,
			status: appsv1.DeploymentStatus{
				Conditions: []appsv1.DeploymentCondition{{
					Type:    appsv1.DeploymentReplicaFailure,
					Status:  corev1.ConditionTrue,
					Message: "exceeded quota",
				}},
			},
			want: cluster.StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, c := newTestGateway(t, nil)
			spec := testSpec()
			spec.Replicas = tt.replicas
			require.NoError(t, g.ApplyBuild(ctx, spec.ID, spec))
			setDeploymentStatus(t, c, spec.ID, tt.status)

			obs, err := g.GetStatus(ctx, spec.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, obs.Status, obs.Message)
		})
	}
}

func TestGatewayDelete(t *testing.T) {
	ctx := context.Background()
	g, c := newTestGateway(t, nil)

	spec := testSpec()
	other := testSpec()
	other.ID = "acme-shop-feature"
	require.NoError(t, g.ApplyBuild(ctx, spec.ID, spec))
	require.NoError(t, g.ApplyBuild(ctx, other.ID, other))

	obs, err := g.GetStatus(ctx, spec.ID)
	require.NoError(t, err)
	assert.NotEqual(t, cluster.StatusAbsent, obs.Status)

	require.NoError(t, g.DeleteBuild(ctx, spec.ID))

	obs, err = g.GetStatus(ctx, spec.ID)
	require.NoError(t, err)
	assert.Equal(t, cluster.StatusAbsent, obs.Status)

	// Deleting an absent build succeeds.
	require.NoError(t, g.DeleteBuild(ctx, spec.ID))

	// Other builds are untouched.
	getDeployment(t, c, other.ID)
}

func TestGatewayStatusLeftovers(t *testing.T) {
	ctx := context.Background()
	leftover := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "acme-shop-main",
			Namespace: testNamespace,
			Labels:    map[string]string{LabelBuild: "acme-shop-main"},
		},
	}
	g, _ := newTestGateway(t, nil, leftover)

	obs, err := g.GetStatus(ctx, "acme-shop-main")
	require.NoError(t, err)
	assert.Equal(t, cluster.StatusPending, obs.Status)
	assert.Contains(t, obs.Message, "Service")
}

func TestAggregate(t *testing.T) {
	one := int32(1)
	zero := int32(0)
	ready := appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web"},
		Spec:       appsv1.DeploymentSpec{Replicas: &one},
		Status:     appsv1.DeploymentStatus{UpdatedReplicas: 1, ReadyReplicas: 1},
	}
	stopped := appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "worker"},
		Spec:       appsv1.DeploymentSpec{Replicas: &zero},
	}
	stale := ready
	stale.Generation = 2
	stale.Status.ObservedGeneration = 1

	assert.Equal(t, cluster.StatusReady, aggregate([]appsv1.Deployment{ready, ready}).Status)
	assert.Equal(t, cluster.StatusStopped, aggregate([]appsv1.Deployment{stopped}).Status)
	assert.Equal(t, cluster.StatusPending, aggregate([]appsv1.Deployment{ready, stopped}).Status)
	assert.Equal(t, cluster.StatusPending, aggregate([]appsv1.Deployment{stale}).Status)

	now := metav1.Now()
	deleting := ready
	deleting.DeletionTimestamp = &now
	assert.Equal(t, cluster.StatusPending, aggregate([]appsv1.Deployment{deleting}).Status)
}

func TestGatewayRateLimiter(t *testing.T) {
	g := NewGateway(nil, nil, GatewayOptions{Namespace: "ns", QPS: 5})
	assert.Equal(t, 1, g.limiter.Burst())

	g = NewGateway(nil, nil, GatewayOptions{Namespace: "ns", QPS: 5, Burst: 10})
	assert.Equal(t, 10, g.limiter.Burst())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g = NewGateway(nil, nil, GatewayOptions{Namespace: "ns", QPS: 0.001, Burst: 1})
	require.True(t, g.limiter.Allow())
	_, err := g.GetStatus(ctx, "x")
	assert.Error(t, err, "a cancelled context aborts the wait for a token")
}
