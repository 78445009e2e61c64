package k8s

import (
	"testing"

	"github.com/stretchr/testify/assert"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	toolscache "k8s.io/client-go/tools/cache"
)

func buildDeployment(id string) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      id,
			Namespace: testNamespace,
			Labels:    map[string]string{LabelBuild: id, LabelManagedBy: ManagerName},
		},
	}
}

func runningWatcher(notified *[]string) *Watcher {
	w := NewWatcher(nil, testNamespace, NewScheme())
	w.running = true
	w.notify = func(id string) { *notified = append(*notified, id) }
	return w
}

func TestWatcherEventHandler(t *testing.T) {
	var notified []string
	w := runningWatcher(&notified)
	handler := w.eventHandler()

	handler.OnAdd(buildDeployment("a"), false)
	handler.OnUpdate(buildDeployment("b"), buildDeployment("b"))
	handler.OnDelete(buildDeployment("c"))
	handler.OnDelete(toolscache.DeletedFinalStateUnknown{Key: "previews/d", Obj: buildDeployment("d")})

	assert.Equal(t, []string{"a", "b", "c", "d"}, notified)
}

func TestWatcherIgnoresForeignObjects(t *testing.T) {
	var notified []string
	w := runningWatcher(&notified)
	handler := w.eventHandler()

	unlabelled := buildDeployment("x")
	unlabelled.Labels = nil
	handler.OnAdd(unlabelled, false)
	handler.OnDelete(toolscache.DeletedFinalStateUnknown{Key: "previews/y", Obj: "not an object"})

	assert.Empty(t, notified)
}

func TestWatcherNotRunning(t *testing.T) {
	var notified []string
	w := runningWatcher(&notified)
	w.Stop()

	w.eventHandler().OnAdd(buildDeployment("a"), false)
	assert.Empty(t, notified)

	// Stopping twice is fine.
	w.Stop()
}
