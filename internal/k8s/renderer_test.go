package k8s

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"runboat/internal/cluster"
)

func testSpec() cluster.BuildSpec {
	return cluster.BuildSpec{
		ID:         "acme-shop-main",
		Repo:       "Acme/Shop",
		Ref:        "main",
		Commit:     "0123456789abcdef0123456789abcdef01234567",
		Generation: 3,
		Replicas:   1,
	}
}

func findObject(t *testing.T, objects []*unstructured.Unstructured, kind string) *unstructured.Unstructured {
	t.Helper()
	for _, obj := range objects {
		if obj.GetKind() == kind {
			return obj
		}
	}
	t.Fatalf("no %s rendered", kind)
	return nil
}

func TestRendererDefaultTemplate(t *testing.T) {
	r, err := NewRenderer(RendererOptions{Namespace: "previews"})
	require.NoError(t, err)

	objects, err := r.Render(testSpec())
	require.NoError(t, err)
	require.Len(t, objects, 2)

	dep := findObject(t, objects, "Deployment")
	assert.Equal(t, "acme-shop-main", dep.GetName())
	assert.Equal(t, "previews", dep.GetNamespace())
	assert.Equal(t, "acme-shop-main", dep.GetLabels()[LabelBuild])
	assert.Equal(t, ManagerName, dep.GetLabels()[LabelManagedBy])
	assert.Equal(t, "3", dep.GetAnnotations()[AnnotationGeneration])
	assert.Equal(t, "Acme/Shop", dep.GetAnnotations()[AnnotationRepo])
	assert.NotContains(t, dep.GetAnnotations(), AnnotationTarget)

	replicas, found, err := unstructured.NestedInt64(dep.Object, "spec", "replicas")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), replicas)

	containers, found, err := unstructured.NestedSlice(dep.Object, "spec", "template", "spec", "containers")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, containers, 1)
	container := containers[0].(map[string]interface{})
	assert.Equal(t, "ghcr.io/acme/shop:0123456789abcdef0123456789abcdef01234567", container["image"])

	svc := findObject(t, objects, "Service")
	assert.Equal(t, "previews", svc.GetNamespace())
	assert.Equal(t, "acme-shop-main", svc.GetLabels()[LabelBuild])
}

func TestRendererStoppedBuild(t *testing.T) {
	r, err := NewRenderer(RendererOptions{Namespace: "previews"})
	require.NoError(t, err)

	spec := testSpec()
	spec.Replicas = 0
	spec.Target = "16.0"
	objects, err := r.Render(spec)
	require.NoError(t, err)

	dep := findObject(t, objects, "Deployment")
	replicas, _, _ := unstructured.NestedInt64(dep.Object, "spec", "replicas")
	assert.Equal(t, int64(0), replicas)
	assert.Equal(t, "16.0", dep.GetAnnotations()[AnnotationTarget])
}

func TestRendererImagePatternAndValues(t *testing.T) {
	r, err := NewRenderer(RendererOptions{
		Namespace:    "previews",
		ImagePattern: `registry.local/{{ .Build.Repo | lower | replace "/" "-" }}:{{ .Build.Commit | trunc 7 }}`,
		Values:       map[string]string{"port": "8080"},
	})
	require.NoError(t, err)

	objects, err := r.Render(testSpec())
	require.NoError(t, err)

	dep := findObject(t, objects, "Deployment")
	containers, _, _ := unstructured.NestedSlice(dep.Object, "spec", "template", "spec", "containers")
	container := containers[0].(map[string]interface{})
	assert.Equal(t, "registry.local/acme-shop:0123456", container["image"])

	ports := container["ports"].([]interface{})
	assert.Equal(t, int64(8080), ports[0].(map[string]interface{})["containerPort"])
}

func TestRendererCustomTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build.yaml")
	tmpl := `
# leading comment document
---
apiVersion: v1
kind: ConfigMap
metadata:
  name: {{ .Build.ID }}-env
  namespace: somewhere-else
  labels:
    team: qa
data:
  commit: {{ .Build.Commit | quote }}
{{- if .Values.withIngress }}
---
apiVersion: networking.k8s.io/v1
kind: Ingress
metadata:
  name: {{ .Build.ID }}
{{- end }}
`
	require.NoError(t, os.WriteFile(path, []byte(tmpl), 0o600))

	r, err := NewRenderer(RendererOptions{Namespace: "previews", TemplatePath: path})
	require.NoError(t, err)

	objects, err := r.Render(testSpec())
	require.NoError(t, err)
	require.Len(t, objects, 1)

	cm := objects[0]
	assert.Equal(t, "acme-shop-main-env", cm.GetName())
	assert.Equal(t, "previews", cm.GetNamespace(), "namespace is forced")
	assert.Equal(t, "qa", cm.GetLabels()["team"], "template labels are kept")
	assert.Equal(t, "acme-shop-main", cm.GetLabels()[LabelBuild])
}

func TestRendererErrors(t *testing.T) {
	t.Run("missing namespace", func(t *testing.T) {
		_, err := NewRenderer(RendererOptions{})
		assert.Error(t, err)
	})

	t.Run("missing template file", func(t *testing.T) {
		_, err := NewRenderer(RendererOptions{Namespace: "ns", TemplatePath: "/does/not/exist.yaml"})
		assert.Error(t, err)
	})

	t.Run("unparsable template", func(t *testing.T) {
		_, err := NewRenderer(RendererOptions{Namespace: "ns", ImagePattern: "{{ .Build.Repo"})
		assert.Error(t, err)
	})

	writeTemplate := func(t *testing.T, content string) *Renderer {
		path := filepath.Join(t.TempDir(), "build.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		r, err := NewRenderer(RendererOptions{Namespace: "ns", TemplatePath: path})
		require.NoError(t, err)
		return r
	}

	t.Run("execution failure is terminal", func(t *testing.T) {
		r := writeTemplate(t, `{{ fail "no luck" }}`)
		_, err := r.Render(testSpec())
		require.Error(t, err)
		assert.True(t, cluster.IsTerminal(err))
	})

	t.Run("object without kind is terminal", func(t *testing.T) {
		r := writeTemplate(t, "apiVersion: v1\nmetadata:\n  name: x\n")
		_, err := r.Render(testSpec())
		require.Error(t, err)
		assert.True(t, cluster.IsTerminal(err))
	})

	t.Run("object without name is terminal", func(t *testing.T) {
		r := writeTemplate(t, "apiVersion: v1\nkind: ConfigMap\n")
		_, err := r.Render(testSpec())
		require.Error(t, err)
		assert.True(t, cluster.IsTerminal(err))
	})

	t.Run("empty output is terminal", func(t *testing.T) {
		r := writeTemplate(t, "---\n# nothing\n")
		_, err := r.Render(testSpec())
		require.Error(t, err)
		assert.True(t, cluster.IsTerminal(err))
	})
}

func TestSplitDocuments(t *testing.T) {
	docs := splitDocuments("a: 1\n---\n\n---\nb: 2\n  ---  \nc: 3")
	assert.Equal(t, []string{"a: 1\n", "b: 2\n", "c: 3\n"}, docs)
}
