package k8s

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	"runboat/internal/cluster"
)

// Labels and annotations stamped on every rendered object.
const (
	LabelBuild     = "runboat/build"
	LabelManagedBy = "app.kubernetes.io/managed-by"
	ManagerName    = "runboat"

	AnnotationRepo       = "runboat/repo"
	AnnotationRef        = "runboat/ref"
	AnnotationTarget     = "runboat/target"
	AnnotationCommit     = "runboat/commit"
	AnnotationGeneration = "runboat/generation"
)

// DefaultImagePattern derives the image from the repository and commit.
const DefaultImagePattern = `ghcr.io/{{ lower .Build.Repo }}:{{ .Build.Commit }}`

//go:embed templates/build.yaml.tmpl
var defaultTemplate string

// RendererOptions configures a Renderer.
type RendererOptions struct {
	Namespace string

	// TemplatePath points to a custom workload template. Empty uses the
	// embedded default.
	TemplatePath string

	// ImagePattern is a template producing the container image reference.
	ImagePattern string

	// Values are free-form settings made available to templates as .Values.
	Values map[string]string
}

// TemplateData is the value templates are executed against.
type TemplateData struct {
	Build     cluster.BuildSpec
	Namespace string
	Image     string
	Values    map[string]string
}

// Renderer turns a build spec into Kubernetes objects.
type Renderer struct {
	namespace string
	workloads *template.Template
	image     *template.Template
	values    map[string]string
}

// NewRenderer parses the workload and image templates.
func NewRenderer(opts RendererOptions) (*Renderer, error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}

	source := defaultTemplate
	name := "build.yaml.tmpl"
	if opts.TemplatePath != "" {
		data, err := os.ReadFile(opts.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", opts.TemplatePath, err)
		}
		source = string(data)
		name = opts.TemplatePath
	}

	workloads, err := parseTemplate(name, source)
	if err != nil {
		return nil, err
	}

	pattern := opts.ImagePattern
	if pattern == "" {
		pattern = DefaultImagePattern
	}
	image, err := parseTemplate("image", pattern)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(opts.Values))
	for k, v := range opts.Values {
		values[k] = v
	}

	return &Renderer{
		namespace: opts.Namespace,
		workloads: workloads,
		image:     image,
		values:    values,
	}, nil
}

func parseTemplate(name, source string) (*template.Template, error) {
	tmpl, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=zero").
		Parse(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return tmpl, nil
}

// Render executes the templates for spec. Rendering failures are terminal:
// the same spec will keep failing until the template or the build changes.
func (r *Renderer) Render(spec cluster.BuildSpec) ([]*unstructured.Unstructured, error) {
	data := TemplateData{
		Build:     spec,
		Namespace: r.namespace,
		Values:    r.values,
	}

	var image bytes.Buffer
	if err := r.image.Execute(&image, data); err != nil {
		return nil, cluster.Terminal(fmt.Errorf("failed to render image for %s: %w", spec.ID, err))
	}
	data.Image = strings.TrimSpace(image.String())

	var out bytes.Buffer
	if err := r.workloads.Execute(&out, data); err != nil {
		return nil, cluster.Terminal(fmt.Errorf("failed to render workloads for %s: %w", spec.ID, err))
	}

	var objects []*unstructured.Unstructured
	for i, doc := range splitDocuments(out.String()) {
		obj, err := decodeObject(doc)
		if err != nil {
			return nil, cluster.Terminal(fmt.Errorf("invalid document %d rendered for %s: %w", i, spec.ID, err))
		}
		if obj == nil {
			continue
		}
		r.stamp(obj, spec)
		objects = append(objects, obj)
	}
	if len(objects) == 0 {
		return nil, cluster.Terminal(fmt.Errorf("template rendered no objects for %s", spec.ID))
	}
	return objects, nil
}

// stamp forces the namespace and the ownership metadata so that objects can
// always be found again by label.
func (r *Renderer) stamp(obj *unstructured.Unstructured, spec cluster.BuildSpec) {
	obj.SetNamespace(r.namespace)

	labels := obj.GetLabels()
	if labels == nil {
		labels = make(map[string]string, 2)
	}
	labels[LabelBuild] = spec.ID
	labels[LabelManagedBy] = ManagerName
	obj.SetLabels(labels)

	annotations := obj.GetAnnotations()
	if annotations == nil {
		annotations = make(map[string]string, 5)
	}
	annotations[AnnotationRepo] = spec.Repo
	annotations[AnnotationRef] = spec.Ref
	annotations[AnnotationCommit] = spec.Commit
	annotations[AnnotationGeneration] = strconv.FormatInt(spec.Generation, 10)
	if spec.Target != "" {
		annotations[AnnotationTarget] = spec.Target
	}
	obj.SetAnnotations(annotations)
}

func splitDocuments(rendered string) []string {
	var (
		docs    []string
		current strings.Builder
	)
	flush := func() {
		if strings.TrimSpace(current.String()) != "" {
			docs = append(docs, current.String())
		}
		current.Reset()
	}
	for _, line := range strings.Split(rendered, "\n") {
		if strings.TrimSpace(line) == "---" {
			flush()
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()
	return docs
}

func decodeObject(doc string) (*unstructured.Unstructured, error) {
	data, err := yaml.YAMLToJSON([]byte(doc))
	if err != nil {
		return nil, err
	}
	// Documents made only of comments, e.g. a disabled conditional block.
	if string(bytes.TrimSpace(data)) == "null" {
		return nil, nil
	}
	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	if obj.GetName() == "" {
		return nil, fmt.Errorf("%s has no metadata.name", obj.GetKind())
	}
	return obj, nil
}
