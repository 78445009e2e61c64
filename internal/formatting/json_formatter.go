package formatting

import (
	"fmt"
	"io"

	"sigs.k8s.io/yaml"

	"runboat/internal/build"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct{}

// FormatBuilds writes builds as an indented JSON array.
func (f *JSONFormatter) FormatBuilds(w io.Writer, builds []build.Status) error {
	if builds == nil {
		builds = []build.Status{}
	}
	_, err := fmt.Fprintln(w, PrettyJSON(builds))
	return err
}

// YAMLFormatter provides YAML output formatting. Field names follow the JSON
// API.
type YAMLFormatter struct{}

// FormatBuilds writes builds as a YAML list.
func (f *YAMLFormatter) FormatBuilds(w io.Writer, builds []build.Status) error {
	if builds == nil {
		builds = []build.Status{}
	}
	data, err := yaml.Marshal(builds)
	if err != nil {
		return fmt.Errorf("failed to marshal builds: %w", err)
	}
	_, err = w.Write(data)
	return err
}
