// Package formatting renders build listings for the command line in table,
// JSON or YAML form.
package formatting

import (
	"fmt"
	"io"
	"time"

	"runboat/internal/build"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
	FormatTable OutputFormat = "table" // Rich table output
)

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Color  bool // Enable colored output

	// Now anchors relative times in tables. Defaults to time.Now.
	Now func() time.Time
}

// Formatter writes build listings.
type Formatter interface {
	FormatBuilds(w io.Writer, builds []build.Status) error
}

// NewFormatter returns the formatter for options.Format.
func NewFormatter(options Options) (Formatter, error) {
	if options.Now == nil {
		options.Now = time.Now
	}
	switch options.Format {
	case FormatTable, "":
		return &TableFormatter{options: options}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (use table, json or yaml)", options.Format)
	}
}
