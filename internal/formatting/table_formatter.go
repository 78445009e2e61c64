package formatting

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"runboat/internal/build"
	runboatstrings "runboat/pkg/strings"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// FormatBuilds renders one row per build.
func (f *TableFormatter) FormatBuilds(w io.Writer, builds []build.Status) error {
	if len(builds) == 0 {
		_, err := fmt.Fprintln(w, f.colorize(text.FgYellow, "No builds found"))
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "REPO", "REF", "COMMIT", "STATE", "DESIRED", "LAST ACTIVITY", "ERROR"})

	now := f.options.Now()
	counts := make(map[build.LifecycleState]int)
	for _, b := range builds {
		counts[b.LifecycleState]++
		t.AppendRow(table.Row{
			b.ID,
			b.Repo,
			refLabel(b),
			shortCommit(b.Commit),
			f.stateLabel(b.LifecycleState),
			string(b.DesiredState),
			humanizeSince(now, b.LastActivityAt),
			runboatstrings.SingleLine(b.LastError, runboatstrings.DefaultErrorMaxLen),
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d started", counts[build.StateStarted]), "", "", fmt.Sprintf("%d total", len(builds))})
	t.Render()
	return nil
}

func (f *TableFormatter) colorize(color text.Color, s string) string {
	if !f.options.Color {
		return s
	}
	return color.Sprint(s)
}

func (f *TableFormatter) stateLabel(state build.LifecycleState) string {
	switch state {
	case build.StateStarted:
		return f.colorize(text.FgGreen, string(state))
	case build.StateFailed:
		return f.colorize(text.FgRed, string(state))
	case build.StateDeploying, build.StateStopping, build.StateDropping:
		return f.colorize(text.FgYellow, string(state))
	default:
		return string(state)
	}
}

func refLabel(b build.Status) string {
	if b.Target != "" {
		return fmt.Sprintf("%s (%s)", b.Ref, b.Target)
	}
	return b.Ref
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}

	return s[:width-3] + "..."
}

// humanizeSince renders the coarsest useful unit, e.g. "3m ago".
func humanizeSince(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}
