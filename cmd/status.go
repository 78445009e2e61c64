package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"runboat/internal/api"
	"runboat/internal/cli"
	"runboat/internal/formatting"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	opts := &clientOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the control loop",
		Long: `Shows whether the controller is reconciling, its budget and the
outcome of the most recent pass.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := opts.client().Controller(commandContext(cmd))
			if err != nil {
				return err
			}
			return writeControllerStatus(cmd.OutOrStdout(), status, opts.output)
		},
	}

	opts.addFlags(cmd, true)
	return cmd
}

func writeControllerStatus(w io.Writer, status api.ControllerStatus, output string) error {
	switch formatting.OutputFormat(strings.ToLower(output)) {
	case formatting.FormatJSON:
		_, err := fmt.Fprintln(w, formatting.PrettyJSON(status))
		return err
	case formatting.FormatYAML:
		out, err := yaml.Marshal(status)
		if err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
		_, err = w.Write(out)
		return err
	case formatting.FormatTable, "":
	default:
		return fmt.Errorf("unsupported output format %q (use table, json or yaml)", output)
	}

	if status.Running {
		fmt.Fprintln(w, cli.FormatSuccess("Controller is running"))
	} else {
		fmt.Fprintln(w, cli.FormatWarning("Controller is not running"))
	}
	fmt.Fprintf(w, "Budget:             %d started builds\n", status.MaxStarted)
	fmt.Fprintf(w, "Idle timeout:       %s\n", status.IdleTimeout)
	fmt.Fprintf(w, "Retry failed after: %s\n", status.RetryFailedAfter)
	fmt.Fprintf(w, "Queued events:      %d\n", status.QueuedEvents)

	pass := status.LastPass
	if pass == nil {
		fmt.Fprintln(w, "Last pass:          none yet")
		return nil
	}
	fmt.Fprintf(w, "Last pass:          %s at %s (%s, %d processed, %d failed)\n",
		pass.ID, pass.StartedAt.Format("2006-01-02 15:04:05"), pass.Duration, pass.Processed, len(pass.Failed))

	states := make([]string, 0, len(pass.States))
	for state, n := range pass.States {
		if n > 0 {
			states = append(states, fmt.Sprintf("%s=%d", state, n))
		}
	}
	sort.Strings(states)
	if len(states) > 0 {
		fmt.Fprintf(w, "Builds:             %s\n", strings.Join(states, " "))
	}

	failed := make([]string, 0, len(pass.Failed))
	for id := range pass.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		fmt.Fprintf(w, "  %s: %s\n", id, pass.Failed[id])
	}
	return nil
}

func init() {
	rootCmd.AddCommand(newStatusCmd())
}
