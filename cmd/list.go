package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"runboat/internal/build"
	"runboat/internal/cli"
	"runboat/internal/formatting"

	"github.com/spf13/cobra"
)

// clientOptions are the flags shared by every command that talks to a
// running controller.
type clientOptions struct {
	endpoint string
	output   string
	noColor  bool
}

func (o *clientOptions) addFlags(cmd *cobra.Command, withOutput bool) {
	cmd.Flags().StringVar(&o.endpoint, "endpoint", "", fmt.Sprintf("Controller URL (default $%s or %s)", cli.EnvEndpoint, cli.DefaultEndpoint))
	if withOutput {
		cmd.Flags().StringVarP(&o.output, "output", "o", string(formatting.FormatTable), "Output format: table, json or yaml")
		cmd.Flags().BoolVar(&o.noColor, "no-color", false, "Disable colored table output")
	}
}

func (o *clientOptions) client() *cli.Client {
	return cli.NewClient(o.endpoint, nil)
}

func (o *clientOptions) formatter() (formatting.Formatter, error) {
	color := !o.noColor && os.Getenv("NO_COLOR") == ""
	return formatting.NewFormatter(formatting.Options{
		Format: formatting.OutputFormat(strings.ToLower(o.output)),
		Color:  color,
	})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newListCmd creates the list command.
func newListCmd() *cobra.Command {
	opts := &clientOptions{}
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the builds known to a running controller",
		Long: `Lists every build the controller tracks with its lifecycle state,
desired state and last activity.

Examples:
  runboat list
  runboat list --state STARTED
  runboat list -o json --endpoint http://runboat.internal:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := opts.formatter()
			if err != nil {
				return err
			}

			builds, err := opts.client().ListBuilds(commandContext(cmd))
			if err != nil {
				return err
			}

			builds = filterByState(builds, state)
			sort.Slice(builds, func(i, j int) bool { return builds[i].ID < builds[j].ID })
			return formatter.FormatBuilds(cmd.OutOrStdout(), builds)
		},
	}

	opts.addFlags(cmd, true)
	cmd.Flags().StringVar(&state, "state", "", "Only show builds in this lifecycle state")
	return cmd
}

// newGetCmd creates the get command.
func newGetCmd() *cobra.Command {
	opts := &clientOptions{}

	cmd := &cobra.Command{
		Use:   "get BUILD_ID",
		Short: "Show one build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := opts.formatter()
			if err != nil {
				return err
			}

			status, err := opts.client().GetBuild(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return formatter.FormatBuilds(cmd.OutOrStdout(), []build.Status{status})
		},
	}

	opts.addFlags(cmd, true)
	return cmd
}

// filterByState keeps the builds whose lifecycle state matches state,
// case-insensitively. An empty state keeps everything.
func filterByState(builds []build.Status, state string) []build.Status {
	if state == "" {
		return builds
	}
	filtered := make([]build.Status, 0, len(builds))
	for _, b := range builds {
		if strings.EqualFold(string(b.LifecycleState), state) {
			filtered = append(filtered, b)
		}
	}
	return filtered
}

func init() {
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newGetCmd())
}
