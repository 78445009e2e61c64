package cmd

import (
	"fmt"

	"runboat/internal/build"
	"runboat/internal/cli"

	"github.com/spf13/cobra"
)

// newRetryCmd creates the retry command.
func newRetryCmd() *cobra.Command {
	opts := &clientOptions{}

	cmd := &cobra.Command{
		Use:   "retry BUILD_ID",
		Short: "Deploy a failed build again",
		Long: `Asks the controller to deploy a FAILED build again on its next pass.

The build still has to wait for a free slot in the budget like any other
start request. Builds that are not FAILED are left alone and the command
exits with an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := opts.client().Retry(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Retry requested for %s", status.ID)))
			return nil
		},
	}

	opts.addFlags(cmd, false)
	return cmd
}

// newActivityCmd creates the activity command.
func newActivityCmd() *cobra.Command {
	opts := &clientOptions{}

	cmd := &cobra.Command{
		Use:   "activity BUILD_ID",
		Short: "Record access to a build",
		Long: `Records access to a build the way a visit to its preview would.

A STARTED build is kept away from idle stops and eviction for longer.
A STOPPED build is queued to start again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := opts.client().Activity(commandContext(cmd), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if status.LifecycleState == build.StateStopped {
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Start requested for %s", status.ID)))
				return nil
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Activity recorded for %s (%s)", status.ID, status.LifecycleState)))
			return nil
		},
	}

	opts.addFlags(cmd, false)
	return cmd
}

func init() {
	rootCmd.AddCommand(newRetryCmd())
	rootCmd.AddCommand(newActivityCmd())
}
