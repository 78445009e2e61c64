package cmd

import (
	"context"
	"fmt"

	"runboat/internal/app"
	"runboat/internal/config"

	"github.com/spf13/cobra"
)

// serveDebug enables verbose logging regardless of the configured level.
var serveDebug bool

// serveLocal swaps the Kubernetes gateway for an in-memory one.
var serveLocal bool

// serveConfigPath is the runboat configuration file. A missing file means
// built-in defaults.
var serveConfigPath string

// serveCmd runs the controller: the reconciliation loop, the Kubernetes
// watcher and the HTTP API with the GitHub webhook.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the runboat controller",
	Long: `Starts the runboat controller and its HTTP API.

The controller reconciles builds every interval and whenever a webhook,
an activity report or a change to a build's workloads arrives. It keeps
at most controller.maxStarted builds running and stops the least recently
used ones when the budget is exhausted.

Configuration:
  runboat reads runboat.yaml from the current directory unless --config is
  given. Changes to the repos section and to the controller limits are
  applied without a restart.

  The GitHub webhook secret can be supplied through the
  RUNBOAT_GITHUB_WEBHOOK_SECRET environment variable.

Use --local to run without a cluster. Builds are then "deployed" to an
in-memory gateway that reports them ready immediately.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, serveLocal, serveConfigPath)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveLocal, "local", false, "Use an in-memory cluster instead of Kubernetes")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath, "Path to the runboat configuration file")
}
