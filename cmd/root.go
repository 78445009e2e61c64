package cmd

import (
	"errors"
	"os"

	"runboat/internal/cli"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeUnreachable indicates the controller could not be contacted.
	ExitCodeUnreachable = 2
	// ExitCodeNotFound indicates the requested build does not exist.
	ExitCodeNotFound = 3
)

// rootCmd represents the base command for the runboat application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "runboat",
	Short: "Run preview builds of branches and pull requests on Kubernetes",
	Long: `runboat keeps ephemeral preview environments for repository branches
and pull requests running in a Kubernetes cluster. It starts builds when
they are pushed or accessed, stops the least recently used ones to stay
within a budget, and drops them once their branch or pull request is closed.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "runboat version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var connErr *cli.ConnectionError
	if errors.As(err, &connErr) {
		return ExitCodeUnreachable
	}

	if cli.IsNotFound(err) {
		return ExitCodeNotFound
	}

	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
