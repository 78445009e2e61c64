package cli

import (
	"fmt"
	"os"
	"strings"
)

// DefaultEndpoint is where `runboat serve` listens with the default
// configuration.
const DefaultEndpoint = "http://localhost:8080"

// EnvEndpoint overrides DefaultEndpoint when no flag is given.
const EnvEndpoint = "RUNBOAT_ENDPOINT"

// ResolveEndpoint returns the controller URL to talk to. An explicit value
// wins over the environment, which wins over the default.
func ResolveEndpoint(explicitEndpoint string) string {
	endpoint := explicitEndpoint
	if endpoint == "" {
		endpoint = os.Getenv(EnvEndpoint)
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return strings.TrimRight(endpoint, "/")
}

// FormatError formats an error message for CLI output
func FormatError(err error) string {
	return fmt.Sprintf("Error: %v", err)
}

// FormatSuccess formats a success message for CLI output
func FormatSuccess(msg string) string {
	return fmt.Sprintf("✓ %s", msg)
}

// FormatWarning formats a warning message for CLI output
func FormatWarning(msg string) string {
	return fmt.Sprintf("⚠ %s", msg)
}
