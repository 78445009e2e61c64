// Package cli provides the client side of the runboat command line.
//
// The runboat subcommands other than serve talk to a running controller over
// its HTTP API. This package holds that client and the error types the
// commands map to exit codes.
//
// # Core Components
//
// Client wraps the /api/v1 endpoints:
//   - ListBuilds and GetBuild read build status
//   - Activity and Retry ask the controller to act on one build
//   - Controller reports whether the control loop runs and its last pass
//
// Errors are split in two kinds so callers can tell an unreachable
// controller from a controller that refused the request:
//   - ConnectionError is a transport failure, classified as TLS, DNS,
//     timeout or network
//   - APIError carries the HTTP status and the error message the server
//     returned
//
// # Endpoint Resolution
//
// ResolveEndpoint picks the explicit --endpoint flag first, then the
// RUNBOAT_ENDPOINT environment variable, then DefaultEndpoint.
package cli
