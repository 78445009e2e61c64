// Package api serves the runboat HTTP interface.
//
// Routes:
//
//	GET  /api/v1/builds                 every build, ordered by id
//	GET  /api/v1/builds/{id}            one build
//	POST /api/v1/builds/{id}/activity   record access, restarting a stopped build
//	POST /api/v1/builds/{id}/retry      retry a FAILED build
//	GET  /api/v1/controller             control loop status and last pass
//	POST /webhooks/github               GitHub push and pull_request deliveries
//	GET  /healthz                       liveness
//	GET  /metrics                       Prometheus metrics
//
// The server talks to the control loop only through the Controller
// interface. Webhook deliveries are translated into repository events and
// queued; they never touch the cluster directly.
package api
