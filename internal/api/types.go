package api

import (
	"context"
	"time"

	"runboat/internal/build"
	"runboat/internal/reconciler"
	"runboat/internal/resolver"
	"runboat/internal/scheduler"
)

// Controller is what the HTTP API needs from the control loop.
type Controller interface {
	Builds() []build.Status
	Build(id string) (build.Status, bool)
	Activity(id string) error
	Retry(id string) error
	SubmitEvent(ctx context.Context, ev resolver.Event) error
	IsRunning() bool
	LastPass() (reconciler.PassResult, bool)
	Limits() scheduler.Limits
	QueuedEvents() int
}

// BuildList is the response of GET /api/v1/builds.
type BuildList struct {
	Builds []build.Status `json:"builds"`
}

// ControllerStatus is the response of GET /api/v1/controller.
type ControllerStatus struct {
	Running          bool                   `json:"running"`
	MaxStarted       int                    `json:"maxStarted"`
	IdleTimeout      string                 `json:"idleTimeout"`
	RetryFailedAfter string                 `json:"retryFailedAfter"`
	QueuedEvents     int                    `json:"queuedEvents"`
	LastPass         *reconciler.PassResult `json:"lastPass,omitempty"`
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Event  string `json:"event"`
	Queued int    `json:"queued"`
}

// submitTimeout bounds how long a webhook delivery waits for room in the
// event queue before it is rejected.
const submitTimeout = 5 * time.Second
