package events

import (
	"runboat/internal/build"
)

// EventType represents the type/severity of a Kubernetes Event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason represents the reason code for an event.
type EventReason string

// Build lifecycle reasons
const (
	// ReasonBuildDeploying indicates workloads for a new commit or a start
	// request are being applied.
	ReasonBuildDeploying EventReason = "BuildDeploying"

	// ReasonBuildRedeploying indicates a running build is being updated to a
	// newer commit.
	ReasonBuildRedeploying EventReason = "BuildRedeploying"

	// ReasonBuildStarted indicates every workload of the build became ready.
	ReasonBuildStarted EventReason = "BuildStarted"

	// ReasonBuildStopping indicates the build is being scaled to zero.
	ReasonBuildStopping EventReason = "BuildStopping"

	// ReasonBuildStopped indicates the build was scaled to zero.
	ReasonBuildStopped EventReason = "BuildStopped"

	// ReasonBuildDropping indicates the build's resources are being deleted.
	ReasonBuildDropping EventReason = "BuildDropping"

	// ReasonBuildDropped indicates the build's resources are gone.
	ReasonBuildDropped EventReason = "BuildDropped"

	// ReasonBuildFailed indicates the build could not be deployed or stopped.
	ReasonBuildFailed EventReason = "BuildFailed"
)

// EventData carries the values message templates may reference.
type EventData struct {
	Name       string
	Namespace  string
	Repo       string
	Ref        string
	Commit     string
	Generation int64

	// From is the lifecycle state the build left.
	From  string
	Error string
}

// ReasonForTransition maps a recorded lifecycle edge to its event reason.
// The second result is false for edges that are not published.
func ReasonForTransition(from, to build.LifecycleState) (EventReason, bool) {
	switch to {
	case build.StateDeploying:
		if from == build.StateStarted {
			return ReasonBuildRedeploying, true
		}
		return ReasonBuildDeploying, true
	case build.StateStarted:
		return ReasonBuildStarted, true
	case build.StateStopping:
		return ReasonBuildStopping, true
	case build.StateStopped:
		return ReasonBuildStopped, true
	case build.StateDropping:
		return ReasonBuildDropping, true
	case build.StateDropped:
		return ReasonBuildDropped, true
	case build.StateFailed:
		return ReasonBuildFailed, true
	default:
		return "", false
	}
}

// getEventType returns the severity for reason.
func getEventType(reason EventReason) EventType {
	if reason == ReasonBuildFailed {
		return EventTypeWarning
	}
	return EventTypeNormal
}
