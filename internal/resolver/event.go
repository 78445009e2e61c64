package resolver

import "fmt"

// EventKind is the closed set of repository event kinds.
type EventKind int

const (
	// EventPushed is a new commit on a branch or pull request.
	EventPushed EventKind = iota + 1

	// EventClosed is a deleted branch or a closed pull request.
	EventClosed

	// EventReopened is a reopened pull request.
	EventReopened
)

func (k EventKind) String() string {
	switch k {
	case EventPushed:
		return "pushed"
	case EventClosed:
		return "closed"
	case EventReopened:
		return "reopened"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a normalized repository notification.
type Event struct {
	Repo   string
	Ref    string
	Commit string
	Kind   EventKind

	// Target is the base branch for pull request events; policy matching
	// uses it instead of Ref when set.
	Target string
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s@%s (%s)", e.Kind, e.Repo, e.Ref, e.Commit)
}
