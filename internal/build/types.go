package build

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// DesiredState is the policy-derived intent for a build.
type DesiredState string

const (
	// DesiredWanted means the build should exist.
	DesiredWanted DesiredState = "WANTED"

	// DesiredUnwanted means the build must be stopped and dropped.
	DesiredUnwanted DesiredState = "UNWANTED"
)

// Build is the authoritative record for one preview environment.
//
// Build is a plain value: it holds no pointers, maps or slices so copies
// handed out by the registry never alias the registry's own record.
type Build struct {
	ID     string
	Repo   string
	Ref    string
	Commit string

	// Target is the base branch of a pull request build, empty for branches.
	Target string

	Desired DesiredState
	State   LifecycleState

	// Generation is bumped every time Commit changes.
	Generation int64

	// DeployedGeneration is the generation last applied to the cluster.
	DeployedGeneration int64

	// StartRequested marks a pending request to (re)start the build;
	// RequestedAt orders pending requests oldest first.
	StartRequested bool
	RequestedAt    time.Time

	// RetryRequested marks a manual retry of a FAILED build.
	RetryRequested bool

	CreatedAt      time.Time
	StateChangedAt time.Time
	LastActivityAt time.Time
	StartedAt      time.Time
	FailedAt       time.Time

	LastError string
}

// New returns a NEW, WANTED build for the given source identity with a
// pending start request.
func New(repo, ref, commit string, now time.Time) Build {
	return Build{
		ID:             MakeID(repo, ref),
		Repo:           repo,
		Ref:            ref,
		Commit:         commit,
		Desired:        DesiredWanted,
		State:          StateNew,
		Generation:     1,
		StartRequested: true,
		RequestedAt:    now,
		CreatedAt:      now,
		StateChangedAt: now,
		LastActivityAt: now,
	}
}

// HasSource reports whether the build was created for repo and ref.
func (b Build) HasSource(repo, ref string) bool {
	return strings.EqualFold(b.Repo, repo) && b.Ref == ref
}

// TransitionTo moves the build to the given lifecycle state.
// It refuses any edge not allowed by CanTransition.
func (b *Build) TransitionTo(to LifecycleState, now time.Time) error {
	if !CanTransition(b.State, to) {
		return &TransitionError{ID: b.ID, From: b.State, To: to}
	}
	b.State = to
	b.StateChangedAt = now

	switch to {
	case StateStarted:
		b.StartedAt = now
		b.LastActivityAt = now
		b.StartRequested = false
	case StateStopping:
		b.StartRequested = false
	case StateFailed:
		b.FailedAt = now
	case StateDeploying:
		b.RetryRequested = false
	}
	return nil
}

// RequestStart records a pending start request unless one is already pending.
func (b *Build) RequestStart(now time.Time) {
	if b.StartRequested {
		return
	}
	b.StartRequested = true
	b.RequestedAt = now
}

// NeedsRedeploy reports whether a newer commit than the one deployed is known.
func (b Build) NeedsRedeploy() bool {
	return b.Generation != b.DeployedGeneration
}

// Status is the read-only view of a build exposed to API clients.
type Status struct {
	ID             string         `json:"id"`
	Repo           string         `json:"repo"`
	Ref            string         `json:"ref"`
	Commit         string         `json:"commit"`
	Target         string         `json:"target,omitempty"`
	LifecycleState LifecycleState `json:"lifecycleState"`
	DesiredState   DesiredState   `json:"desiredState"`
	Generation     int64          `json:"generation"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	LastError      string         `json:"lastError,omitempty"`
}

// Status returns the API view of the build.
func (b Build) Status() Status {
	s := Status{
		ID:             b.ID,
		Repo:           b.Repo,
		Ref:            b.Ref,
		Commit:         b.Commit,
		Target:         b.Target,
		LifecycleState: b.State,
		DesiredState:   b.Desired,
		Generation:     b.Generation,
		LastActivityAt: b.LastActivityAt,
		LastError:      b.LastError,
	}
	if !b.StartedAt.IsZero() {
		startedAt := b.StartedAt
		s.StartedAt = &startedAt
	}
	return s
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

const (
	// maxIDLength keeps IDs usable as Kubernetes label values and object names.
	maxIDLength = 63

	idHashLength = 8
)

// MakeID derives the stable build identifier from a repository and ref.
// "OCA/server-tools" + "16.0" becomes "oca-server-tools-16-0-" followed by
// eight hex digits of a hash over the exact repository and ref. The readable
// part is lossy; the hash keeps distinct refs such as "feature/login" and
// "feature-login" apart. Repository names compare case-insensitively.
func MakeID(repo, ref string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(repo) + "\x00" + ref))
	suffix := hex.EncodeToString(sum[:])[:idHashLength]

	slug := nonSlugChars.ReplaceAllString(strings.ToLower(repo+"-"+ref), "-")
	slug = strings.Trim(slug, "-")
	if limit := maxIDLength - idHashLength - 1; len(slug) > limit {
		slug = strings.TrimRight(slug[:limit], "-")
	}
	if slug == "" {
		// Service names must start with a letter.
		slug = "b"
	}
	return slug + "-" + suffix
}
