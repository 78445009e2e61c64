package build

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeID(t *testing.T) {
	tests := []struct {
		name   string
		repo   string
		ref    string
		prefix string
	}{
		{name: "branch", repo: "OCA/server-tools", ref: "16.0", prefix: "oca-server-tools-16-0-"},
		{name: "pull request", repo: "acme/shop", ref: "pr:42", prefix: "acme-shop-pr-42-"},
		{name: "feature branch with slashes", repo: "acme/shop", ref: "feature/Cart_v2", prefix: "acme-shop-feature-cart-v2-"},
		{name: "leading and trailing junk", repo: "/acme/", ref: "--x--", prefix: "acme-x-"},
		{name: "nothing readable", repo: "/", ref: "_", prefix: "b-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := MakeID(tt.repo, tt.ref)
			assert.True(t, strings.HasPrefix(id, tt.prefix), id)
			assert.Len(t, id, len(tt.prefix)+8)
			assert.Equal(t, id, MakeID(tt.repo, tt.ref))
		})
	}
}

func TestMakeID_DistinctRefs(t *testing.T) {
	refs := []string{"feature/login", "feature-login", "feature_login", "Feature-Login", "pr-1", "pr:1"}
	seen := make(map[string]string)
	for _, ref := range refs {
		id := MakeID("acme/shop", ref)
		if other, ok := seen[id]; ok {
			t.Fatalf("%q and %q share id %s", ref, other, id)
		}
		seen[id] = ref
	}

	// Repository names are case-insensitive.
	assert.Equal(t, MakeID("acme/shop", "main"), MakeID("Acme/Shop", "main"))
	// The boundary between repository and ref is not lost.
	assert.NotEqual(t, MakeID("acme/shop-main", "x"), MakeID("acme/shop", "main-x"))
}

func TestMakeID_Truncates(t *testing.T) {
	repo := "acme/a-very-long-repository-name-for-testing"
	a := MakeID(repo, "feature/an-equally-long-branch-name-here-one")
	b := MakeID(repo, "feature/an-equally-long-branch-name-here-two")

	assert.LessOrEqual(t, len(a), 63)
	assert.LessOrEqual(t, len(b), 63)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "--")
}

func TestBuild_HasSource(t *testing.T) {
	b := New("acme/shop", "feature/login", "abc", time.Now())
	assert.True(t, b.HasSource("Acme/Shop", "feature/login"))
	assert.False(t, b.HasSource("acme/shop", "feature-login"))
	assert.False(t, b.HasSource("acme/docs", "feature/login"))
}

func TestNew(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := New("acme/shop", "main", "abc", now)

	assert.Equal(t, MakeID("acme/shop", "main"), b.ID)
	assert.True(t, strings.HasPrefix(b.ID, "acme-shop-main-"))
	assert.Equal(t, StateNew, b.State)
	assert.Equal(t, DesiredWanted, b.Desired)
	assert.Equal(t, int64(1), b.Generation)
	assert.True(t, b.StartRequested)
	assert.Equal(t, now, b.RequestedAt)
	assert.True(t, b.NeedsRedeploy())
}

func TestCanTransition(t *testing.T) {
	legal := [][2]LifecycleState{
		{StateNew, StateDeploying},
		{StateNew, StateDropping},
		{StateDeploying, StateStarted},
		{StateDeploying, StateFailed},
		{StateStarted, StateStopping},
		{StateStarted, StateDeploying},
		{StateStopping, StateStopped},
		{StateStopping, StateFailed},
		{StateStopped, StateDeploying},
		{StateStopped, StateDropping},
		{StateDropping, StateDropped},
		{StateFailed, StateDropping},
		{StateFailed, StateDeploying},
	}
	legalSet := make(map[[2]LifecycleState]bool)
	for _, edge := range legal {
		legalSet[edge] = true
	}

	for _, from := range AllStates {
		for _, to := range AllStates {
			edge := [2]LifecycleState{from, to}
			assert.Equal(t, legalSet[edge], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransitionTo(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := New("acme/shop", "main", "abc", now)

	later := now.Add(time.Minute)
	require.NoError(t, b.TransitionTo(StateDeploying, later))
	assert.Equal(t, later, b.StateChangedAt)

	started := later.Add(time.Minute)
	require.NoError(t, b.TransitionTo(StateStarted, started))
	assert.Equal(t, started, b.StartedAt)
	assert.Equal(t, started, b.LastActivityAt)
	assert.False(t, b.StartRequested)

	err := b.TransitionTo(StateDropped, started)
	var transitionErr *TransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, StateStarted, transitionErr.From)
	assert.Equal(t, StateDropped, transitionErr.To)
	assert.Equal(t, StateStarted, b.State, "refused transition must not change state")
}

func TestRequestStart_KeepsOldestRequest(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := Build{ID: "x"}

	b.RequestStart(now)
	b.RequestStart(now.Add(time.Hour))

	assert.True(t, b.StartRequested)
	assert.Equal(t, now, b.RequestedAt)
}

func TestStatus(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := New("acme/shop", "main", "abc", now)
	b.LastError = "boom"

	s := b.Status()
	assert.Equal(t, b.ID, s.ID)
	assert.Equal(t, StateNew, s.LifecycleState)
	assert.Equal(t, DesiredWanted, s.DesiredState)
	assert.Equal(t, "boom", s.LastError)
	assert.Nil(t, s.StartedAt)

	b.StartedAt = now
	require.NotNil(t, b.Status().StartedAt)
}
