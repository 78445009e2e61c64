// Package registry holds the in-memory, authoritative table of builds.
//
// The registry is the only shared mutable state of the controller. Every
// other component reads value snapshots or mutates records through the
// registry's update operations. Updates to the same build id serialize on a
// per-entry lock; updates to different ids proceed independently.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"runboat/internal/build"
	"runboat/pkg/logging"
)

// ErrNotFound is returned when an operation targets an unknown build id.
var ErrNotFound = errors.New("build not found")

// entry guards one build record.
type entry struct {
	mu      sync.Mutex
	build   build.Build
	removed bool
}

// Registry is the in-memory build table.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// lookup returns the live entry for id with its lock held.
// The caller must unlock it.
func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil, false
	}
	return e, true
}

// Upsert stores b, replacing any existing record with the same id.
func (r *Registry) Upsert(b build.Build) {
	if e, ok := r.lookup(b.ID); ok {
		e.build = b
		e.mu.Unlock()
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[b.ID]; ok && !e.removed {
		e.mu.Lock()
		e.build = b
		e.mu.Unlock()
		return
	}
	r.entries[b.ID] = &entry{build: b}
	logging.Debug("Registry", "Added build %s", b.ID)
}

// Get returns a copy of the build with the given id.
func (r *Registry) Get(id string) (build.Build, bool) {
	e, ok := r.lookup(id)
	if !ok {
		return build.Build{}, false
	}
	defer e.mu.Unlock()
	return e.build, true
}

// ListAll returns a snapshot of every build, ordered by id.
func (r *Registry) ListAll() []build.Build {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	builds := make([]build.Build, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			builds = append(builds, e.build)
		}
		e.mu.Unlock()
	}

	sort.Slice(builds, func(i, j int) bool { return builds[i].ID < builds[j].ID })
	return builds
}

// Len returns the number of builds in the registry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Remove deletes the build with the given id. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	logging.Debug("Registry", "Removed build %s", id)
}

// Update applies fn to the build with the given id under that build's lock
// and returns the resulting copy. If fn returns an error the record is left
// unchanged and the error is returned.
func (r *Registry) Update(id string, fn func(b *build.Build) error) (build.Build, error) {
	e, ok := r.lookup(id)
	if !ok {
		return build.Build{}, ErrNotFound
	}
	defer e.mu.Unlock()

	working := e.build
	if err := fn(&working); err != nil {
		return e.build, err
	}
	e.build = working
	return working, nil
}

// UpdateOrCreate behaves like Update when id exists. Otherwise it calls
// create and, if create returns true, stores the new build.
func (r *Registry) UpdateOrCreate(id string, create func() (build.Build, bool), fn func(b *build.Build) error) (build.Build, bool, error) {
	if updated, err := r.Update(id, fn); !errors.Is(err, ErrNotFound) {
		return updated, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Lost a race with a concurrent create; fall back to updating it.
	if e, ok := r.entries[id]; ok && !e.removed {
		e.mu.Lock()
		defer e.mu.Unlock()
		working := e.build
		if err := fn(&working); err != nil {
			return e.build, false, err
		}
		e.build = working
		return working, false, nil
	}

	b, ok := create()
	if !ok {
		return build.Build{}, false, ErrNotFound
	}
	r.entries[id] = &entry{build: b}
	logging.Debug("Registry", "Added build %s", id)
	return b, true, nil
}

// MarkActivity records external access to a build at time t.
// A stopped (or stopping) wanted build gets a start request so the
// scheduler reactivates it.
func (r *Registry) MarkActivity(id string, t time.Time) error {
	_, err := r.Update(id, func(b *build.Build) error {
		if t.After(b.LastActivityAt) {
			b.LastActivityAt = t
		}
		if b.Desired == build.DesiredWanted &&
			(b.State == build.StateStopped || b.State == build.StateStopping) {
			b.RequestStart(t)
		}
		return nil
	})
	return err
}

// CountByState returns the number of builds in each lifecycle state.
func (r *Registry) CountByState() map[build.LifecycleState]int {
	counts := make(map[build.LifecycleState]int, len(build.AllStates))
	for _, b := range r.ListAll() {
		counts[b.State]++
	}
	return counts
}
