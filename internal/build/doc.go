// Package build defines the Build record tracked by runboat and the
// lifecycle state machine every build moves through.
//
// A Build is one preview environment for a (repository, ref) pair. Its
// desired state is policy intent (should it exist at all), while its
// lifecycle state is the managed progress of its workloads in the cluster.
// Only the transitions returned by CanTransition are legal; Build.TransitionTo
// is the single place where the lifecycle state is changed.
package build
