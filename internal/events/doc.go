// Package events publishes build lifecycle transitions as Kubernetes Events.
//
// Every transition the lifecycle reconciler records becomes an Event attached
// to the build's Deployment, so `kubectl get events` and
// `kubectl describe deployment <build>` show why a build was started, stopped
// or dropped without looking at the controller logs.
//
// Architecture:
//
//   - EventGenerator turns (build, from, to) into a reason, a type and a
//     rendered message, and hands them to a Sink
//   - MessageTemplateEngine holds one message template per reason
//   - KubernetesSink creates core/v1 Events through a controller-runtime client
//   - LogSink only logs, and is used when running without a cluster
//
// Usage:
//
// The generator's Observe method has the signature of the reconciler's
// transition observer and is wired there by the application:
//
//	generator := events.NewEventGenerator(sink, registry, namespace)
//	managerConfig.OnTransition = generator.Observe
//
// Publishing is best effort. A failed Event create is logged at debug level
// and never affects reconciliation.
package events
