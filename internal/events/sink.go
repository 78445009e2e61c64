package events

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"runboat/pkg/logging"
)

// Component is the event source reported to the API server.
const Component = "runboat"

// ObjectRef identifies the object an event is about.
type ObjectRef struct {
	APIVersion string
	Kind       string
	Name       string
	Namespace  string
}

// Sink stores events.
type Sink interface {
	CreateEvent(ctx context.Context, ref ObjectRef, reason, message, eventType string) error
}

// KubernetesSink creates core/v1 Events.
type KubernetesSink struct {
	client client.Client
	now    func() time.Time
}

// NewKubernetesSink creates a sink writing through c.
func NewKubernetesSink(c client.Client) *KubernetesSink {
	return &KubernetesSink{client: c, now: time.Now}
}

// CreateEvent creates a Kubernetes Event for ref.
func (k *KubernetesSink) CreateEvent(ctx context.Context, ref ObjectRef, reason, message, eventType string) error {
	now := metav1.NewTime(k.now())

	event := &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: ref.Name + "-",
			Namespace:    ref.Namespace,
			Labels: map[string]string{
				"app.kubernetes.io/managed-by": Component,
			},
		},
		InvolvedObject: corev1.ObjectReference{
			APIVersion: ref.APIVersion,
			Kind:       ref.Kind,
			Name:       ref.Name,
			Namespace:  ref.Namespace,
		},
		Reason:              reason,
		Message:             message,
		Type:                eventType,
		Source:              corev1.EventSource{Component: Component},
		ReportingController: Component,
		FirstTimestamp:      now,
		LastTimestamp:       now,
		Count:               1,
	}

	if err := k.client.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create Kubernetes Event for %s %s/%s: %w", ref.Kind, ref.Namespace, ref.Name, err)
	}
	return nil
}

// LogSink writes events to the log only. It stands in for the cluster when
// the controller runs with the in-memory gateway.
type LogSink struct{}

// CreateEvent logs the event.
func (LogSink) CreateEvent(ctx context.Context, ref ObjectRef, reason, message, eventType string) error {
	logging.Debug("Events", "Event for %s %s/%s: %s - %s (%s)",
		ref.Kind, ref.Namespace, ref.Name, reason, message, eventType)
	return nil
}
