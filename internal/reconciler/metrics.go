package reconciler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"runboat/internal/build"
	"runboat/internal/scheduler"
)

// Metrics exposes control loop activity to Prometheus.
//
// All recording methods are safe to call on a nil *Metrics, so components can
// be built without metrics in tests.
type Metrics struct {
	passesTotal       *prometheus.CounterVec
	passDuration      prometheus.Histogram
	buildsByState     *prometheus.GaugeVec
	transitionsTotal  *prometheus.CounterVec
	decisionsTotal    *prometheus.CounterVec
	gatewayCallsTotal *prometheus.CounterVec
	gatewayLatency    *prometheus.HistogramVec
	pendingBuilds     prometheus.Gauge
}

// NewMetrics creates the control loop metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runboat",
				Subsystem: "controller",
				Name:      "passes_total",
				Help:      "Total number of reconciliation passes by result",
			},
			[]string{"result"},
		),
		passDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "runboat",
				Subsystem: "controller",
				Name:      "pass_duration_seconds",
				Help:      "Duration of reconciliation passes in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
		buildsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "runboat",
				Subsystem: "builds",
				Name:      "total",
				Help:      "Number of builds by lifecycle state",
			},
			[]string{"state"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runboat",
				Subsystem: "builds",
				Name:      "transitions_total",
				Help:      "Total number of lifecycle transitions",
			},
			[]string{"from", "to"},
		),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runboat",
				Subsystem: "scheduler",
				Name:      "decisions_total",
				Help:      "Total number of scheduler decisions by action and reason",
			},
			[]string{"action", "reason"},
		),
		gatewayCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runboat",
				Subsystem: "gateway",
				Name:      "calls_total",
				Help:      "Total number of cluster gateway calls by operation and result",
			},
			[]string{"operation", "result"},
		),
		gatewayLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "runboat",
				Subsystem: "gateway",
				Name:      "latency_seconds",
				Help:      "Latency of cluster gateway calls in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"operation"},
		),
		pendingBuilds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "runboat",
				Subsystem: "scheduler",
				Name:      "pending_builds",
				Help:      "Wanted builds waiting for a budget slot",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.passesTotal,
			m.passDuration,
			m.buildsByState,
			m.transitionsTotal,
			m.decisionsTotal,
			m.gatewayCallsTotal,
			m.gatewayLatency,
			m.pendingBuilds,
		)
	}
	return m
}

func (m *Metrics) recordPass(result PassResult) {
	if m == nil {
		return
	}
	outcome := "success"
	if len(result.Failed) > 0 {
		outcome = "partial"
	}
	m.passesTotal.WithLabelValues(outcome).Inc()
	m.passDuration.Observe(result.Duration.Seconds())
	m.pendingBuilds.Set(float64(result.Pending))

	for _, state := range build.AllStates {
		m.buildsByState.WithLabelValues(string(state)).Set(float64(result.States[state]))
	}
}

func (m *Metrics) recordPlan(plan scheduler.Plan) {
	if m == nil {
		return
	}
	for _, d := range plan.Decisions {
		m.decisionsTotal.WithLabelValues(d.Action.String(), string(d.Reason)).Inc()
	}
}

func (m *Metrics) recordTransition(from, to build.LifecycleState) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) recordGatewayCall(operation string, err error, latency time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.gatewayCallsTotal.WithLabelValues(operation, result).Inc()
	m.gatewayLatency.WithLabelValues(operation).Observe(latency.Seconds())
}
