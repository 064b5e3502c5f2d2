package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	JobsDispatched   prometheus.Counter
	JobsFinished     *prometheus.CounterVec
	RoutingDecisions *prometheus.CounterVec
	GuardrailFlags   *prometheus.CounterVec
	Escalations      prometheus.Counter
	AuditErrors      *prometheus.CounterVec
	ObserverMessages *prometheus.CounterVec
	JobDuration      prometheus.Histogram
	RoutingLatency   prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of open tutoring sessions.",
		}),
		JobsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dispatched_total",
			Help:      "Orchestration jobs accepted.",
		}),
		JobsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Orchestration jobs by terminal status.",
		}, []string{"status"}),
		RoutingDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Classifier outcomes by subject.",
		}, []string{"subject"}),
		GuardrailFlags: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_flags_total",
			Help:      "Guardrail interventions by stage.",
		}, []string{"stage"}),
		Escalations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Handoffs to a human teacher.",
		}),
		AuditErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_errors_total",
			Help:      "Failed best-effort audit writes by record kind.",
		}, []string{"kind"}),
		ObserverMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observer_messages_total",
			Help:      "Teacher observer WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_ms",
			Help:      "Dispatch-to-terminal latency per job in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
		RoutingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "routing_latency_ms",
			Help:      "Classifier latency in milliseconds.",
			Buckets:   []float64{50, 100, 200, 400, 800, 1500, 3000, 10000},
		}),
	}
}

func (m *Metrics) ObserveJobDuration(d time.Duration) {
	m.JobDuration.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveRoutingLatency(d time.Duration) {
	m.RoutingLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
