package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the agent runtime and its
// collaborators. Constructed once and passed to components that report.
type Metrics struct {
	EventsPublished *prometheus.CounterVec
	EventsHandled   *prometheus.CounterVec
	ConsentDenied   *prometheus.CounterVec
	HandlerErrors   *prometheus.CounterVec
	HandleDuration  *prometheus.HistogramVec
	TwinPersists    *prometheus.CounterVec
	AuditDropped    prometheus.Counter
}

// New creates and registers all metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers on a caller-supplied registerer so tests can use an
// isolated registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitaex_events_published_total",
			Help: "Total events published to the bus, by topic",
		}, []string{"topic"}),
		EventsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitaex_events_handled_total",
			Help: "Total events dispatched to agent handlers, by agent and topic",
		}, []string{"agent", "topic"}),
		ConsentDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitaex_consent_denied_total",
			Help: "Events dropped by the consent gate, by agent",
		}, []string{"agent"}),
		HandlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitaex_handler_errors_total",
			Help: "Handler failures contained at the dispatch boundary, by agent",
		}, []string{"agent"}),
		HandleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitaex_handle_duration_seconds",
			Help:    "Handler latency by agent",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent"}),
		TwinPersists: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitaex_twin_persists_total",
			Help: "Twin snapshot persistence attempts, by outcome",
		}, []string{"status"}),
		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "vitaex_audit_dropped_total",
			Help: "Audit records dropped because the sink buffer was full",
		}),
	}
}
