package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements bridge.Metrics using Prometheus.
type Metrics struct {
	webhookEventsTotal         *prometheus.CounterVec
	webhookErrorsTotal         *prometheus.CounterVec
	processingDuration         *prometheus.HistogramVec
	directoryCallsTotal        *prometheus.CounterVec
	ledgerOpsTotal             *prometheus.CounterVec
	inconsistenciesTotal       *prometheus.CounterVec
	circuitBreakerStateChanges *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Total number of verified payment events by kind and outcome.",
		}, []string{"kind", "outcome"}),

		webhookErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "errors_total",
			Help:      "Total number of deliveries rejected before reconciliation.",
		}, []string{"error_type"}),

		processingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "processing_duration_seconds",
			Help:      "Duration of event reconciliation in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		directoryCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_calls_total",
			Help:      "Total number of membership directory calls.",
		}, []string{"operation", "status"}),

		ledgerOpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Total number of subscription ledger operations.",
		}, []string{"operation", "status"}),

		inconsistenciesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inconsistencies_total",
			Help:      "Total number of cross-system inconsistencies needing manual follow-up.",
		}, []string{"reason"}),

		circuitBreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of ledger circuit breaker state changes.",
		}, []string{"state"}),
	}
}

func (m *Metrics) RecordWebhookEvent(kind, outcome string) {
	m.webhookEventsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordWebhookError(errorType string) {
	m.webhookErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) RecordProcessingDuration(kind string, duration time.Duration) {
	m.processingDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) RecordDirectoryCall(op, status string) {
	m.directoryCallsTotal.WithLabelValues(op, status).Inc()
}

func (m *Metrics) RecordLedgerOperation(op, status string) {
	m.ledgerOpsTotal.WithLabelValues(op, status).Inc()
}

func (m *Metrics) RecordInconsistency(reason string) {
	m.inconsistenciesTotal.WithLabelValues(reason).Inc()
}

// RecordCircuitBreakerStateChange is meant to be passed as the breaker's state change hook.
func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerStateChanges.WithLabelValues(state).Inc()
}
