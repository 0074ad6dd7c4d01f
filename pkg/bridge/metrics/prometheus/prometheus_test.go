package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

var _ bridge.Metrics = (*Metrics)(nil)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func counterValue(f *dto.MetricFamily, labels map[string]string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		matched := 0
		for _, lp := range m.GetLabel() {
			if labels[lp.GetName()] == lp.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestPrometheusMetrics_WebhookEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookEvent("purchase_completed", "done")
	metrics.RecordWebhookEvent("purchase_completed", "done")
	metrics.RecordWebhookEvent("subscription_ended", "aborted")
	metrics.RecordWebhookError("bad_signature")

	families := gather(t, reg)
	events := families["test_webhook_events_total"]
	assert.Equal(t, 2.0, counterValue(events, map[string]string{"kind": "purchase_completed", "outcome": "done"}))
	assert.Equal(t, 1.0, counterValue(events, map[string]string{"kind": "subscription_ended", "outcome": "aborted"}))
	assert.Equal(t, 1.0, counterValue(families["test_webhook_errors_total"], map[string]string{"error_type": "bad_signature"}))
}

func TestPrometheusMetrics_ProcessingDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordProcessingDuration("purchase_completed", 50*time.Millisecond)

	f := gather(t, reg)["test_webhook_processing_duration_seconds"]
	require.NotNil(t, f)
	require.Len(t, f.GetMetric(), 1)
	assert.Equal(t, uint64(1), f.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestPrometheusMetrics_DirectoryAndLedger(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordDirectoryCall("grant", "success")
	metrics.RecordDirectoryCall("grant", "error")
	metrics.RecordLedgerOperation("record", "success")
	metrics.RecordInconsistency("grant_without_ledger_row")
	metrics.RecordCircuitBreakerStateChange("open")

	families := gather(t, reg)
	assert.Equal(t, 1.0, counterValue(families["test_directory_calls_total"], map[string]string{"operation": "grant", "status": "error"}))
	assert.Equal(t, 1.0, counterValue(families["test_ledger_operations_total"], map[string]string{"operation": "record", "status": "success"}))
	assert.Equal(t, 1.0, counterValue(families["test_inconsistencies_total"], map[string]string{"reason": "grant_without_ledger_row"}))
	assert.Equal(t, 1.0, counterValue(families["test_circuit_breaker_state_changes_total"], map[string]string{"state": "open"}))
}

func TestPrometheusMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg, "test")
	assert.Panics(t, func() { NewMetrics(reg, "test") })
}
