package bridge

import "time"

// Metrics defines the interface for tracking reconciliation.
// All methods are optional; a nil Metrics is replaced by NoopMetrics.
type Metrics interface {
	// RecordWebhookEvent records a processed event.
	// outcome: "done", "aborted", "ignored"
	RecordWebhookEvent(kind, outcome string)

	// RecordWebhookError records a delivery rejected before reconciliation.
	// errorType: e.g. "bad_signature", "missing_secret", "payload_too_large"
	RecordWebhookError(errorType string)

	// RecordProcessingDuration records how long one event took end to end.
	RecordProcessingDuration(kind string, duration time.Duration)

	// RecordDirectoryCall records a call to the membership directory.
	// op: e.g. "grant", "revoke", "refresh"; status: "success" or "error"
	RecordDirectoryCall(op, status string)

	// RecordLedgerOperation records a ledger store call.
	RecordLedgerOperation(op, status string)

	// RecordInconsistency records a cross-system state mismatch needing manual follow-up.
	RecordInconsistency(reason string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _ string)                     {}
func (n *NoopMetrics) RecordWebhookError(_ string)                        {}
func (n *NoopMetrics) RecordProcessingDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordDirectoryCall(_, _ string)                    {}
func (n *NoopMetrics) RecordLedgerOperation(_, _ string)                  {}
func (n *NoopMetrics) RecordInconsistency(_ string)                       {}
