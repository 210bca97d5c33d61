// Package metrics holds the vault's domain counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for vault_operations_total.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Metrics groups the counters updated by the vault service and audit log.
type Metrics struct {
	operations    *prometheus.CounterVec
	auditFailures prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_operations_total",
				Help: "Total number of vault operations by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		auditFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vault_audit_append_failures_total",
				Help: "Total number of audit entries that could not be persisted.",
			},
		),
	}

	if err := reg.Register(m.operations); err != nil {
		return nil, err
	}
	if err := reg.Register(m.auditFailures); err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveOperation counts one finished operation. Safe on a nil receiver.
func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// AuditFailed counts one dropped audit entry. Safe on a nil receiver.
func (m *Metrics) AuditFailed() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}
