package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics counts stock, order and payment activity.
// A nil *EngineMetrics is valid and records nothing.
type EngineMetrics struct {
	stockMoves    *prometheus.CounterVec
	stockRejects  prometheus.Counter
	transitions   *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	conflicts     prometheus.Counter
}

// NewEngineMetrics registers the engine collectors on reg.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return nil
	}
	m := &EngineMetrics{
		stockMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_units_total",
			Help:      "Units moved through the stock ledger by direction.",
		}, []string{"direction"}),
		stockRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_rejections_total",
			Help:      "Decrements refused for insufficient stock.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status events appended, by from/to status.",
		}, []string{"from", "to"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirmations_total",
			Help:      "Payment confirmations handled, by outcome and replay flag.",
		}, []string{"outcome", "replay"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_conflicts_total",
			Help:      "Transactions aborted on lock timeout, deadlock or serialization failure.",
		}),
	}
	reg.MustRegister(m.stockMoves, m.stockRejects, m.transitions, m.confirmations, m.conflicts)
	return m
}

// StockDecremented records units taken from the ledger.
func (m *EngineMetrics) StockDecremented(qty int) {
	if m == nil {
		return
	}
	m.stockMoves.WithLabelValues("decrement").Add(float64(qty))
}

// StockIncremented records units returned to the ledger.
func (m *EngineMetrics) StockIncremented(qty int) {
	if m == nil {
		return
	}
	m.stockMoves.WithLabelValues("increment").Add(float64(qty))
}

// StockRejected records a refused decrement.
func (m *EngineMetrics) StockRejected() {
	if m == nil {
		return
	}
	m.stockRejects.Inc()
}

// Transition records an appended status event. from is empty for the initial event.
func (m *EngineMetrics) Transition(from, to string) {
	if m == nil {
		return
	}
	if from == "" {
		from = "none"
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// Confirmation records a handled payment confirmation.
func (m *EngineMetrics) Confirmation(outcome string, replay bool) {
	if m == nil {
		return
	}
	flag := "false"
	if replay {
		flag = "true"
	}
	m.confirmations.WithLabelValues(normalizeLabel(outcome), flag).Inc()
}

// Conflict records a retryable concurrency failure.
func (m *EngineMetrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}
