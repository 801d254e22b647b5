package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts provider dispatch and reconciliation outcomes.
type OrderMetrics struct {
	dispatch    *prometheus.CounterVec
	sync        *prometheus.CounterVec
	transitions *prometheus.CounterVec
	payments    *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	dispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_total",
		Help:      "Provider dispatch attempts by outcome.",
	}, []string{"outcome"})
	sync := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_sync_total",
		Help:      "Provider status syncs by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_status_transitions_total",
		Help:      "Order status changes applied by reconciliation.",
	}, []string{"status"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_events_total",
		Help:      "Payment confirmations by provider and result.",
	}, []string{"provider", "result"})
	reg.MustRegister(dispatch, sync, transitions, payments)
	return &OrderMetrics{
		dispatch:    dispatch,
		sync:        sync,
		transitions: transitions,
		payments:    payments,
	}
}

func (m *OrderMetrics) IncDispatch(outcome string) {
	if m == nil || m.dispatch == nil {
		return
	}
	m.dispatch.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) IncSync(outcome string) {
	if m == nil || m.sync == nil {
		return
	}
	m.sync.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *OrderMetrics) IncPayment(provider, result string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Inc()
}
