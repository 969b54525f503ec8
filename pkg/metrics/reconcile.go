package metrics

import "github.com/prometheus/client_golang/prometheus"

// Reconcile item outcomes.
const (
	ItemApplied = "applied"
	ItemSkipped = "skipped"
	ItemFailed  = "failed"
)

// ReconcileMetrics counts the Stripe objects each reconciliation job visits.
type ReconcileMetrics struct {
	items *prometheus.CounterVec
	pages *prometheus.CounterVec
}

func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_items_total",
		Help: "Stripe objects visited by reconciliation jobs.",
	}, []string{"job", "outcome"})
	pages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_pages_total",
		Help: "Stripe list pages fetched by reconciliation jobs.",
	}, []string{"job"})
	reg.MustRegister(items, pages)
	return &ReconcileMetrics{items: items, pages: pages}
}

func (m *ReconcileMetrics) Item(job, outcome string) {
	if m == nil || m.items == nil {
		return
	}
	m.items.WithLabelValues(jobLabel(job), outcome).Inc()
}

func (m *ReconcileMetrics) Page(job string) {
	if m == nil || m.pages == nil {
		return
	}
	m.pages.WithLabelValues(jobLabel(job)).Inc()
}
