package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeInFlight  = "in_flight"
)

// WebhookMetrics counts Stripe deliveries by routing kind, endpoint and
// outcome.
type WebhookMetrics struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	stalled  prometheus.Gauge
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_webhook_events_total",
		Help: "Stripe webhook deliveries by kind, source and outcome.",
	}, []string{"kind", "source", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stripe_webhook_duration_seconds",
		Help:    "Time spent processing a Stripe webhook delivery.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	stalled := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stripe_webhook_stalled_events",
		Help: "Stripe events received but still unprocessed past the stall threshold.",
	})
	reg.MustRegister(events, duration, stalled)
	return &WebhookMetrics{events: events, duration: duration, stalled: stalled}
}

func (w *WebhookMetrics) Observe(kind, source, outcome string, elapsed time.Duration) {
	if w == nil || w.events == nil {
		return
	}
	w.events.WithLabelValues(jobLabel(kind), jobLabel(source), outcome).Inc()
	w.duration.WithLabelValues(jobLabel(kind)).Observe(elapsed.Seconds())
}

// SetStalled records how many events were found stuck by the last sweep.
func (w *WebhookMetrics) SetStalled(n int) {
	if w == nil || w.stalled == nil {
		return
	}
	w.stalled.Set(float64(n))
}
