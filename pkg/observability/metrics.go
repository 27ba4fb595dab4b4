package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Session metrics
	SessionsByStatus  *prometheus.GaugeVec
	ClientEventsTotal *prometheus.CounterVec

	// Webhook delivery metrics
	WebhookQueueSize        prometheus.Gauge
	WebhookDeliveriesTotal  *prometheus.CounterVec
	WebhookDroppedTotal     prometheus.Counter
	WebhookDeliveryDuration prometheus.Histogram
	WebhookThrottledTotal   prometheus.Counter
	WebhookFilteredTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		SessionsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chatwire_sessions",
				Help: "Number of managed sessions by lifecycle status",
			},
			[]string{"status"},
		),
		ClientEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatwire_client_events_total",
				Help: "Total number of events received from protocol clients",
			},
			[]string{"event"},
		),
		WebhookQueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatwire_webhook_queue_size",
				Help: "Number of webhook delivery tasks currently queued",
			},
		),
		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatwire_webhook_deliveries_total",
				Help: "Total number of webhook delivery attempts by outcome",
			},
			[]string{"outcome"},
		),
		WebhookDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatwire_webhook_dropped_total",
				Help: "Total number of webhook tasks dropped after exhausting retries",
			},
		),
		WebhookDeliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatwire_webhook_delivery_duration_seconds",
				Help:    "Webhook delivery attempt duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		WebhookThrottledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatwire_webhook_throttled_total",
				Help: "Total number of delivery attempts deferred by rate limiting",
			},
		),
		WebhookFilteredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatwire_webhook_filtered_total",
				Help: "Total number of events dropped by per-session filters",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		m.SessionsByStatus,
		m.ClientEventsTotal,
		m.WebhookQueueSize,
		m.WebhookDeliveriesTotal,
		m.WebhookDroppedTotal,
		m.WebhookDeliveryDuration,
		m.WebhookThrottledTotal,
		m.WebhookFilteredTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the given registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
