package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.SessionsByStatus.WithLabelValues("connected").Inc()
	m.ClientEventsTotal.WithLabelValues("message").Add(3)
	m.WebhookQueueSize.Set(7)
	m.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
	m.WebhookDroppedTotal.Inc()
	m.WebhookFilteredTotal.WithLabelValues("no_url").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsByStatus.WithLabelValues("connected")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ClientEventsTotal.WithLabelValues("message")))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.WebhookQueueSize))
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.WebhookQueueSize.Set(2)

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chatwire_webhook_queue_size 2")
}
