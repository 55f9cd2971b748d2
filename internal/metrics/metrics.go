package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// PurchasesTotal counts purchase attempts by category and resulting status.
	PurchasesTotal *prometheus.CounterVec
	// ReconciliationResolutions counts worker resolutions by final disposition
	// (success, failed, still_pending, needs_review).
	ReconciliationResolutions *prometheus.CounterVec
	// PendingEscalations counts entries flagged for manual review.
	PendingEscalations prometheus.Counter
	// ProviderCallDuration observes outbound provider latency per category.
	ProviderCallDuration *prometheus.HistogramVec
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		PurchasesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kobopay_purchases_total",
			Help: "Purchase attempts by category and resulting status.",
		}, []string{"category", "status"}),
		ReconciliationResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kobopay_reconciliation_resolutions_total",
			Help: "Reconciliation worker resolutions by disposition.",
		}, []string{"disposition"}),
		PendingEscalations: factory.NewCounter(prometheus.CounterOpts{
			Name: "kobopay_pending_escalations_total",
			Help: "Pending transactions escalated to manual review.",
		}),
		ProviderCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kobopay_provider_call_duration_seconds",
			Help:    "Outbound provider call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"category"}),
	}
}

// Handler returns the scrape endpoint handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
