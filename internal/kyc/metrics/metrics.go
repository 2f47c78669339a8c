package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for verification reconciliation.
type Metrics struct {
	// Correlation outcomes by the strategy that matched ("none" when unlinked)
	CorrelationOutcome *prometheus.CounterVec

	// Refresh poll outcomes: skipped, unavailable, unchanged, updated
	RefreshOutcome *prometheus.CounterVec

	// Webhook deliveries by event name and result
	WebhookDeliveries *prometheus.CounterVec

	// Provider call latency by operation
	ProviderLatency *prometheus.HistogramVec

	// Verifications refreshed per sweeper run
	SweeperRefreshed prometheus.Counter
}

// New creates a new Metrics instance with all reconciliation metrics registered.
func New() *Metrics {
	return &Metrics{
		CorrelationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "simkyc_kyc_correlation_total",
			Help: "Webhook correlation outcomes by matching strategy",
		}, []string{"matched_by"}),

		RefreshOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "simkyc_kyc_refresh_total",
			Help: "Verification refresh outcomes",
		}, []string{"outcome"}),

		WebhookDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "simkyc_kyc_webhook_deliveries_total",
			Help: "Inbound provider webhook deliveries by event and result",
		}, []string{"event", "result"}),

		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simkyc_kyc_provider_duration_seconds",
			Help:    "Duration of identity provider calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),

		SweeperRefreshed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "simkyc_kyc_sweeper_refreshed_total",
			Help: "Pending verifications advanced by the background sweeper",
		}),
	}
}

func (m *Metrics) IncrementCorrelation(matchedBy string) {
	if m != nil {
		m.CorrelationOutcome.WithLabelValues(matchedBy).Inc()
	}
}

func (m *Metrics) IncrementRefresh(outcome string) {
	if m != nil {
		m.RefreshOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementWebhook(event, result string) {
	if m != nil {
		m.WebhookDeliveries.WithLabelValues(event, result).Inc()
	}
}

// ObserveProviderLatency records the duration of one provider call.
func (m *Metrics) ObserveProviderLatency(operation string, d time.Duration) {
	if m != nil {
		m.ProviderLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) AddSweeperRefreshed(n int) {
	if m != nil {
		m.SweeperRefreshed.Add(float64(n))
	}
}
