package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsTotal counts ledger rows written, by type.
	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuspoints_transactions_total",
			Help: "Number of ledger transactions recorded",
		},
		[]string{"type"},
	)

	// PointsTotal sums absolute point movement, by transaction type.
	PointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuspoints_points_total",
			Help: "Absolute points moved by ledger transactions",
		},
		[]string{"type"},
	)

	// RequestDuration tracks handler latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "campuspoints_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
			Buckets: []float64{
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
			},
		},
		[]string{"method", "route", "status"},
	)

	// ResetsThrottled counts password reset requests rejected by the limiter.
	ResetsThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campuspoints_password_resets_throttled_total",
		Help: "Password reset requests rejected by the per-address limiter",
	})
)

// RecordTransaction records one ledger row of the given type and amount.
func RecordTransaction(txType string, amount int) {
	if amount < 0 {
		amount = -amount
	}
	TransactionsTotal.WithLabelValues(txType).Inc()
	PointsTotal.WithLabelValues(txType).Add(float64(amount))
}

// RecordRequest records the duration of an HTTP request.
func RecordRequest(method, route, status string, seconds float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(seconds)
}
