// Package metrics provides Prometheus collectors for the authentication path.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AuthAttemptsTotal counts authentication attempts by internal result.
	// The label carries the precise failure kind; callers only ever see the
	// coarse outcome.
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noosphera_auth_attempts_total",
			Help: "Authentication attempts",
		},
		[]string{"result"},
	)

	// AuthDuration records end-to-end gate latency in seconds.
	AuthDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "noosphera_auth_duration_seconds",
			Help:    "Authentication latency",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	// HashInFlight tracks bcrypt operations currently holding a pool slot.
	HashInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "noosphera_hash_in_flight",
			Help: "Hash operations in flight",
		},
	)

	// HashShedTotal counts hash operations rejected because the pool queue was full.
	HashShedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "noosphera_hash_shed_total",
			Help: "Hash operations shed",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the per-key rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "noosphera_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		AuthAttemptsTotal,
		AuthDuration,
		HashInFlight,
		HashShedTotal,
		RateLimitRejectedTotal,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
