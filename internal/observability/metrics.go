// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the monitor.
type Metrics struct {
	// Cycle metrics
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	AccountsEligible prometheus.Gauge

	// Per-account outcomes
	AccountChecksTotal   *prometheus.CounterVec
	ChallengeTransitions *prometheus.CounterVec

	// Adapter latency
	AdapterCallDuration *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "challenge_monitor"
	}

	return &Metrics{
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referee",
			Name:      "cycles_total",
			Help:      "Total number of polling cycles by status",
		}, []string{"status"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "referee",
			Name:      "cycle_duration_seconds",
			Help:      "Polling cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		AccountsEligible: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "referee",
			Name:      "accounts_eligible",
			Help:      "Number of eligible accounts in the latest cycle",
		}),
		AccountChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referee",
			Name:      "account_checks_total",
			Help:      "Total number of per-account checks by outcome",
		}, []string{"outcome"}),
		ChallengeTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referee",
			Name:      "challenge_transitions_total",
			Help:      "Total number of challenge status transitions by new status",
		}, []string{"status"}),
		AdapterCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "call_duration_seconds",
			Help:      "Broker adapter call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"broker", "call"}),
		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of the last completed cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
