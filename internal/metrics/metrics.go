// Package metrics exposes the hod job's Prometheus metrics, following
// cuemby-warren's pkg/metrics package shape: package-level collectors
// registered at init, and a Handler for wiring into the per-rank HTTP
// mux alongside the health endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DistributionsRetiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hod_distributions_retired_total",
			Help: "Total number of distributions this rank has driven to RETIRED, by kind",
		},
		[]string{"kind"},
	)

	ActiveWorkGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hod_active_work",
			Help: "Number of distributions currently active on this rank, by state",
		},
		[]string{"state"},
	)

	CollectiveBarrierDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hod_collective_barrier_seconds",
			Help:    "Time spent blocked in a collective barrier, by tag",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tag"},
	)
)

func init() {
	prometheus.MustRegister(DistributionsRetiredTotal)
	prometheus.MustRegister(ActiveWorkGauge)
	prometheus.MustRegister(CollectiveBarrierDuration)
}

// Handler returns the Prometheus scrape handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
