package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RouteFallbacks counts every time the route engine degraded to a fallback value.
	RouteFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stopplanner_route_fallbacks_total",
			Help: "Number of route computations that fell back to a degraded result",
		},
		[]string{"operation", "kind"},
	)

	InsertionCost = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stopplanner_insertion_cost",
		Help:    "Added cycle length (planar degrees) of the chosen insertion edge",
		Buckets: []float64{0, 0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	})
)

var (
	StopRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stopplanner_stop_requests_total",
		Help: "Stop requests by lifecycle event (created, approved, rejected)",
	}, []string{"status"})

	Approvals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stopplanner_approvals_total",
		Help: "Approved stops persisted, by kind (single or cluster)",
	}, []string{"kind"})

	PendingRequests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stopplanner_pending_requests",
		Help: "Pending stop requests per line, as of the last dashboard view",
	}, []string{"line_code"})

	PendingClusters = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stopplanner_pending_clusters",
		Help: "Clusters of pending stop requests per line, as of the last dashboard view",
	}, []string{"line_code"})
)

var (
	GeodataLines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stopplanner_geodata_lines",
		Help: "Number of bus lines in the loaded geodata snapshot",
	})

	GeodataLastRefresh = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stopplanner_geodata_last_refresh_timestamp_seconds",
		Help: "Unix time of the last successful geodata load",
	})

	GeodataLoadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stopplanner_geodata_load_failures_total",
		Help: "Number of failed geodata loads",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stopplanner_http_request_duration_seconds",
		Help:    "Duration of handled HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	// OutgoingLatency tracks outbound HTTP requests (remote geodata downloads).
	OutgoingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stopplanner_outgoing_request_duration_seconds",
		Help:    "Duration of outgoing HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"url", "method", "status"})
)

// RecordFallback counts a degraded route computation.
func RecordFallback(operation, kind string) {
	RouteFallbacks.WithLabelValues(operation, kind).Inc()
}

// SetPendingStats replaces the per-line pending gauges with the given counts.
func SetPendingStats(requests, clusters map[string]int) {
	PendingRequests.Reset()
	PendingClusters.Reset()
	for line, n := range requests {
		PendingRequests.WithLabelValues(line).Set(float64(n))
	}
	for line, n := range clusters {
		PendingClusters.WithLabelValues(line).Set(float64(n))
	}
}

// SetGeodataLoaded records a successful geodata load.
func SetGeodataLoaded(lines int, at time.Time) {
	GeodataLines.Set(float64(lines))
	GeodataLastRefresh.Set(float64(at.Unix()))
}
