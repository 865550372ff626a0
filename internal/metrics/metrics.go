// Package metrics holds the process Prometheus collectors and the helpers
// that record into them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	askRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataverse_agent_ask_requests_total",
			Help: "Total number of questions processed, by outcome.",
		},
		[]string{"outcome"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataverse_agent_stage_duration_seconds",
			Help:    "Latency of each pipeline stage.",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	dataverseRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataverse_agent_dataverse_requests_total",
			Help: "Total number of Dataverse Web API requests.",
		},
		[]string{"operation", "status"},
	)

	dataverseRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataverse_agent_dataverse_request_duration_seconds",
			Help:    "Dataverse Web API latency by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	oracleRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataverse_agent_oracle_requests_total",
			Help: "Total number of generation oracle calls, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	oracleRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataverse_agent_oracle_request_duration_seconds",
			Help:    "Generation oracle latency by provider.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 120},
		},
		[]string{"provider"},
	)

	metadataCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataverse_agent_metadata_cache_total",
			Help: "Metadata document lookups, by result (hit, miss, disabled).",
		},
		[]string{"result"},
	)

	allowedTables = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataverse_agent_allowed_tables",
			Help: "Size of the table allow-list derived from the latest metadata document.",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataverse_agent_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataverse_agent_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		askRequestsTotal,
		stageDurationSeconds,
		dataverseRequestsTotal,
		dataverseRequestDurationSeconds,
		oracleRequestsTotal,
		oracleRequestDurationSeconds,
		metadataCacheTotal,
		allowedTables,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveAsk(outcome string) {
	askRequestsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func ObserveDataverseRequest(operation, status string, elapsed time.Duration) {
	dataverseRequestsTotal.WithLabelValues(operation, status).Inc()
	dataverseRequestDurationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func ObserveOracleRequest(provider, outcome string, elapsed time.Duration) {
	oracleRequestsTotal.WithLabelValues(provider, outcome).Inc()
	oracleRequestDurationSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func ObserveMetadataCache(result string) {
	metadataCacheTotal.WithLabelValues(result).Inc()
}

func SetAllowedTables(n int) {
	if n < 0 {
		n = 0
	}
	allowedTables.Set(float64(n))
}

func ObserveHTTPRequest(method, path, status string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, path, status).Observe(elapsed.Seconds())
}
