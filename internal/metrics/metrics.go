// Package metrics provides Prometheus metrics for the quickseek index.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Shard store metrics
	shardLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickseek_shard_loads_total",
			Help: "Shard loads by result (hit, disk, missing, corrupt, error)",
		},
		[]string{"result"},
	)

	shardSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickseek_shard_saves_total",
			Help: "Shard saves by result",
		},
		[]string{"result"},
	)

	// Change maintainer metrics
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickseek_events_total",
			Help: "Filesystem change events by operation and outcome",
		},
		[]string{"op", "result"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quickseek_event_queue_depth",
			Help: "Events waiting to be applied",
		},
	)

	watchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickseek_watch_errors_total",
			Help: "Errors reported by the filesystem notification channel",
		},
		[]string{"volume"},
	)

	unencodableTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quickseek_unencodable_paths_total",
			Help: "Entries left out of the index because their path is not valid UTF-8",
		},
	)

	// Query metrics
	queriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quickseek_queries_total",
			Help: "Total prefix queries served",
		},
	)

	queryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quickseek_query_duration_seconds",
			Help:    "Prefix query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Builder metrics
	buildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickseek_builds_total",
			Help: "Volume index builds by result (built, skipped, error)",
		},
		[]string{"result"},
	)

	indexedEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quickseek_indexed_entries",
			Help: "Entries recorded by the last build of a volume",
		},
		[]string{"volume"},
	)

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickseek_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quickseek_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	buildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quickseek_build_duration_seconds",
			Help:    "Time to walk a volume and write its shards",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordShardLoad records a shard load outcome.
func RecordShardLoad(result string) {
	shardLoadsTotal.WithLabelValues(result).Inc()
}

// RecordShardSave records a shard save outcome.
func RecordShardSave(err error) {
	shardSavesTotal.WithLabelValues(result(err)).Inc()
}

// RecordEvent records a maintainer event outcome.
func RecordEvent(op, outcome string) {
	eventsTotal.WithLabelValues(op, outcome).Inc()
}

// SetQueueDepth sets the maintainer queue depth.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordWatchError records a notification channel error.
func RecordWatchError(volume string) {
	watchErrorsTotal.WithLabelValues(volume).Inc()
}

// RecordUnencodable records an entry skipped for its path encoding.
func RecordUnencodable() {
	unencodableTotal.Inc()
}

// RecordQuery records a query and its duration.
func RecordQuery(d time.Duration) {
	queriesTotal.Inc()
	queryDuration.Observe(d.Seconds())
}

// RecordBuild records a volume build outcome.
func RecordBuild(outcome, volume string, entries int, d time.Duration) {
	buildsTotal.WithLabelValues(outcome).Inc()
	if outcome == "built" {
		indexedEntries.WithLabelValues(volume).Set(float64(entries))
		buildDuration.Observe(d.Seconds())
	}
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Instrument wraps next so every request is counted under route.
func Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(route, rw.statusCode, time.Since(start))
	})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
