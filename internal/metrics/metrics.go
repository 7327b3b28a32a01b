package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanofilter_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nanofilter_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	// DocumentsIngested counts documents accepted per collection.
	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanofilter_documents_ingested_total",
			Help: "Total number of documents ingested",
		},
		[]string{"collection"},
	)
	// DocumentsScanned counts documents a predicate was evaluated against.
	DocumentsScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nanofilter_documents_scanned_total",
			Help: "Total number of documents evaluated by queries",
		},
	)
	// QueryDuration is the latency of engine queries by kind (find, count, histogram).
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nanofilter_query_duration_seconds",
			Help:    "Engine query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	// CompileErrors counts rejected filters by error code.
	CompileErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanofilter_compile_errors_total",
			Help: "Total number of filters rejected by the compiler",
		},
		[]string{"code"},
	)
	// Flushes counts memtable flushes by outcome.
	Flushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanofilter_flushes_total",
			Help: "Total number of memtable flushes",
		},
		[]string{"status"},
	)
	// SnapshotsPurged counts snapshot files removed by retention.
	SnapshotsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nanofilter_snapshots_purged_total",
			Help: "Total number of expired snapshot files removed",
		},
	)
)
