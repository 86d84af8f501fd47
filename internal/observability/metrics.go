package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Consumer metrics
	ConsumerRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_sink_consumer_records_total",
			Help: "Records handled by the stream consumer by outcome",
		},
		[]string{"outcome"},
	)

	ConsumerRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_sink_consumer_retries_total",
			Help: "Retried consumer operations",
		},
		[]string{"op"},
	)

	ConsumerCommitErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_sink_consumer_commit_errors_total",
			Help: "Failed offset commits",
		},
	)

	ConsumerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_sink_consumer_state",
			Help: "Current consumer state (0=disconnected 1=connecting 2=subscribed 3=consuming 4=retrying 5=stopped)",
		},
	)

	// Persistence metrics
	PersistTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_sink_persist_total",
			Help: "Persist calls by result",
		},
		[]string{"result"},
	)

	PersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "event_sink_persist_duration_seconds",
			Help:    "Duration of store writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Query metrics
	QueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_sink_query_total",
			Help: "Read API queries by status",
		},
		[]string{"status"},
	)

	QueryCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_sink_query_cache_total",
			Help: "Recent-records cache lookups by result",
		},
		[]string{"result"},
	)
)
