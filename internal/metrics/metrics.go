package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallsTotal tracks logical calls by method and where the result came from
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitchenline_calls_total",
			Help: "Total number of logical API calls",
		},
		[]string{"method", "source"},
	)

	// CallErrorsTotal tracks surfaced errors by category
	CallErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitchenline_call_errors_total",
			Help: "Total number of classified errors returned to callers",
		},
		[]string{"method", "category"},
	)

	// RetriesTotal tracks backoff sleeps by the category that caused them
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitchenline_retries_total",
			Help: "Total number of retry attempts",
		},
		[]string{"category"},
	)

	// CacheLookups tracks offline cache reads
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitchenline_cache_lookups_total",
			Help: "Offline cache lookups by result (hit, miss, expired)",
		},
		[]string{"result"},
	)

	// CachePruned tracks entries removed by the pruner
	CachePruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kitchenline_cache_pruned_total",
			Help: "Total number of expired cache entries pruned",
		},
	)

	// QueueDepth is the number of pending actions awaiting replay
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kitchenline_pending_actions",
			Help: "Number of queued writes not yet confirmed by the server",
		},
	)

	// DrainActions tracks replayed actions by outcome (applied, failed)
	DrainActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitchenline_drain_actions_total",
			Help: "Pending actions processed during drains",
		},
		[]string{"outcome"},
	)

	// ConnectivityOnline is 1 while the monitor reports online
	ConnectivityOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kitchenline_connectivity_online",
			Help: "1 if the API is reachable, 0 otherwise",
		},
	)

	// ConnectivityTransitions counts state changes
	ConnectivityTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitchenline_connectivity_transitions_total",
			Help: "Connectivity state transitions",
		},
		[]string{"to"},
	)

	// TransportLatency tracks HTTP round trip latency
	TransportLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kitchenline_transport_latency_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	// StoragePoolUsage is the SQL connection pool usage percentage
	StoragePoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kitchenline_storage_pool_usage_percent",
			Help: "Open SQL connections as a percentage of the pool limit",
		},
	)
)
