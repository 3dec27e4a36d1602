package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastecap_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRetrieved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pastecap_paste_retrieved_total",
			Help: "no. of successful paste reads",
		},
		[]string{"mode"},
	)
	// reason never leaves the process; clients only ever see "not found".
	PasteDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pastecap_paste_denied_total",
			Help: "no. of paste reads denied",
		},
		[]string{"reason"},
	)
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastecap_cache_hits_total",
		Help: "no. of cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastecap_cache_misses_total",
		Help: "no. of cache misses",
	})
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pastecap_storage_errors_total",
			Help: "no. of failed store operations",
		},
		[]string{"op"},
	)
	CircuitOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pastecap_store_circuit_open",
			Help: "1 while the store circuit breaker is open",
		},
		[]string{"backend"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pastecap_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	WALCheckpoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pastecap_wal_checkpoints_total",
			Help: "no. of sqlite WAL checkpoints by result",
		},
		[]string{"result"},
	)
)
