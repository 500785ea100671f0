package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PoolLiveConnections is the current live_count for a node's pool.
	PoolLiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upq_pool_live_connections",
			Help: "Current number of live connections held by a node's pool",
		},
		[]string{"node"},
	)

	// PoolAcquireLatency tracks time spent in Pool.Acquire.
	PoolAcquireLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upq_pool_acquire_latency_seconds",
			Help:    "Time spent acquiring a connection from a node's pool",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node"},
	)

	// PoolReconnects counts every successful connect a pool makes, including
	// the ones that first grow it.
	PoolReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upq_pool_reconnects_total",
			Help: "Total number of successful pool reconnects",
		},
		[]string{"node"},
	)

	// RouterNodeHealthy is 1 when the router's last probe found a node
	// healthy, 0 otherwise.
	RouterNodeHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upq_router_node_healthy",
			Help: "Whether the router currently considers a node healthy (1) or not (0)",
		},
		[]string{"node"},
	)

	// RouterCircuitState is the node's circuit breaker state: 0=closed,
	// 1=half-open, 2=open.
	RouterCircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upq_router_circuit_state",
			Help: "Circuit breaker state per node (0=closed, 1=half-open, 2=open)",
		},
		[]string{"node"},
	)

	// RouterReplicaLag tracks the last measured replay lag per node.
	RouterReplicaLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upq_router_replica_lag_seconds",
			Help: "Last measured replication replay lag in seconds",
		},
		[]string{"node"},
	)

	// QueryTotal counts queries executed, by node and outcome.
	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upq_query_total",
			Help: "Total number of queries executed",
		},
		[]string{"node", "outcome"},
	)

	// QueryLatency tracks end-to-end query execution latency.
	QueryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upq_query_latency_seconds",
			Help:    "Query execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node"},
	)

	once sync.Once
)

// Init registers all metrics with the default Prometheus registry.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(PoolLiveConnections)
		prometheus.MustRegister(PoolAcquireLatency)
		prometheus.MustRegister(PoolReconnects)
		prometheus.MustRegister(RouterNodeHealthy)
		prometheus.MustRegister(RouterCircuitState)
		prometheus.MustRegister(RouterReplicaLag)
		prometheus.MustRegister(QueryTotal)
		prometheus.MustRegister(QueryLatency)
	})
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
