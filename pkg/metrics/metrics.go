package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersSubmitted counts order submissions by side and outcome
// (accepted, rejected, failed).
var OrdersSubmitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "futures_orders_submitted_total",
		Help: "Total number of orders submitted to the matching engine",
	},
	[]string{"side", "outcome"},
)

// OrdersCancelled counts successful cancellations.
var OrdersCancelled = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "futures_orders_cancelled_total",
		Help: "Total number of orders cancelled",
	},
)

// TradesExecuted counts trades per instrument
var TradesExecuted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "futures_trades_executed_total",
		Help: "Total number of trades produced by the matching engine",
	},
	[]string{"instrument"},
)

// MatchedVolume accumulates traded quantity per instrument
var MatchedVolume = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "futures_matched_volume_total",
		Help: "Total traded quantity per instrument",
	},
	[]string{"instrument"},
)

// MatchLatency records latency distribution for one matching invocation,
// lock wait excluded.
var MatchLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "futures_match_latency_seconds",
		Help:    "Latency in seconds of a single matching invocation",
		Buckets: prometheus.DefBuckets,
	},
)

// LockWait records how long callers waited for the per-instrument lock
var LockWait = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "futures_instrument_lock_wait_seconds",
		Help:    "Time spent waiting for the per-instrument lock",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	},
)

// Conflicts counts invocations aborted with ConcurrencyConflict
var Conflicts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "futures_concurrency_conflicts_total",
		Help: "Invocations aborted due to lock timeout or transaction conflict",
	},
	[]string{"operation"},
)

// FeedConnections tracks open websocket trade feed connections
var FeedConnections = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "futures_feed_connections",
		Help: "Current number of open trade feed websocket connections",
	},
)

// PublishFailures counts post-commit side effects that failed
var PublishFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "futures_publish_failures_total",
		Help: "Post-commit event deliveries that failed",
	},
	[]string{"operation"},
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "futures_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBIdleConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "futures_db_idle_connections",
			Help: "Number of idle connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "futures_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

func init() {
	prometheus.MustRegister(OrdersSubmitted, OrdersCancelled, TradesExecuted, MatchedVolume)
	prometheus.MustRegister(MatchLatency, LockWait, Conflicts, FeedConnections, PublishFailures)
	prometheus.MustRegister(DBOpenConns, DBIdleConns, DBInUseConns)
}
