// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	EventsReceived prometheus.Counter
	VotesAccepted  *prometheus.CounterVec
	VotesDuplicate prometheus.Counter
	EventErrors    *prometheus.CounterVec
	IngestLatency  prometheus.Histogram

	// Scoring metrics
	AggregationsTotal   *prometheus.CounterVec
	AggregationDuration prometheus.Histogram
	AggregationQueue    prometheus.Gauge
	ReconcileRepairs    prometheus.Counter

	// Broadcast metrics
	BroadcastClients  prometheus.Gauge
	BroadcastMessages *prometheus.CounterVec
	BroadcastDropped  prometheus.Counter

	// Prize pool metrics
	PoolPollsTotal *prometheus.CounterVec
	PoolValue      prometheus.Gauge
	PoolStale      prometheus.Gauge

	// Solana metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastAcceptedVote prometheus.Gauge
	UptimeSeconds    prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vote_tracker"
	}

	return &Metrics{
		// Ingestion metrics
		EventsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_received_total",
			Help:      "Total number of transfer events received from the webhook provider",
		}),
		VotesAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "votes_accepted_total",
			Help:      "Total number of votes written to the ledger by memo resolution",
		}, []string{"resolved"}),
		VotesDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "votes_duplicate_total",
			Help:      "Total number of redelivered transactions dropped as duplicates",
		}),
		EventErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "event_errors_total",
			Help:      "Total number of events not ledgered, by reason",
		}, []string{"reason"}),
		IngestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "batch_latency_seconds",
			Help:      "Webhook batch processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Scoring metrics
		AggregationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "aggregations_total",
			Help:      "Total number of score recomputations by trigger",
		}, []string{"trigger"}),
		AggregationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "aggregation_duration_seconds",
			Help:      "Score recomputation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		AggregationQueue: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "aggregation_queue_size",
			Help:      "Number of submissions waiting for recomputation",
		}),
		ReconcileRepairs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "reconcile_repairs_total",
			Help:      "Total number of score rows corrected by the reconciliation sweep",
		}),

		// Broadcast metrics
		BroadcastClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "connected_clients",
			Help:      "Number of connected WebSocket subscribers",
		}),
		BroadcastMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "messages_total",
			Help:      "Total number of messages broadcast by type",
		}, []string{"type"}),
		BroadcastDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "messages_dropped_total",
			Help:      "Total number of messages dropped on slow subscribers",
		}),

		// Prize pool metrics
		PoolPollsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "polls_total",
			Help:      "Total number of prize pool polls by status",
		}, []string{"status"}),
		PoolValue: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "total_value",
			Help:      "Last computed prize pool value in the quote currency",
		}),
		PoolStale: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "snapshot_stale",
			Help:      "1 when the served snapshot comes from a failed poll fallback",
		}),

		// Solana metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastAcceptedVote: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_accepted_vote_timestamp",
			Help:      "Unix timestamp of the last vote written to the ledger",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventReceived increments the events received counter.
func RecordEventReceived() {
	DefaultMetrics.EventsReceived.Inc()
}

// RecordVoteAccepted records a ledgered vote.
func RecordVoteAccepted(resolved bool) {
	label := "true"
	if !resolved {
		label = "false"
	}
	DefaultMetrics.VotesAccepted.WithLabelValues(label).Inc()
	DefaultMetrics.LastAcceptedVote.SetToCurrentTime()
}

// RecordVoteDuplicate increments the duplicate counter.
func RecordVoteDuplicate() {
	DefaultMetrics.VotesDuplicate.Inc()
}

// RecordEventError records an event that was not ledgered.
func RecordEventError(reason string) {
	DefaultMetrics.EventErrors.WithLabelValues(reason).Inc()
}

// RecordIngestLatency records a webhook batch processing duration.
func RecordIngestLatency(seconds float64) {
	DefaultMetrics.IngestLatency.Observe(seconds)
}

// RecordAggregation records a score recomputation.
func RecordAggregation(trigger string, seconds float64) {
	DefaultMetrics.AggregationsTotal.WithLabelValues(trigger).Inc()
	DefaultMetrics.AggregationDuration.Observe(seconds)
}

// UpdateAggregationQueue updates the pending submissions gauge.
func UpdateAggregationQueue(size int) {
	DefaultMetrics.AggregationQueue.Set(float64(size))
}

// RecordReconcileRepair increments the reconciliation repair counter.
func RecordReconcileRepair() {
	DefaultMetrics.ReconcileRepairs.Inc()
}

// UpdateBroadcastClients updates the connected subscribers gauge.
func UpdateBroadcastClients(n int) {
	DefaultMetrics.BroadcastClients.Set(float64(n))
}

// RecordBroadcast records a fanned-out message.
func RecordBroadcast(messageType string) {
	DefaultMetrics.BroadcastMessages.WithLabelValues(messageType).Inc()
}

// RecordBroadcastDropped increments the slow-subscriber drop counter.
func RecordBroadcastDropped() {
	DefaultMetrics.BroadcastDropped.Inc()
}

// RecordPoolPoll records a prize pool poll outcome.
func RecordPoolPoll(status string) {
	DefaultMetrics.PoolPollsTotal.WithLabelValues(status).Inc()
}

// UpdatePoolValue updates the prize pool gauges.
func UpdatePoolValue(total float64, stale bool) {
	DefaultMetrics.PoolValue.Set(total)
	if stale {
		DefaultMetrics.PoolStale.Set(1)
	} else {
		DefaultMetrics.PoolStale.Set(0)
	}
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
