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
	TransactionsReceived prometheus.Counter
	TradeEventsIngested  *prometheus.CounterVec
	DecodeErrors         *prometheus.CounterVec
	StreamReconnects     prometheus.Counter
	StreamErrors         *prometheus.CounterVec
	HighestSlotSeen      prometheus.Gauge

	// Engine metrics
	BufferSize        *prometheus.GaugeVec
	BufferSpan        *prometheus.GaugeVec
	OutOfOrderEvents  prometheus.Counter
	GroupsTracked     prometheus.Gauge
	CooldownEntries   prometheus.Gauge
	MatchesDetected   *prometheus.CounterVec
	AlertsEmitted     *prometheus.CounterVec
	AlertsSuppressed  *prometheus.CounterVec
	AlertSinkFailures *prometheus.CounterVec

	// Market cap metrics
	MarketCapLookups *prometheus.CounterVec
	MarketCapLatency prometheus.Histogram

	// Batch metrics
	BatchRunsTotal   *prometheus.CounterVec
	BatchDuration    *prometheus.HistogramVec
	BatchRowsFetched *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastEventTimestamp prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_leader_lab"
	}

	return &Metrics{
		TransactionsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "transactions_received_total",
			Help:      "Total number of transactions fetched from the stream",
		}),
		TradeEventsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trade_events_total",
			Help:      "Total number of normalized trade events by side and market",
		}, []string{"side", "market"}),
		DecodeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "decode_errors_total",
			Help:      "Transactions skipped by the normalizer by reason",
		}, []string{"reason"}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "stream_reconnects_total",
			Help:      "Total number of stream resubscriptions",
		}),
		StreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "stream_errors_total",
			Help:      "Total number of stream and RPC failures by stage",
		}, []string{"stage"}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		BufferSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "buffer_size",
			Help:      "Events retained in the window buffer",
		}, []string{"strategy"}),
		BufferSpan: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "buffer_span_seconds",
			Help:      "Time between the oldest and newest buffered events",
		}, []string{"strategy"}),
		OutOfOrderEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "out_of_order_events_total",
			Help:      "Events that arrived older than the buffer tail",
		}),
		GroupsTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "groups_tracked",
			Help:      "Co-occurrence groups with sighting history",
		}),
		CooldownEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cooldown_entries",
			Help:      "Wallets tracked by the alert cooldown gate",
		}),
		MatchesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "matches_total",
			Help:      "Raw detector matches before attribution",
		}, []string{"strategy"}),
		AlertsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "emitted_total",
			Help:      "Leader alerts emitted by strategy",
		}, []string{"strategy"}),
		AlertsSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Leader candidates not promoted by strategy and reason",
		}, []string{"strategy", "reason"}),
		AlertSinkFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sink_failures_total",
			Help:      "Alert deliveries that failed by sink",
		}, []string{"sink"}),

		MarketCapLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketcap",
			Name:      "lookups_total",
			Help:      "Market cap lookups by result (hit, l2_hit, fetched, unknown)",
		}, []string{"result"}),
		MarketCapLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketcap",
			Name:      "fetch_latency_seconds",
			Help:      "External market cap fetch latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		BatchRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total number of batch strategy runs by status",
		}, []string{"strategy", "status"}),
		BatchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Batch strategy duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"strategy"}),
		BatchRowsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "rows_fetched_total",
			Help:      "Trade rows loaded from the analytical store",
		}, []string{"strategy"}),

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

		LastEventTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_timestamp",
			Help:      "Unix timestamp of the last processed trade event",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTransaction increments the transactions received counter.
func RecordTransaction(slot int64) {
	DefaultMetrics.TransactionsReceived.Inc()
	if slot > 0 {
		DefaultMetrics.HighestSlotSeen.Set(float64(slot))
	}
}

// RecordTradeEvent counts one normalized event.
func RecordTradeEvent(side, market string, unixSeconds int64) {
	DefaultMetrics.TradeEventsIngested.WithLabelValues(side, market).Inc()
	DefaultMetrics.LastEventTimestamp.Set(float64(unixSeconds))
}

// RecordDecodeError counts a skipped transaction.
func RecordDecodeError(reason string) {
	DefaultMetrics.DecodeErrors.WithLabelValues(reason).Inc()
}

// RecordReconnect counts a stream resubscription.
func RecordReconnect() {
	DefaultMetrics.StreamReconnects.Inc()
}

// RecordStreamError counts a transport or RPC failure.
func RecordStreamError(stage string) {
	DefaultMetrics.StreamErrors.WithLabelValues(stage).Inc()
}

// UpdateEngineState updates buffer, group and cooldown gauges.
func UpdateEngineState(strategy string, bufferLen int, bufferSpanSeconds float64, groups, cooldowns int) {
	DefaultMetrics.BufferSize.WithLabelValues(strategy).Set(float64(bufferLen))
	DefaultMetrics.BufferSpan.WithLabelValues(strategy).Set(bufferSpanSeconds)
	DefaultMetrics.GroupsTracked.Set(float64(groups))
	DefaultMetrics.CooldownEntries.Set(float64(cooldowns))
}

// RecordOutOfOrder counts a late event.
func RecordOutOfOrder() {
	DefaultMetrics.OutOfOrderEvents.Inc()
}

// RecordMatch counts a raw detector match.
func RecordMatch(strategy string) {
	DefaultMetrics.MatchesDetected.WithLabelValues(strategy).Inc()
}

// RecordAlert counts an emitted alert.
func RecordAlert(strategy string) {
	DefaultMetrics.AlertsEmitted.WithLabelValues(strategy).Inc()
}

// RecordSuppressed counts a candidate that was not promoted.
func RecordSuppressed(strategy, reason string) {
	DefaultMetrics.AlertsSuppressed.WithLabelValues(strategy, reason).Inc()
}

// RecordSinkFailure counts a failed alert delivery.
func RecordSinkFailure(sink string) {
	DefaultMetrics.AlertSinkFailures.WithLabelValues(sink).Inc()
}

// RecordMarketCapLookup counts a market cap lookup by result.
func RecordMarketCapLookup(result string) {
	DefaultMetrics.MarketCapLookups.WithLabelValues(result).Inc()
}

// RecordMarketCapFetch records external fetch latency.
func RecordMarketCapFetch(seconds float64) {
	DefaultMetrics.MarketCapLatency.Observe(seconds)
}

// RecordBatchRun records a batch strategy run.
func RecordBatchRun(strategy, status string, durationSeconds float64, rows int) {
	DefaultMetrics.BatchRunsTotal.WithLabelValues(strategy, status).Inc()
	DefaultMetrics.BatchDuration.WithLabelValues(strategy).Observe(durationSeconds)
	DefaultMetrics.BatchRowsFetched.WithLabelValues(strategy).Add(float64(rows))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
