package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the lottery ledger.
type Metrics struct {
	// --- Engine ---
	EngineOpsApplied  *prometheus.CounterVec
	EngineOpsRejected *prometheus.CounterVec
	EngineOpDuration  *prometheus.HistogramVec
	EngineSequence    prometheus.Gauge

	// --- Remote reconciliation ---
	RemoteRequests      *prometheus.CounterVec
	RemoteRefundsIssued *prometheus.CounterVec
	OutboundTransfers   *prometheus.CounterVec
	OutboundFeeBudget   prometheus.Gauge

	// --- Channels & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	DedupDuplicates *prometheus.CounterVec
	DedupLRUSize    prometheus.Gauge
	DedupDBErrors   prometheus.Counter

	// --- Ingestion ---
	IngestReceived *prometheus.CounterVec
	IngestAcked    *prometheus.CounterVec
	IngestNaked    *prometheus.CounterVec
	IngestParseErr *prometheus.CounterVec

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge

	// --- Projection ---
	ProjectionUpdateDur *prometheus.HistogramVec
	ProjectionWatermark prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		EngineOpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lotto_engine_ops_applied_total",
			Help: "Operations successfully applied by the engine",
		}, []string{"kind"}),

		EngineOpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lotto_engine_ops_rejected_total",
			Help: "Operations rejected (duplicate, validation)",
		}, []string{"kind", "reason"}),

		EngineOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lotto_engine_op_duration_seconds",
			Help:    "Time to apply one operation",
			Buckets: latencyBuckets,
		}, []string{"kind"}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lotto_engine_sequence",
			Help: "Current global sequence number",
		}),

		RemoteRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lotto_remote_requests_total",
			Help: "Remote requests reconciled",
		}, []string{"kind", "outcome"}),

		RemoteRefundsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lotto_remote_refunds_issued_total",
			Help: "Refund credits issued during reconciliation",
		}, []string{"kind"}),

		OutboundTransfers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lotto_outbound_transfers_total",
			Help: "Outbound transfers handed to the transport",
		}, []string{"destination", "status"}),

		OutboundFeeBudget: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lotto_outbound_fee_budget",
			Help: "Remaining interchain fee budget",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lotto_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lotto_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lotto_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lotto_projection_drops_total",
			Help: "Outputs dropped due to full projection channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lotto_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		DedupDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lotto_dedup_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"kind", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lotto_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupDBErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lotto_dedup_db_errors_total",
			Help: "Cold-path dedup lookup failures",
		}),

		IngestReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lotto_ingest_received_total",
			Help: "Messages pulled from NATS",
		}, []string{"subject"}),

		IngestAcked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lotto_ingest_acked_total",
			Help: "Messages acked",
		}, []string{"subject"}),

		IngestNaked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lotto_ingest_naked_total",
			Help: "Messages naked for redelivery",
		}, []string{"subject"}),

		IngestParseErr: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lotto_ingest_parse_errors_total",
			Help: "Messages that failed to parse (terminated)",
		}, []string{"subject"}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lotto_persist_events_written_total",
			Help: "Envelopes written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lotto_persist_batch_size",
			Help:    "Envelopes per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lotto_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lotto_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lotto_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lotto_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lotto_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lotto_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lotto_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lotto_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lotto_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		ProjectionWatermark: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lotto_projection_watermark",
			Help: "Highest sequence applied to projections",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lotto_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lotto_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
