package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for SynthLedger.
type Metrics struct {
	// --- Engine ---
	OpsApplied   *prometheus.CounterVec
	OpsRejected  *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	Journals     *prometheus.CounterVec
	StateHashDur prometheus.Histogram
	Sequence     prometheus.Gauge

	// --- Contract state ---
	FeeMultiplier     prometheus.Gauge
	RawCollateral     prometheus.Gauge
	TokensOutstanding prometheus.Gauge
	PositionCount     prometheus.Gauge
	ContractState     prometheus.Gauge

	// --- Fees ---
	RegularFeesPaid prometheus.Counter
	FinalFeesPaid   prometheus.Counter

	// --- Liquidation & dispute ---
	LiquidationsCreated prometheus.Counter
	LiquidationsByState *prometheus.GaugeVec
	DisputeOutcomes     *prometheus.CounterVec
	LiquidationPayouts  prometheus.Counter

	// --- Settlement ---
	SettlementPayouts prometheus.Counter
	SettlementsTotal  prometheus.Counter

	// --- Ingestion ---
	PricesIngested  *prometheus.CounterVec
	PriceParseError prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistLastSequence    prometheus.Gauge
	SnapshotsTaken         prometheus.Counter
	SnapshotDuration       prometheus.Histogram
	SnapshotLastSequence   prometheus.Gauge

	// --- HTTP API ---
	APIRequests *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_engine_ops_applied_total",
			Help: "Operations successfully applied by the engine",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_engine_ops_rejected_total",
			Help: "Operations rejected by precondition checks",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_engine_op_duration_seconds",
			Help:    "Time to apply a single operation",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		Journals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_engine_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		StateHashDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "synth_engine_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		Sequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_engine_sequence",
			Help: "Current global sequence number",
		}),

		FeeMultiplier: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_fee_multiplier",
			Help: "Cumulative fee multiplier (1e18 fixed point, scaled to float)",
		}),

		RawCollateral: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_raw_total_collateral",
			Help: "Raw total position collateral (scaled to float)",
		}),

		TokensOutstanding: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_tokens_outstanding",
			Help: "Total synthetic tokens outstanding (scaled to float)",
		}),

		PositionCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_position_count",
			Help: "Number of open sponsor positions",
		}),

		ContractState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_contract_state",
			Help: "Contract lifecycle state (0=Open, 1=ExpiredPriceRequested, 2=ExpiredPriceReceived)",
		}),

		RegularFeesPaid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_regular_fees_paid_total",
			Help: "Regular fee payments settled to the store",
		}),

		FinalFeesPaid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_final_fees_paid_total",
			Help: "Final fee payments at expiry or shutdown",
		}),

		LiquidationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_liquidations_created_total",
			Help: "Liquidations opened",
		}),

		LiquidationsByState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synth_liquidations_by_state",
			Help: "Live liquidation records by state",
		}, []string{"state"}),

		DisputeOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_dispute_outcomes_total",
			Help: "Dispute resolutions by outcome",
		}, []string{"outcome"}),

		LiquidationPayouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_liquidation_payouts_total",
			Help: "Liquidation payout withdrawals",
		}),

		SettlementPayouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_settlement_payouts_total",
			Help: "Expiry settlement payouts",
		}),

		SettlementsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_settlements_total",
			Help: "settleExpired calls applied",
		}),

		PricesIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_prices_ingested_total",
			Help: "Oracle price resolutions ingested",
		}, []string{"identifier"}),

		PriceParseError: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_price_parse_errors_total",
			Help: "Malformed oracle price messages",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "synth_persist_batch_size",
			Help:    "Events per persistence batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		SnapshotsTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_snapshots_taken_total",
			Help: "State snapshots saved",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "synth_snapshot_duration_seconds",
			Help:    "Time to capture and save a state snapshot",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		SnapshotLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_snapshot_last_sequence",
			Help: "Sequence of the newest saved snapshot",
		}),

		APIRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_api_requests_total",
			Help: "API requests",
		}, []string{"endpoint", "status"}),

		APIDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
