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
	// Ledger metrics
	EventsIngested *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec
	WindowSlots    prometheus.Gauge
	HighestSlot    prometheus.Gauge
	MaskPopcount   prometheus.Histogram

	// Readiness metrics
	Evaluations *prometheus.CounterVec
	Triggers    prometheus.Counter

	// Scheduler metrics
	SlotArrivalMs prometheus.Histogram
	SlotMissed    prometheus.Counter

	// Concurrency metrics
	LockWait       prometheus.Histogram
	LockTimeouts   prometheus.Counter
	AttemptsDenied *prometheus.CounterVec

	// Order metrics
	OrdersCreated  prometheus.Counter
	OrderOutcomes  *prometheus.CounterVec
	MonitorCycles  *prometheus.CounterVec
	MonitorLatency prometheus.Histogram

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	BreakerState   *prometheus.GaugeVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulMonitor prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_slot_sniper"
	}

	return &Metrics{
		// Ledger metrics
		EventsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_ingested_total",
			Help:      "Total number of raw events ingested by kind",
		}, []string{"kind"}),
		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_dropped_total",
			Help:      "Total number of raw events dropped by reason",
		}, []string{"reason"}),
		WindowSlots: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "window_slots",
			Help:      "Number of slot buckets currently retained",
		}),
		HighestSlot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "highest_slot_seen",
			Help:      "Highest slot number ingested",
		}),
		MaskPopcount: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "mask_popcount",
			Help:      "Population count of evidence masks at evaluation time",
			Buckets:   prometheus.LinearBuckets(0, 1, 16),
		}),

		// Readiness metrics
		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "readiness",
			Name:      "evaluations_total",
			Help:      "Total number of readiness evaluations by resulting state",
		}, []string{"state"}),
		Triggers: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "readiness",
			Name:      "triggers_total",
			Help:      "Total number of one-shot triggers emitted",
		}),

		// Scheduler metrics
		SlotArrivalMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "arrival_ms_into_slot",
			Help:      "Milliseconds into the target slot at which the trigger fired",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
		SlotMissed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "slot_missed_total",
			Help:      "Total number of waits whose target slot had already passed",
		}),

		// Concurrency metrics
		LockWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "keylock",
			Name:      "wait_seconds",
			Help:      "Time spent queued behind earlier tasks for the same key",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		LockTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keylock",
			Name:      "timeouts_total",
			Help:      "Total number of exclusive tasks that exceeded their timeout",
		}),
		AttemptsDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keylock",
			Name:      "attempts_denied_total",
			Help:      "Total number of attempts refused by the limiter by command",
		}, []string{"command"}),

		// Order metrics
		OrdersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Total number of follow-up orders created",
		}),
		OrderOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "outcomes_total",
			Help:      "Total number of matched orders by kind and outcome",
		}, []string{"kind", "outcome"}),
		MonitorCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Total number of monitor cycles by status",
		}, []string{"status"}),
		MonitorLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a monitor cycle across all users",
			Buckets:   prometheus.DefBuckets,
		}),

		// RPC metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulMonitor: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_monitor_timestamp",
			Help:      "Unix timestamp of last successful monitor cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventIngested increments the ingested events counter.
func RecordEventIngested(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	DefaultMetrics.EventsIngested.WithLabelValues(kind).Inc()
}

// RecordEventDropped records a dropped event.
func RecordEventDropped(reason string) {
	DefaultMetrics.EventsDropped.WithLabelValues(reason).Inc()
}

// UpdateWindow updates the retained-window gauges.
func UpdateWindow(slots int, highest int64) {
	DefaultMetrics.WindowSlots.Set(float64(slots))
	DefaultMetrics.HighestSlot.Set(float64(highest))
}

// RecordEvaluation records a readiness evaluation.
func RecordEvaluation(state string, popcount int) {
	DefaultMetrics.Evaluations.WithLabelValues(state).Inc()
	DefaultMetrics.MaskPopcount.Observe(float64(popcount))
}

// RecordTrigger increments the trigger counter.
func RecordTrigger() {
	DefaultMetrics.Triggers.Inc()
}

// RecordSlotArrival records how far into the target slot a wait fired.
func RecordSlotArrival(msIntoSlot int64) {
	DefaultMetrics.SlotArrivalMs.Observe(float64(msIntoSlot))
}

// RecordSlotMissed increments the missed slot counter.
func RecordSlotMissed() {
	DefaultMetrics.SlotMissed.Inc()
}

// RecordLockWait records queue wait time for an exclusive task.
func RecordLockWait(seconds float64) {
	DefaultMetrics.LockWait.Observe(seconds)
}

// RecordLockTimeout increments the exclusive task timeout counter.
func RecordLockTimeout() {
	DefaultMetrics.LockTimeouts.Inc()
}

// RecordThrottled records an attempt refused by the limiter.
func RecordThrottled(command string) {
	DefaultMetrics.AttemptsDenied.WithLabelValues(command).Inc()
}

// RecordOrdersCreated adds n to the created orders counter.
func RecordOrdersCreated(n int) {
	DefaultMetrics.OrdersCreated.Add(float64(n))
}

// RecordOrderOutcome records a matched order outcome.
func RecordOrderOutcome(kind, outcome string) {
	DefaultMetrics.OrderOutcomes.WithLabelValues(kind, outcome).Inc()
}

// RecordMonitorCycle records a monitor cycle.
func RecordMonitorCycle(status string, seconds float64, unixNow int64) {
	DefaultMetrics.MonitorCycles.WithLabelValues(status).Inc()
	DefaultMetrics.MonitorLatency.Observe(seconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulMonitor.Set(float64(unixNow))
	}
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordBreakerState records a circuit breaker state transition.
func RecordBreakerState(name string, state int) {
	DefaultMetrics.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
