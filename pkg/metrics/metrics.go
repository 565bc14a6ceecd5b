package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for benchrun.
// Using promauto for automatic registration with default registry.
var (
	// --- Facade Metrics ---

	// RunsTotal counts entry point calls by target shape and outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "benchrun",
			Subsystem: "runs",
			Name:      "total",
			Help:      "Total number of benchmark entry point calls by shape and outcome",
		},
		[]string{"shape", "outcome"},
	)

	// DeclarationErrors counts declaration errors turned into placeholder summaries.
	DeclarationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "benchrun",
			Subsystem: "runs",
			Name:      "declaration_errors_total",
			Help:      "Total number of contained benchmark declaration errors",
		},
		[]string{"shape"},
	)

	// ResolutionGuardHolders tracks outstanding resolution guard tokens.
	ResolutionGuardHolders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "benchrun",
			Subsystem: "resolution",
			Name:      "guard_holders",
			Help:      "Number of in-flight calls holding the module resolution guard",
		},
	)

	// --- API Metrics ---

	// HTTPRequests counts API requests by route template, status and caller role.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "benchrun",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "route", "status", "role"},
	)

	// HTTPDuration tracks API latency. Synchronous runs dominate the upper buckets.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "benchrun",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency in seconds",
			Buckets:   []float64{.005, .025, .1, .5, 1, 5, 30, 120},
		},
		[]string{"method", "route"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "benchrun",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of API requests currently being served",
		},
	)

	// --- Engine Metrics ---

	// EngineDuration tracks how long a descriptor takes to execute.
	EngineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "benchrun",
			Subsystem: "engine",
			Name:      "duration_seconds",
			Help:      "Duration of descriptor executions in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~3.4m
		},
		[]string{"runner", "status"},
	)

	// BenchmarksMeasured counts individual benchmarks measured.
	BenchmarksMeasured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "benchrun",
			Subsystem: "engine",
			Name:      "benchmarks_total",
			Help:      "Total number of individual benchmarks measured",
		},
		[]string{"runner"},
	)

	// --- Scheduler Metrics ---

	// SchedulerLag measures delay between scheduled time and actual dispatch.
	SchedulerLag = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "benchrun",
			Subsystem: "scheduler",
			Name:      "lag_seconds",
			Help:      "Delay between scheduled time and actual dispatch",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
	)

	// SchedulerPolls counts scheduler poll cycles.
	SchedulerPolls = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "benchrun",
			Subsystem: "scheduler",
			Name:      "polls_total",
			Help:      "Total number of scheduler poll cycles",
		},
	)

	// RequestsDispatched counts run requests pushed to the queue.
	RequestsDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "benchrun",
			Subsystem: "scheduler",
			Name:      "requests_dispatched_total",
			Help:      "Total number of run requests dispatched",
		},
	)

	// RetriesTotal counts re-queued infrastructure failures.
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "benchrun",
			Subsystem: "scheduler",
			Name:      "retries_total",
			Help:      "Total number of run requests retried after an infrastructure failure",
		},
	)

	// OrphansReaped counts requests cleaned up after their worker died.
	OrphansReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "benchrun",
			Subsystem: "scheduler",
			Name:      "orphans_reaped_total",
			Help:      "Total number of orphaned run requests cleaned up",
		},
	)

	// --- Worker Metrics ---

	// WorkerRunsInFlight tracks concurrent runs on a worker.
	WorkerRunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "benchrun",
			Subsystem: "worker",
			Name:      "runs_in_flight",
			Help:      "Number of run requests currently executing on this worker",
		},
	)

	// RequestsCompleted counts finished run requests by final status.
	RequestsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "benchrun",
			Subsystem: "worker",
			Name:      "requests_completed_total",
			Help:      "Total number of run requests completed by status",
		},
		[]string{"status"},
	)

	// HeartbeatsSent counts heartbeats sent by workers.
	HeartbeatsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "benchrun",
			Subsystem: "worker",
			Name:      "heartbeats_total",
			Help:      "Total heartbeats sent",
		},
	)

	// ActiveNodes tracks number of live workers seen by the scheduler.
	ActiveNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "benchrun",
			Subsystem: "cluster",
			Name:      "active_nodes",
			Help:      "Number of active worker nodes",
		},
	)
)

// RecordRun records the outcome of one entry point call.
func RecordRun(shape, outcome string) {
	RunsTotal.WithLabelValues(shape, outcome).Inc()
}

// RecordExecution records metrics for one executed descriptor.
func RecordExecution(runner, status string, benchmarks int, durationSeconds float64) {
	EngineDuration.WithLabelValues(runner, status).Observe(durationSeconds)
	BenchmarksMeasured.WithLabelValues(runner).Add(float64(benchmarks))
}

// RecordDispatch records a run request being dispatched.
func RecordDispatch(lagSeconds float64) {
	RequestsDispatched.Inc()
	SchedulerLag.Observe(lagSeconds)
}
