package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline names used as label values.
const (
	PipelineGatewayNodes = "gateway_nodes"
	PipelineCapacity     = "capacity"
	PipelineFilesystems  = "filesystems"
	PipelineSubsystems   = "subsystems"
)

// Reasons for requests refused by the HTTP middlewares.
const (
	RejectRateLimit = "rate_limit"
	RejectCIDR      = "cidr"
	RejectHost      = "host"
)

// Outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

var (
	// fetchCycles counts completed fetch cycles.
	// Labels: pipeline, outcome
	fetchCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clusterview",
		Subsystem: "aggregator",
		Name:      "fetch_cycles_total",
		Help:      "Completed fetch cycles by pipeline and outcome",
	}, []string{"pipeline", "outcome"})

	// fetchDropped counts fetches ignored because a cycle was in flight.
	fetchDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clusterview",
		Subsystem: "aggregator",
		Name:      "fetch_dropped_total",
		Help:      "Fetch requests dropped while another cycle was in flight",
	}, []string{"pipeline"})

	fetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clusterview",
		Subsystem: "aggregator",
		Name:      "fetch_duration_seconds",
		Help:      "Fetch cycle latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"pipeline"})

	// tasks counts tracked mutations.
	// Labels: task (ex: nvmeof/gateway-node/delete), outcome
	tasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clusterview",
		Subsystem: "tasks",
		Name:      "executed_total",
		Help:      "Tracked mutations by task name and outcome",
	}, []string{"task", "outcome"})

	viewRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "clusterview",
		Subsystem: "aggregator",
		Name:      "view_rows",
		Help:      "Rows in the last emitted view",
	}, []string{"pipeline"})

	rejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clusterview",
		Subsystem: "http",
		Name:      "rejected_total",
		Help:      "Requests refused before reaching a handler",
	}, []string{"reason"})
)

// ObserveFetch records a finished fetch cycle.
func ObserveFetch(pipeline, outcome string, elapsed time.Duration) {
	fetchCycles.WithLabelValues(pipeline, outcome).Inc()
	fetchLatency.WithLabelValues(pipeline).Observe(elapsed.Seconds())
}

// ObserveDropped records a fetch skipped by the in-flight guard.
func ObserveDropped(pipeline string) {
	fetchDropped.WithLabelValues(pipeline).Inc()
}

// ObserveRows records the size of the last emitted view.
func ObserveRows(pipeline string, n int) {
	viewRows.WithLabelValues(pipeline).Set(float64(n))
}

// ObserveTask records a tracked mutation.
func ObserveTask(task, outcome string) {
	tasks.WithLabelValues(task, outcome).Inc()
}

// ObserveRejected records a request refused by a middleware.
func ObserveRejected(reason string) {
	rejected.WithLabelValues(reason).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
