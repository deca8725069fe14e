// Package metrics exposes the supervisor's Prometheus metrics. All
// metrics here are purely observational: none of them read or influence
// message payloads, only supervisor-level lifecycle events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RestartsTotal counts hot-reload restart attempts by outcome.
	RestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_hot_reload_restarts_total",
			Help: "Total number of hot-reload restart attempts",
		},
		[]string{"result"},
	)

	// BuildDuration tracks how long each build command took.
	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcp_hot_reload_build_duration_seconds",
			Help:    "Duration of build command executions",
			Buckets: prometheus.DefBuckets,
		},
	)

	// BuildResultTotal counts build outcomes.
	BuildResultTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_hot_reload_build_result_total",
			Help: "Total number of build command outcomes",
		},
		[]string{"result"},
	)

	// ChildCrashesTotal counts unexpected child process exits.
	ChildCrashesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mcp_hot_reload_child_crashes_total",
			Help: "Total number of unexpected child process exits",
		},
	)

	// QueueDepth tracks how many records are currently queued awaiting a
	// connected child.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcp_hot_reload_queue_depth",
			Help: "Number of JSON-RPC records currently queued",
		},
	)

	// ChildUp is 1 while a child is attached and tracked as running, 0
	// otherwise.
	ChildUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcp_hot_reload_child_up",
			Help: "Whether a child process is currently up (1) or not (0)",
		},
	)
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// RecordRestart records the outcome of one hot-reload restart attempt.
func RecordRestart(success bool) {
	RestartsTotal.WithLabelValues(resultLabel(success)).Inc()
}

// RecordBuild records the outcome and duration of one build execution.
func RecordBuild(success bool, durationSeconds float64) {
	BuildDuration.Observe(durationSeconds)
	BuildResultTotal.WithLabelValues(resultLabel(success)).Inc()
}

// RecordChildCrash increments the unexpected-exit counter.
func RecordChildCrash() {
	ChildCrashesTotal.Inc()
}

// SetQueueDepth sets the current queue depth gauge.
func SetQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

// SetChildUp sets the child liveness gauge.
func SetChildUp(up bool) {
	if up {
		ChildUp.Set(1)
		return
	}
	ChildUp.Set(0)
}

func resultLabel(success bool) string {
	if success {
		return ResultSuccess
	}
	return ResultFailure
}

// Handler returns the Prometheus scrape handler, served by the
// supervisor on the configured --metrics-addr.
func Handler() http.Handler {
	return promhttp.Handler()
}
