// Package metrics defines the Prometheus instrumentation for the worker
// pool autoscaler, grounded on the reference corpus's consumer/metrics
// package-level promauto pattern.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/qsdfplkj/azure-functions-host/internal/concurrency"
)

var (
	// WorkerCount is the number of live worker channels as of the last
	// completed manager tick.
	WorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "functions_host_worker_count",
		Help: "Current number of live language worker channels.",
	})

	// WorkerLatencySeconds observes, once per manager tick, the newest
	// probe latency in each worker's history.
	WorkerLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "functions_host_worker_latency_seconds",
		Help:    "RPC round-trip latency observed by per-worker status probes.",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker_id"})

	// WorkerScaleUpsTotal counts successful worker-pool growth decisions.
	WorkerScaleUpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "functions_host_worker_scale_ups_total",
		Help: "Total number of worker channels started by the concurrency manager.",
	})

	// ManagerTickDurationSeconds observes the wall time of a single manager
	// tick (status query + decision + optional scale-up).
	ManagerTickDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "functions_host_manager_tick_duration_seconds",
		Help:    "Duration of a single ConcurrencyManager tick.",
		Buckets: prometheus.DefBuckets,
	})
)

// Recorder adapts the package-level Prometheus collectors to the
// concurrency.MetricsRecorder interface the manager depends on, so the
// core package stays free of a direct Prometheus import.
type Recorder struct{}

// NewRecorder returns a MetricsRecorder backed by the package-level
// collectors above.
func NewRecorder() Recorder {
	return Recorder{}
}

func (Recorder) SetWorkerCount(n int) {
	WorkerCount.Set(float64(n))
}

func (Recorder) ObserveWorkerLatency(workerID string, d time.Duration) {
	WorkerLatencySeconds.WithLabelValues(workerID).Observe(d.Seconds())
}

func (Recorder) IncScaleUps() {
	WorkerScaleUpsTotal.Inc()
}

func (Recorder) ObserveTickDuration(d time.Duration) {
	ManagerTickDurationSeconds.Observe(d.Seconds())
}

var _ concurrency.MetricsRecorder = Recorder{}
