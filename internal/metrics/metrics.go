// ============================================================================
// docqueue Metrics - Prometheus instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: expose ingestion, queue and worker metrics to Prometheus
//
// Metrics:
//
//   1. Counters:
//      - docqueue_tasks_enqueued_total
//      - docqueue_uploads_rejected_total{reason}      unsupported_format | conflict | download | invalid
//      - docqueue_tasks_completed_total
//      - docqueue_tasks_failed_total{kind}            rejected | classifier_error | timeout | error | queue_loop
//      - docqueue_worker_starts_total                 first start plus every restart
//
//   2. Histogram:
//      - docqueue_extraction_duration_seconds         successful extractions only
//
//   3. Gauges:
//      - docqueue_queue_depth                         task entries waiting
//      - docqueue_worker_busy                         1 while a task is being processed
//
// Useful queries:
//
//   # timeouts per hour
//   increase(docqueue_tasks_failed_total{kind="timeout"}[1h])
//
//   # p95 extraction time
//   histogram_quantile(0.95, rate(docqueue_extraction_duration_seconds_bucket[5m]))
//
// Every method is safe on a nil *Collector so tests and tools can run
// without instrumentation.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure kinds used as the "kind" label.
const (
	KindRejected        = "rejected"
	KindClassifierError = "classifier_error"
	KindTimeout         = "timeout"
	KindError           = "error"
	KindQueueLoop       = "queue_loop"
)

// Upload rejection reasons used as the "reason" label.
const (
	ReasonUnsupportedFormat = "unsupported_format"
	ReasonConflict          = "conflict"
	ReasonDownload          = "download"
	ReasonInvalid           = "invalid"
)

// Collector holds the docqueue Prometheus metrics.
type Collector struct {
	tasksEnqueued  prometheus.Counter
	uploadRejected *prometheus.CounterVec
	tasksCompleted prometheus.Counter
	tasksFailed    *prometheus.CounterVec
	workerStarts   prometheus.Counter

	extractionDuration prometheus.Histogram

	queueDepth prometheus.Gauge
	workerBusy prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// means prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		tasksEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docqueue_tasks_enqueued_total",
			Help: "Total number of tasks enqueued",
		}),
		uploadRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docqueue_uploads_rejected_total",
			Help: "Uploads rejected before a task was enqueued",
		}, []string{"reason"}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docqueue_tasks_completed_total",
			Help: "Total number of tasks completed successfully",
		}),
		tasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docqueue_tasks_failed_total",
			Help: "Total number of tasks that ended in failed",
		}, []string{"kind"}),
		workerStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docqueue_worker_starts_total",
			Help: "Number of times the worker loop was started",
		}),
		extractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docqueue_extraction_duration_seconds",
			Help:    "Duration of successful extractions in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docqueue_queue_depth",
			Help: "Current number of tasks waiting in the queue",
		}),
		workerBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docqueue_worker_busy",
			Help: "1 while the worker is processing a task",
		}),
	}

	reg.MustRegister(
		c.tasksEnqueued,
		c.uploadRejected,
		c.tasksCompleted,
		c.tasksFailed,
		c.workerStarts,
		c.extractionDuration,
		c.queueDepth,
		c.workerBusy,
	)

	return c
}

// RecordEnqueue counts one enqueued task.
func (c *Collector) RecordEnqueue() {
	if c == nil {
		return
	}
	c.tasksEnqueued.Inc()
}

// RecordRejected counts an upload refused before enqueue.
func (c *Collector) RecordRejected(reason string) {
	if c == nil {
		return
	}
	c.uploadRejected.WithLabelValues(reason).Inc()
}

// RecordCompleted counts a completed task and observes its extraction time.
func (c *Collector) RecordCompleted(latencySeconds float64) {
	if c == nil {
		return
	}
	c.tasksCompleted.Inc()
	c.extractionDuration.Observe(latencySeconds)
}

// RecordFailed counts a failed task by kind.
func (c *Collector) RecordFailed(kind string) {
	if c == nil {
		return
	}
	c.tasksFailed.WithLabelValues(kind).Inc()
}

// RecordWorkerStart counts a (re)start of the worker loop.
func (c *Collector) RecordWorkerStart() {
	if c == nil {
		return
	}
	c.workerStarts.Inc()
}

// SetQueueDepth sets the number of waiting tasks.
func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

// SetBusy flags whether the worker is processing a task.
func (c *Collector) SetBusy(busy bool) {
	if c == nil {
		return
	}
	if busy {
		c.workerBusy.Set(1)
		return
	}
	c.workerBusy.Set(0)
}

// CompletedCounter exposes the completed-task counter.
func (c *Collector) CompletedCounter() prometheus.Counter {
	return c.tasksCompleted
}

// FailedCounter exposes the failed-task counter for one kind.
func (c *Collector) FailedCounter(kind string) prometheus.Counter {
	return c.tasksFailed.WithLabelValues(kind)
}

// RejectedCounter exposes the rejected-upload counter for one reason.
func (c *Collector) RejectedCounter(reason string) prometheus.Counter {
	return c.uploadRejected.WithLabelValues(reason)
}

// WorkerStartsCounter exposes the worker start counter.
func (c *Collector) WorkerStartsCounter() prometheus.Counter {
	return c.workerStarts
}

// NewServer returns the HTTP server exposing /metrics on port. A nil
// gatherer means prometheus.DefaultGatherer.
func NewServer(port int, gatherer prometheus.Gatherer) *http.Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
}
