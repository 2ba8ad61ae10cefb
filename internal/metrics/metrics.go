// ============================================================================
// SPITS Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose ambient runtime metrics for Prometheus
//
// Metric Categories:
//
//   1. Task Counters - Cumulative, monotonically increasing:
//      - tasks_generated_total: Total tasks produced by job_manager_next_task
//      - tasks_sent_total: Total tasks admitted by a worker
//      - tasks_processed_total: Total tasks run to completion by a worker
//      - tasks_committed_total: Total results accepted by committer_commit_pit
//      - results_discarded_total: Duplicate / stale-run / future-run results
//      - results_error_total: Results whose status was non-zero
//
//   2. Performance Metrics (Histogram) - Distribution stats:
//      - task_latency_seconds: Dispatch-to-commit latency distribution
//
//   3. Status Metrics (Gauge) - Instantaneous values:
//      - pending_tasks: Current size of the coordinator's pending map
//      - workers_known: Current size of the discovery endpoint set
//
// This is the ambient observability surface: it answers to Prometheus over
// /metrics the way any service in this stack does. It is distinct from the
// Registry in registry.go, which answers the wire protocol's
// QUERY_METRICS_LIST/LAST/HISTORY verbs straight out of the native job's
// own named scalar metrics.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for one coordinator or worker
// process.
type Collector struct {
	tasksGenerated    prometheus.Counter
	tasksSent         prometheus.Counter
	tasksProcessed    prometheus.Counter
	tasksCommitted    prometheus.Counter
	resultsDiscarded  prometheus.Counter
	resultsError      prometheus.Counter

	taskLatency prometheus.Histogram

	pendingTasks prometheus.Gauge
	workersKnown prometheus.Gauge
}

// NewCollector creates and registers a new metrics collector.
func NewCollector() *Collector {
	c := &Collector{
		tasksGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spits_tasks_generated_total",
			Help: "Total number of tasks produced by job_manager_next_task",
		}),
		tasksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spits_tasks_sent_total",
			Help: "Total number of tasks admitted by a worker",
		}),
		tasksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spits_tasks_processed_total",
			Help: "Total number of tasks run to completion by worker_run",
		}),
		tasksCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spits_tasks_committed_total",
			Help: "Total number of results accepted by committer_commit_pit",
		}),
		resultsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spits_results_discarded_total",
			Help: "Total number of duplicate, stale-run, or future-run results discarded",
		}),
		resultsError: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spits_results_error_total",
			Help: "Total number of results whose status was non-zero",
		}),
		taskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spits_task_latency_seconds",
			Help:    "Dispatch-to-commit latency per task, in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		pendingTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spits_pending_tasks",
			Help: "Current number of tasks in the coordinator's pending map",
		}),
		workersKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spits_workers_known",
			Help: "Current number of worker endpoints known via discovery",
		}),
	}

	prometheus.MustRegister(
		c.tasksGenerated, c.tasksSent, c.tasksProcessed, c.tasksCommitted,
		c.resultsDiscarded, c.resultsError, c.taskLatency,
		c.pendingTasks, c.workersKnown,
	)

	return c
}

func (c *Collector) RecordGenerated()     { c.tasksGenerated.Inc() }
func (c *Collector) RecordSent()          { c.tasksSent.Inc() }
func (c *Collector) IncTasksProcessed()   { c.tasksProcessed.Inc() }
func (c *Collector) RecordDiscarded()     { c.resultsDiscarded.Inc() }
func (c *Collector) RecordResultError()   { c.resultsError.Inc() }

// RecordCommitted records a successful commit along with the task's
// dispatch-to-commit latency.
func (c *Collector) RecordCommitted(latencySeconds float64) {
	c.tasksCommitted.Inc()
	c.taskLatency.Observe(latencySeconds)
}

// UpdateQueueStats reports the current pending-map size and discovered
// worker count.
func (c *Collector) UpdateQueueStats(pending, workers int) {
	c.pendingTasks.Set(float64(pending))
	c.workersKnown.Set(float64(workers))
}

// StartServer starts the Prometheus metrics HTTP server on the given port.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}
