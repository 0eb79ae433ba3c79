// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus telemetry for the scheduler: counters collected at scrape time
// and per-task latency histograms.

package control

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/hioload-vt/api"
	"github.com/momentics/hioload-vt/internal/concurrency"
)

// StatsCollector exports an api.Stats snapshot on every scrape.
type StatsCollector struct {
	stats func() api.Stats

	created   *prometheus.Desc
	completed *prometheus.Desc
	failed    *prometheus.Desc
	cancelled *prometheus.Desc
	stolen    *prometheus.Desc
	inline    *prometheus.Desc
	replaced  *prometheus.Desc
	active    *prometheus.Desc
	queued    *prometheus.Desc
	platform  *prometheus.Desc
	blocking  *prometheus.Desc
}

// NewStatsCollector builds a collector. constLabels identify the scheduler
// instance when several share a registry.
func NewStatsCollector(namespace string, constLabels prometheus.Labels, stats func() api.Stats) *StatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "scheduler", name), help, nil, constLabels)
	}
	return &StatsCollector{
		stats:     stats,
		created:   desc("tasks_created_total", "Tasks accepted by the scheduler."),
		completed: desc("tasks_completed_total", "Tasks whose payload ran to the end."),
		failed:    desc("tasks_failed_total", "Tasks that ended in error."),
		cancelled: desc("tasks_cancelled_total", "Tasks cancelled before or during execution."),
		stolen:    desc("tasks_stolen_total", "Tasks taken from a peer worker deque."),
		inline:    desc("tasks_inline_total", "Nested tasks run inline at the outstanding cap."),
		replaced:  desc("workers_replaced_total", "Workers replaced after dying inside a task."),
		active:    desc("tasks_active", "Tasks currently running."),
		queued:    desc("tasks_queued", "Tasks waiting in any queue."),
		platform:  desc("platform_threads", "Fixed platform pool size."),
		blocking:  desc("blocking_workers", "Live blocking pool goroutines."),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.created, c.completed, c.failed, c.cancelled, c.stolen, c.inline,
		c.replaced, c.active, c.queued, c.platform, c.blocking,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter(c.created, s.Created)
	counter(c.completed, s.Completed)
	counter(c.failed, s.Failed)
	counter(c.cancelled, s.Cancelled)
	counter(c.stolen, s.Stolen)
	counter(c.inline, s.Inline)
	counter(c.replaced, s.Replaced)
	gauge(c.active, float64(s.Active))
	gauge(c.queued, float64(s.Queued))
	gauge(c.platform, float64(s.PlatformThreads))
	gauge(c.blocking, float64(s.BlockingWorkers))
}

// TaskMetrics records per-task latencies, labelled by pool and final state.
type TaskMetrics struct {
	wait *prometheus.HistogramVec
	run  *prometheus.HistogramVec
}

// NewTaskMetrics creates unregistered histograms.
func NewTaskMetrics(namespace string, constLabels prometheus.Labels) *TaskMetrics {
	buckets := prometheus.ExponentialBuckets(0.00001, 4, 12)
	return &TaskMetrics{
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "scheduler",
			Name:        "task_wait_seconds",
			Help:        "Time a task spent queued before it started.",
			Buckets:     buckets,
			ConstLabels: constLabels,
		}, []string{"pool"}),
		run: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "scheduler",
			Name:        "task_run_seconds",
			Help:        "Task execution time.",
			Buckets:     buckets,
			ConstLabels: constLabels,
		}, []string{"pool", "state"}),
	}
}

// Observe records a finished task. Tasks cancelled while queued never
// started and are skipped.
func (m *TaskMetrics) Observe(info concurrency.TaskInfo) {
	if info.Started.IsZero() {
		return
	}
	pool := "platform"
	if info.Blocking {
		pool = "blocking"
	}
	m.wait.WithLabelValues(pool).Observe(info.Wait().Seconds())
	m.run.WithLabelValues(pool, info.State.String()).Observe(info.Run().Seconds())
}

// Describe implements prometheus.Collector.
func (m *TaskMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.wait.Describe(ch)
	m.run.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *TaskMetrics) Collect(ch chan<- prometheus.Metric) {
	m.wait.Collect(ch)
	m.run.Collect(ch)
}
