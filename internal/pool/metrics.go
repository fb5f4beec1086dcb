package pool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the pool-level Prometheus collectors.
type Metrics struct {
	// TasksTotal counts completed tasks labeled by status (ok / error).
	TasksTotal *prometheus.CounterVec
	// TaskDuration observes per-task execution time in seconds.
	TaskDuration prometheus.Histogram
	// BusyWorkers tracks the number of workers currently executing a task.
	BusyWorkers prometheus.Gauge
}

// NewMetrics creates the pool collectors. The caller decides registration.
func NewMetrics() *Metrics {
	return &Metrics{
		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jtcsv",
				Subsystem: "pool",
				Name:      "tasks_total",
				Help:      "Total number of tasks executed by the worker pool",
			},
			[]string{"status"},
		),
		TaskDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "jtcsv",
				Subsystem: "pool",
				Name:      "task_duration_seconds",
				Help:      "Task execution duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
		BusyWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jtcsv",
				Subsystem: "pool",
				Name:      "busy_workers",
				Help:      "Number of workers currently executing a task",
			},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.TasksTotal, m.TaskDuration, m.BusyWorkers} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// observeTask records one completed task.
func (m *Metrics) observeTask(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.TasksTotal.WithLabelValues(status).Inc()
	m.TaskDuration.Observe(d.Seconds())
}
