package task

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the worker's Prometheus collectors.
type Metrics struct {
	tasks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_tasks_total",
				Help: "Task executions by final status.",
			},
			[]string{"task", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crm_task_duration_seconds",
				Help:    "Task handler run time.",
				Buckets: []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"task"},
		),
	}
	for _, c := range []prometheus.Collector{m.tasks, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(task, status string, seconds float64) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(task, status).Inc()
	if seconds >= 0 {
		m.duration.WithLabelValues(task).Observe(seconds)
	}
}
