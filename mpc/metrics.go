package mpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of one or more runtimes. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	TasksTotal    *prometheus.CounterVec // labels: status=ok|error
	TaskDuration  prometheus.Histogram
	OpsTotal      *prometheus.CounterVec // labels: op
	MessagesSent  prometheus.Counter
	RuntimesAlive prometheus.Gauge
	Poisoned      prometheus.Counter
}

// NewMetrics creates the runtime metrics and registers them with reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secema_tasks_total",
			Help: "Tasks run by the secure-computation scheduler",
		}, []string{"status"}),
		TaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "secema_task_duration_seconds",
			Help:    "Wall time of a scheduled task",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secema_ops_total",
			Help: "Secret-shared operations executed, by operation",
		}, []string{"op"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secema_messages_sent_total",
			Help: "Protocol messages sent by parties, dealer and client",
		}),
		RuntimesAlive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "secema_runtimes_active",
			Help: "Runtimes currently started",
		}),
		Poisoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secema_runtimes_poisoned_total",
			Help: "Runtimes poisoned by a failed computation",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.TasksTotal, m.TaskDuration, m.OpsTotal,
			m.MessagesSent, m.RuntimesAlive, m.Poisoned)
	}
	return m
}

func (m *Metrics) observeTask(err error, started time.Time) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.TasksTotal.WithLabelValues(status).Inc()
	m.TaskDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) op(name string) {
	if m == nil {
		return
	}
	m.OpsTotal.WithLabelValues(name).Inc()
}

func (m *Metrics) sent() {
	if m == nil {
		return
	}
	m.MessagesSent.Inc()
}

func (m *Metrics) runtimeUp() {
	if m == nil {
		return
	}
	m.RuntimesAlive.Inc()
}

func (m *Metrics) runtimeDown() {
	if m == nil {
		return
	}
	m.RuntimesAlive.Dec()
}

func (m *Metrics) poisoned() {
	if m == nil {
		return
	}
	m.Poisoned.Inc()
}
