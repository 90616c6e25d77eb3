// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "minutes_orchestrator"

type Metrics struct {
	registry *prometheus.Registry

	submitted     prometheus.Counter
	rejected      *prometheus.CounterVec
	finished      *prometheus.CounterVec
	stepAttempts  *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	queueDepth    prometheus.Gauge
	workflowTotal *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, plus the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_submitted_total",
			Help:      "Workflows accepted for execution.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_rejected_total",
			Help:      "Submissions refused before an instance was created.",
		}, []string{"reason"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_finished_total",
			Help:      "Workflows that reached a terminal status.",
		}, []string{"status"}),
		stepAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_attempts_total",
			Help:      "Collaborator calls made per step, by outcome.",
		}, []string{"step", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of a step including retries and backoff.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600, 1800},
		}, []string{"step", "success"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Workflow ids waiting for the consumer.",
		}),
		workflowTotal: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Time from RUNNING to a terminal status.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 13),
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.submitted, m.rejected, m.finished, m.stepAttempts, m.stepDuration, m.queueDepth, m.workflowTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) WorkflowSubmitted() { m.submitted.Inc() }

func (m *Metrics) WorkflowRejected(reason string) { m.rejected.WithLabelValues(reason).Inc() }

func (m *Metrics) WorkflowFinished(status string, elapsed time.Duration) {
	m.finished.WithLabelValues(status).Inc()
	m.workflowTotal.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) StepAttempt(step string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.stepAttempts.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) StepFinished(step string, success bool, elapsed time.Duration) {
	label := "false"
	if success {
		label = "true"
	}
	m.stepDuration.WithLabelValues(step, label).Observe(elapsed.Seconds())
}

func (m *Metrics) SetQueueDepth(n int) { m.queueDepth.Set(float64(n)) }
