package infra

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"maestro/internal/domain"
)

// unknownOperation labels operations outside the known set so client input
// cannot grow the series count.
const unknownOperation = "unknown"

// Metrics groups the job lifecycle collectors.
type Metrics struct {
	created  *prometheus.CounterVec
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the job collectors on reg. A nil registerer yields
// collectors that are never exported, which keeps tests free of global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "jobs_created_total",
			Help:      "Jobs accepted by the job manager.",
		}, []string{"operation"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maestro",
			Name:      "job_duration_seconds",
			Help:      "Time from claim to terminal status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.created, m.finished, m.duration)
	}
	return m
}

// JobCreated counts an accepted job.
func (m *Metrics) JobCreated(operation string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(operationLabel(operation)).Inc()
}

// JobFinished records the terminal status and processing time of a job.
func (m *Metrics) JobFinished(operation, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := operationLabel(operation)
	m.finished.WithLabelValues(label, status).Inc()
	m.duration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func operationLabel(raw string) string {
	op, ok := domain.NormalizeOperation(raw)
	if !ok {
		return unknownOperation
	}
	return string(op)
}
