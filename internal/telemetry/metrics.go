package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shaiso/Batchflow/internal/domain"
	"github.com/shaiso/Batchflow/internal/engine"
)

// Metrics — Prometheus метрики выполнения workflow.
type Metrics struct {
	JobTransitions     *prometheus.CounterVec
	IllegalTransitions prometheus.Counter
	JobsDispatched     prometheus.Counter
	ActiveWorkflows    prometheus.Gauge
	WorkflowsFinished  *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// nil → prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		JobTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "batchflow_job_transitions_total",
			Help: "Applied job status transitions by target status",
		}, []string{"status"}),
		IllegalTransitions: f.NewCounter(prometheus.CounterOpts{
			Name: "batchflow_illegal_transitions_total",
			Help: "Rejected job status transitions",
		}),
		JobsDispatched: f.NewCounter(prometheus.CounterOpts{
			Name: "batchflow_jobs_dispatched_total",
			Help: "Ready jobs published to the execution facility",
		}),
		ActiveWorkflows: f.NewGauge(prometheus.GaugeOpts{
			Name: "batchflow_active_workflows",
			Help: "Workflows tracked in memory by the orchestrator",
		}),
		WorkflowsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "batchflow_workflows_finished_total",
			Help: "Finished workflows by final status",
		}, []string{"status"}),
	}
}

// WorkflowFinished учитывает завершение workflow.
func (m *Metrics) WorkflowFinished(status domain.WorkflowStatus) {
	m.WorkflowsFinished.WithLabelValues(string(status)).Inc()
}

// Listener возвращает слушателя выполнения, считающего применённые переходы.
func (m *Metrics) Listener() engine.Listener {
	return engine.ListenerFunc(func(_ context.Context, _ *engine.Snapshot, u engine.JobUpdate) {
		m.JobTransitions.WithLabelValues(string(u.Status)).Inc()
	})
}
