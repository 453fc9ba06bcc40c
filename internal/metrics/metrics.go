// Package metrics exposes the control plane's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agv"

// Metrics bundles every instrument on one registry.
type Metrics struct {
	Registry *prometheus.Registry

	EventsProcessed  *prometheus.CounterVec // by event kind
	PlansComputed    *prometheus.CounterVec // by outcome: ok / no_path
	TasksCompleted   prometheus.Counter
	TasksFailed      prometheus.Counter
	ShelvesForwarded prometheus.Counter
	RobotsByStatus   *prometheus.GaugeVec
	PendingTasks     prometheus.Gauge
	PlanDuration     prometheus.Histogram
}

// New creates the instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Events consumed by the orchestrator loop.",
		}, []string{"kind"}),
		PlansComputed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_computed_total",
			Help:      "Planning calls by outcome.",
		}, []string{"outcome"}),
		TasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Picking orders finished.",
		}),
		TasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_failed_total",
			Help:      "Picking orders failed.",
		}),
		ShelvesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shelves_forwarded_total",
			Help:      "Shelves diverted to a second station instead of storage.",
		}),
		RobotsByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "robots",
			Help:      "Robots per state-machine status.",
		}, []string{"status"}),
		PendingTasks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_tasks",
			Help:      "Tasks awaiting a robot.",
		}),
		PlanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_duration_seconds",
			Help:      "Wall time of planning calls.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 8),
		}),
	}
}
