// Package metrics provides the Prometheus collectors for the orchestration
// loop. Collectors live in a private registry that is exported to a
// node-exporter textfile rather than served over HTTP.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nimbus"

// Collectors holds the loop's Prometheus metrics.
type Collectors struct {
	registry *prometheus.Registry

	// ActionsTotal counts dispatched actions.
	// Labels: action, status
	ActionsTotal *prometheus.CounterVec

	// StageTransitionsTotal counts stage advances.
	// Labels: from, to
	StageTransitionsTotal *prometheus.CounterVec

	// DecisionsTotal counts oracle decisions by source (oracle, fallback, default).
	DecisionsTotal *prometheus.CounterVec

	// ProjectsTotal counts finished projects by outcome (completed, exited).
	ProjectsTotal *prometheus.CounterVec

	// SnapshotsTotal counts persistence writes by result (success, error).
	SnapshotsTotal *prometheus.CounterVec

	// ErrorRate is the latest error rate per project.
	ErrorRate *prometheus.GaugeVec

	// ActionDuration tracks handler execution time.
	ActionDuration prometheus.Histogram
}

// New creates collectors registered in a fresh registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collectors{
		registry: reg,
		ActionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "actions",
				Name:      "dispatched_total",
				Help:      "Total number of dispatched actions by outcome",
			},
			[]string{"action", "status"},
		),
		StageTransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "stage_transitions_total",
				Help:      "Total number of stage advances",
			},
			[]string{"from", "to"},
		),
		DecisionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "oracle",
				Name:      "decisions_total",
				Help:      "Total number of action selections by source",
			},
			[]string{"source"},
		),
		ProjectsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "projects_total",
				Help:      "Total number of finished projects by outcome",
			},
			[]string{"outcome"},
		),
		SnapshotsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "persistence",
				Name:      "snapshots_total",
				Help:      "Total number of snapshot writes by result",
			},
			[]string{"result"},
		),
		ErrorRate: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "progress",
				Name:      "error_rate",
				Help:      "Errors per action for the project",
			},
			[]string{"project"},
		),
		ActionDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "actions",
				Name:      "duration_seconds",
				Help:      "Duration of action handlers in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// Registry returns the registry holding the collectors.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes the current metric values to file in the text
// exposition format. The write is atomic.
func (c *Collectors) WriteTextfile(file string) error {
	if c == nil || file == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(file, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
