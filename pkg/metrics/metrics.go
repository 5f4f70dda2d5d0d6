// Package metrics exposes prometheus instrumentation for workflow runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loomworks/loom/pkg/models"
)

// Collector records run and node outcomes. Each Collector owns its registry,
// so independent instances never collide on metric registration.
type Collector struct {
	registry *prometheus.Registry

	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	nodesTotal        *prometheus.CounterVec
	nodeDuration      *prometheus.HistogramVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		executionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_executions_total",
				Help: "Total number of workflow executions by terminal status",
			},
			[]string{"status"},
		),
		executionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loom_execution_duration_seconds",
				Help:    "Workflow execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		nodesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_node_executions_total",
				Help: "Total number of node executions by node type and status",
			},
			[]string{"node_type", "status"},
		),
		nodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loom_node_execution_duration_seconds",
				Help:    "Node execution duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"node_type"},
		),
	}
}

// ObserveExecution records a finished run.
func (c *Collector) ObserveExecution(status models.ExecutionStatus, duration time.Duration) {
	c.executionsTotal.WithLabelValues(string(status)).Inc()
	c.executionDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// ObserveNode records a finished node execution.
func (c *Collector) ObserveNode(nodeType models.NodeType, status models.ExecutionStatus, duration time.Duration) {
	c.nodesTotal.WithLabelValues(string(nodeType), string(status)).Inc()
	c.nodeDuration.WithLabelValues(string(nodeType)).Observe(duration.Seconds())
}

// HTTPHandler serves the collector's registry in the prometheus exposition
// format.
func (c *Collector) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
