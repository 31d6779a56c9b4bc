package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the runtime collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	transitionErrors *prometheus.CounterVec
	modules          prometheus.Gauge
	tasksRunning     prometheus.Gauge
	taskStarts       *prometheus.CounterVec
	taskStops        *prometheus.CounterVec
	effectErrors     *prometheus.CounterVec
}

// NewMetrics creates the collectors under namespace (default "arbor").
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "arbor"
	}
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.dispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "total",
		Help:      "Dispatched actions by action namespace and whether the tree changed.",
	}, []string{"namespace", "changed"})

	m.dispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "duration_seconds",
		Help:      "Time spent in the aggregate reducer.",
		Buckets:   []float64{.00001, .0001, .0005, .001, .005, .01, .05, .1},
	}, []string{"namespace"})

	m.transitionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "transition_errors_total",
		Help:      "Dispatches rejected by a reducer error.",
	}, []string{"namespace"})

	m.modules = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "modules",
		Help:      "Modules currently registered.",
	})

	m.tasksRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "effect",
		Name:      "tasks_running",
		Help:      "Effect tasks currently running.",
	})

	m.taskStarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "effect",
		Name:      "task_starts_total",
		Help:      "Effect tasks started per module.",
	}, []string{"module"})

	m.taskStops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "effect",
		Name:      "task_stops_total",
		Help:      "Effect tasks stopped per module and outcome (done, canceled, failed).",
	}, []string{"module", "outcome"})

	m.effectErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "effect",
		Name:      "errors_total",
		Help:      "Effect handler failures per module.",
	}, []string{"module"})

	m.registry.MustRegister(
		m.dispatchTotal,
		m.dispatchDuration,
		m.transitionErrors,
		m.modules,
		m.tasksRunning,
		m.taskStarts,
		m.taskStops,
		m.effectErrors,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnDispatch:         m.onDispatch,
		OnModuleRegistered: func(context.Context, *domain.ModuleEvent) { m.modules.Inc() },
		OnModuleEjected:    func(context.Context, *domain.ModuleEvent) { m.modules.Dec() },
		OnTaskStart:        m.onTaskStart,
		OnTaskStop:         m.onTaskStop,
	}
}

func (m *Metrics) onDispatch(_ context.Context, e *domain.DispatchEvent) {
	ns := domain.Namespace(e.ActionType)
	if e.Err != nil {
		m.transitionErrors.WithLabelValues(ns).Inc()
		return
	}
	changed := "false"
	if e.Changed {
		changed = "true"
	}
	m.dispatchTotal.WithLabelValues(ns, changed).Inc()
	m.dispatchDuration.WithLabelValues(ns).Observe(e.Duration.Seconds())
}

func (m *Metrics) onTaskStart(_ context.Context, e *domain.TaskEvent) {
	m.tasksRunning.Inc()
	m.taskStarts.WithLabelValues(e.Key).Inc()
}

func (m *Metrics) onTaskStop(_ context.Context, e *domain.TaskEvent) {
	m.tasksRunning.Dec()
	outcome := "done"
	switch {
	case e.Canceled:
		outcome = "canceled"
	case e.Err != nil:
		outcome = "failed"
		m.effectErrors.WithLabelValues(e.Key).Inc()
	}
	m.taskStops.WithLabelValues(e.Key, outcome).Inc()
}
