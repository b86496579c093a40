// Package observability exposes Prometheus metrics for bootstrap and the
// update controller, plus health checks for the diagnostics server.
package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/bootstrap"
	"github.com/deskhost/deskhost/internal/updater"
)

// Loader outcome labels.
const (
	StatusSuccess = "success"
	StatusHalted  = "halted"
	StatusError   = "error"
)

// Metrics owns a private registry so tests can create as many as they need.
type Metrics struct {
	logger   *zap.Logger
	registry *prometheus.Registry
	started  time.Time

	uptime            prometheus.GaugeFunc
	loaderDuration    *prometheus.HistogramVec
	updateState       *prometheus.GaugeVec
	updateTransitions *prometheus.CounterVec
	updateCycles      *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	updateErrors      *prometheus.CounterVec
	secondInstances   prometheus.Counter
}

var (
	_ bootstrap.Observer = (*Metrics)(nil)
	_ updater.Observer   = (*Metrics)(nil)
)

// NewMetrics creates and registers every collector, including the Go and
// process collectors.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		logger:   logger.Named("metrics"),
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
	}
	m.initMetrics()
	m.registerMetrics()
	m.updateState.WithLabelValues(string(updater.StateIdle)).Set(1)
	return m
}

func (m *Metrics) initMetrics() {
	m.uptime = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "deskhost_uptime_seconds",
		Help: "Time since the application started",
	}, func() float64 { return time.Since(m.started).Seconds() })

	m.loaderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deskhost_loader_duration_seconds",
			Help:    "Duration of each bootstrap loader",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"loader", "status"},
	)

	m.updateState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deskhost_update_state",
			Help: "Current update controller state (1 for the active state)",
		},
		[]string{"state"},
	)

	m.updateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskhost_update_transitions_total",
			Help: "Update state machine transitions",
		},
		[]string{"from", "to"},
	)

	m.updateCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskhost_update_cycles_total",
			Help: "Completed update cycles by final state",
		},
		[]string{"outcome"},
	)

	m.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "deskhost_update_cycle_duration_seconds",
		Help:    "Wall time of an update cycle, including time spent in prompts",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800},
	})

	m.updateErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskhost_update_errors_total",
			Help: "Update failures by diagnosed class",
		},
		[]string{"class"},
	)

	m.secondInstances = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deskhost_second_instance_launches_total",
		Help: "Launches forwarded to this instance by a second process",
	})
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.uptime,
		m.loaderDuration,
		m.updateState,
		m.updateTransitions,
		m.updateCycles,
		m.cycleDuration,
		m.updateErrors,
		m.secondInstances,
	)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(m.logger),
	})
}

func (m *Metrics) LoaderFinished(name string, elapsed time.Duration, err error) {
	m.loaderDuration.WithLabelValues(name, loaderStatus(err)).Observe(elapsed.Seconds())
}

func (m *Metrics) StateChanged(from, to updater.State) {
	m.updateTransitions.WithLabelValues(string(from), string(to)).Inc()
	m.updateState.WithLabelValues(string(from)).Set(0)
	m.updateState.WithLabelValues(string(to)).Set(1)
}

func (m *Metrics) CycleFinished(outcome updater.State, elapsed time.Duration) {
	m.updateCycles.WithLabelValues(string(outcome)).Inc()
	m.cycleDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ErrorClassified(class updater.ErrorClass) {
	m.updateErrors.WithLabelValues(string(class)).Inc()
}

// SecondInstance counts a launch forwarded by another process.
func (m *Metrics) SecondInstance() {
	m.secondInstances.Inc()
}

func loaderStatus(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, bootstrap.ErrHalt):
		return StatusHalted
	default:
		return StatusError
	}
}
