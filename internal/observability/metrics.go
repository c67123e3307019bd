package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "traceclaw"

// Metrics describes the collection pipeline itself. Each instance owns its
// registry so that several managers (or tests) never collide.
type Metrics struct {
	registry *prometheus.Registry

	Ticks              prometheus.Counter
	TickOverruns       prometheus.Counter
	TickDuration       prometheus.Histogram
	SamplesCollected   prometheus.Counter
	CollectorOmissions *prometheus.CounterVec
	SinkExports        *prometheus.CounterVec
	SinkFailures       *prometheus.CounterVec
	TrackedProcesses   prometheus.Gauge
	ProcessRestarts    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Collection ticks completed.",
		}),
		TickOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_overruns_total",
			Help:      "Ticks that took longer than the collection interval.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent collecting and exporting one tick.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		SamplesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_collected_total",
			Help:      "Metric samples produced by all collectors.",
		}),
		CollectorOmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_omissions_total",
			Help:      "Readings a collector skipped because the OS query failed.",
		}, []string{"collector", "reading"}),
		SinkExports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_exports_total",
			Help:      "Batches successfully exported, per sink.",
		}, []string{"sink"}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Batches a sink failed to export.",
		}, []string{"sink"}),
		TrackedProcesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_processes",
			Help:      "Live PIDs currently matching the target process name.",
		}),
		ProcessRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_restarts_total",
			Help:      "Generation changes observed for the target process.",
		}),
	}

	m.registry.MustRegister(
		m.Ticks,
		m.TickOverruns,
		m.TickDuration,
		m.SamplesCollected,
		m.CollectorOmissions,
		m.SinkExports,
		m.SinkFailures,
		m.TrackedProcesses,
		m.ProcessRestarts,
		collectors.NewGoCollector(),
	)
	return m
}

// Omission records a reading skipped for one tick.
func (m *Metrics) Omission(collector, reading string) {
	if m == nil {
		return
	}
	m.CollectorOmissions.WithLabelValues(collector, reading).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
