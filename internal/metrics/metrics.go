package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	MessagesSent   prometheus.Counter
	MessagesFailed *prometheus.CounterVec
	SendLatency    prometheus.Histogram
	RunsFinished   *prometheus.CounterVec
	ActiveRuns     prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// A custom registry keeps tests isolated from prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whatsapp_messages_sent_total",
			Help: "Total number of messages delivered through the session gateway.",
		}),

		MessagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whatsapp_messages_failed_total",
			Help: "Total number of contacts whose message could not be delivered.",
		}, []string{"reason"}),

		SendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "whatsapp_send_seconds",
			Help:    "Time from starting a send to the gateway confirming it.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90},
		}),

		RunsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whatsapp_runs_finished_total",
			Help: "Total number of send runs by terminal status.",
		}, []string{"status"}),

		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "whatsapp_active_runs",
			Help: "Number of send runs currently in progress (0 or 1).",
		}),
	}

	reg.MustRegister(
		m.MessagesSent,
		m.MessagesFailed,
		m.SendLatency,
		m.RunsFinished,
		m.ActiveRuns,
	)

	return m
}

// PipelineHooks returns the metric callbacks expected by pipeline.Hooks.
// Centralises the prometheus calls so the pipeline stays import-free.
func (m *Metrics) PipelineHooks() (
	onSent func(time.Duration),
	onFailed func(reason string),
) {
	onSent = func(latency time.Duration) {
		m.MessagesSent.Inc()
		m.SendLatency.Observe(latency.Seconds())
	}
	onFailed = func(reason string) {
		m.MessagesFailed.WithLabelValues(reason).Inc()
	}
	return
}

// RunStarted and RunFinished track the active-run gauge and terminal counts.
func (m *Metrics) RunStarted() { m.ActiveRuns.Inc() }

func (m *Metrics) RunFinished(status domain.RunStatus) {
	m.ActiveRuns.Dec()
	m.RunsFinished.WithLabelValues(string(status)).Inc()
}
