// Package metrics holds the Prometheus collectors of the posting engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "fwrdpost"

// Firing outcomes.
const (
	OutcomePosted  = "posted"
	OutcomeSkipped = "skipped"
	OutcomeFeed    = "feed_error"
	OutcomeFailed  = "failed"
)

// Metrics is safe to use as a nil pointer, in which case nothing is recorded.
type Metrics struct {
	FiringsTotal     *prometheus.CounterVec
	FiringDuration   *prometheus.HistogramVec
	HostsRunning     prometheus.Gauge
	HostStartsTotal  prometheus.Counter
	CommandsTotal    *prometheus.CounterVec
	MailboxDepth     prometheus.Gauge
	WatermarkUpdates *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FiringsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "host",
			Name:      "firings_total",
			Help:      "Job firings by job kind and outcome",
		}, []string{"kind", "outcome"}),
		FiringDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "host",
			Name:      "firing_duration_seconds",
			Help:      "Time spent executing one job firing",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"kind"}),
		HostsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "supervisor",
			Name:      "hosts_running",
			Help:      "Number of job hosts currently running",
		}),
		HostStartsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "supervisor",
			Name:      "host_starts_total",
			Help:      "Job hosts spawned since process start",
		}),
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "supervisor",
			Name:      "commands_total",
			Help:      "Supervisor commands processed by type",
		}, []string{"command"}),
		MailboxDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "supervisor",
			Name:      "mailbox_depth",
			Help:      "Commands waiting in the supervisor mailbox",
		}),
		WatermarkUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "host",
			Name:      "watermark_updates_total",
			Help:      "Feed watermark persistence attempts by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveFiring(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FiringsTotal.WithLabelValues(kind, outcome).Inc()
	m.FiringDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) HostStarted() {
	if m == nil {
		return
	}
	m.HostsRunning.Inc()
	m.HostStartsTotal.Inc()
}

func (m *Metrics) HostStopped() {
	if m == nil {
		return
	}
	m.HostsRunning.Dec()
}

func (m *Metrics) CommandProcessed(command string, depth int) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command).Inc()
	m.MailboxDepth.Set(float64(depth))
}

func (m *Metrics) WatermarkUpdated(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.WatermarkUpdates.WithLabelValues(result).Inc()
}
