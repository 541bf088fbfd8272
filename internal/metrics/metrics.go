// Package metrics exposes Prometheus metrics for call sessions.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zulandar/autodialer/internal/calllog"
	"github.com/zulandar/autodialer/internal/dialer"
)

// Metrics holds the Prometheus collectors fed by dialer notifications.
type Metrics struct {
	registry *prometheus.Registry
	now      func() time.Time

	StatusTransitions *prometheus.CounterVec
	LogEntries        *prometheus.CounterVec
	Errors            prometheus.Counter
	CallsActive       prometheus.Gauge
	SessionDuration   prometheus.Histogram

	mu      sync.Mutex
	active  bool
	started time.Time
	logLen  int
}

// New creates a Metrics instance with all collectors registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "autodialer"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		now:      time.Now,
		StatusTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_transitions_total",
				Help:      "Session status transitions by target status",
			},
			[]string{"status"},
		),
		LogEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "call_log_entries_total",
				Help:      "Call log entries appended by kind",
			},
			[]string{"kind"},
		),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors surfaced by call sessions",
		}),
		CallsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Sessions between connecting and their end",
		}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time from connecting to call-ended, error or idle",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
	}
	m.registry.MustRegister(
		m.StatusTransitions,
		m.LogEntries,
		m.Errors,
		m.CallsActive,
		m.SessionDuration,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Events returns the dialer notifications that feed the collectors.
func (m *Metrics) Events() dialer.Events {
	return dialer.Events{
		OnStatusChange:  m.recordStatus,
		OnError:         func(string) { m.Errors.Inc() },
		OnCallLogUpdate: m.recordLog,
	}
}

func (m *Metrics) recordStatus(s dialer.Status) {
	m.StatusTransitions.WithLabelValues(string(s)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	switch s {
	case dialer.StatusConnecting, dialer.StatusConnected, dialer.StatusInCall:
		if !m.active {
			m.active = true
			m.started = m.now()
			m.CallsActive.Inc()
		}
	default:
		if m.active {
			m.active = false
			m.CallsActive.Dec()
			m.SessionDuration.Observe(m.now().Sub(m.started).Seconds())
		}
	}
}

// recordLog counts entries not seen in the previous update. A shorter log
// means the session was cleared.
func (m *Metrics) recordLog(log []calllog.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(log) < m.logLen {
		m.logLen = 0
	}
	for _, e := range log[m.logLen:] {
		m.LogEntries.WithLabelValues(string(e.Kind)).Inc()
	}
	m.logLen = len(log)
}
