// Package metrics provides Prometheus metrics for the page editor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the editor's collectors. A nil *Metrics records nothing, so
// components can take one optionally.
type Metrics struct {
	MutationsTotal   *prometheus.CounterVec
	RateLimitedTotal prometheus.Counter
	SavesTotal       *prometheus.CounterVec
	SaveDuration     prometheus.Histogram
	Sessions         prometheus.Gauge
	Clients          prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MutationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "page_editor_mutations_total",
				Help: "Editing messages handled, by type and outcome",
			},
			[]string{"type", "status"},
		),
		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "page_editor_rate_limited_total",
			Help: "Client messages rejected by the rate limiter",
		}),
		SavesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "page_editor_saves_total",
				Help: "Page saves, by outcome (ok, conflict, error)",
			},
			[]string{"status"},
		),
		SaveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "page_editor_save_duration_seconds",
			Help:    "Duration of page store saves in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "page_editor_sessions",
			Help: "Pages with an active editing session",
		}),
		Clients: f.NewGauge(prometheus.GaugeOpts{
			Name: "page_editor_clients",
			Help: "Connected websocket clients",
		}),
	}
}

func (m *Metrics) RecordMutation(kind, status string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// RecordSave counts one save attempt and its duration in seconds.
func (m *Metrics) RecordSave(status string, seconds float64) {
	if m == nil {
		return
	}
	m.SavesTotal.WithLabelValues(status).Inc()
	m.SaveDuration.Observe(seconds)
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.Sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.Sessions.Dec()
	}
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.Clients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.Clients.Dec()
	}
}
