// Package metrics exposes Prometheus collectors for the write pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Write metrics
	WritesTotal   *prometheus.CounterVec
	WriteDuration *prometheus.HistogramVec
	ItemsSaved    *prometheus.CounterVec

	// Observer metrics
	EventsFired      prometheus.Counter
	ListenerFailures prometheus.Counter
	TriggerFirings   *prometheus.CounterVec
	TriggerFailures  *prometheus.CounterVec

	// Registry metrics
	SitesOpen prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WritesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infobase_writes_total",
				Help: "Total number of write, save and save_many calls",
			},
			[]string{"op", "outcome"},
		),

		WriteDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "infobase_write_duration_seconds",
				Help:    "Duration of write calls including observers",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		ItemsSaved: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infobase_items_saved_total",
				Help: "Total number of persisted items",
			},
			[]string{"kind"},
		),

		EventsFired: f.NewCounter(
			prometheus.CounterOpts{
				Name: "infobase_events_fired_total",
				Help: "Total number of events delivered to the bus",
			},
		),

		ListenerFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "infobase_listener_failures_total",
				Help: "Total number of listener errors and panics",
			},
		),

		TriggerFirings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infobase_trigger_firings_total",
				Help: "Total number of trigger invocations",
			},
			[]string{"type"},
		),

		TriggerFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infobase_trigger_failures_total",
				Help: "Total number of trigger errors and panics",
			},
			[]string{"type"},
		),

		SitesOpen: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "infobase_sites_open",
				Help: "Number of sites held in memory",
			},
		),
	}
}

// ObserveWrite records one write call.
func (m *Metrics) ObserveWrite(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.WritesTotal.WithLabelValues(op, outcome).Inc()
	m.WriteDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ItemsPersisted records the created/updated split of one write.
func (m *Metrics) ItemsPersisted(created, updated int) {
	if m == nil {
		return
	}
	m.ItemsSaved.WithLabelValues("created").Add(float64(created))
	m.ItemsSaved.WithLabelValues("updated").Add(float64(updated))
}

// EventFired records one event and the number of listeners that failed.
func (m *Metrics) EventFired(failures int) {
	if m == nil {
		return
	}
	m.EventsFired.Inc()
	m.ListenerFailures.Add(float64(failures))
}

// TriggerFired records one trigger invocation.
func (m *Metrics) TriggerFired(typeKey string, err error) {
	if m == nil {
		return
	}
	m.TriggerFirings.WithLabelValues(typeKey).Inc()
	if err != nil {
		m.TriggerFailures.WithLabelValues(typeKey).Inc()
	}
}

// SiteOpened and SiteClosed track the in-memory site count.
func (m *Metrics) SiteOpened() {
	if m == nil {
		return
	}
	m.SitesOpen.Inc()
}

func (m *Metrics) SiteClosed() {
	if m == nil {
		return
	}
	m.SitesOpen.Dec()
}
