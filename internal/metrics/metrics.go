// Package metrics exposes syncpad's counters and session states to
// Prometheus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/util"
)

const namespace = "syncpad"

// Metrics holds the collectors. Subscribe Handle to the event bus.
type Metrics struct {
	registry *prometheus.Registry

	events   *prometheus.CounterVec
	failures *prometheus.CounterVec
	state    *prometheus.GaugeVec
	devices  *prometheus.GaugeVec

	mu      sync.Mutex
	current map[string]string // source -> state
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		current:  make(map[string]string),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events published on the bus by kind and source",
		}, []string{"kind", "source"}),

		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_failures_total",
			Help:      "Failed OBEX requests by response code",
		}, []string{"code"}),

		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current state of each source",
		}, []string{"source", "state"}),

		devices: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Tablets currently discovered",
		}, []string{"source"}),
	}

	counter := func(name, help string, load func() int64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(load()) })
	}
	counter("obex_sent_bytes_total", "Bytes written to the OBEX transport", util.Stats.ObexSent.Load)
	counter("obex_received_bytes_total", "Bytes read from the OBEX transport", util.Stats.ObexRecv.Load)
	counter("files_received_total", "Files and listings fully received", util.Stats.Files.Load)
	counter("capture_reports_total", "Capture reports read from the tablet", util.Stats.Reports.Load)
	counter("segments_total", "Ink segments emitted", util.Stats.Segments.Load)
	counter("relay_sent_bytes_total", "Bytes written to the relay DataChannel", util.Stats.RelaySent.Load)
	counter("relay_received_bytes_total", "Bytes read from the relay DataChannel", util.Stats.RelayRecv.Load)

	reg.MustRegister(collectors.NewGoCollector())

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Handle is an event.Handler.
func (m *Metrics) Handle(ev event.Event) {
	m.events.WithLabelValues(ev.Kind.String(), ev.Source).Inc()

	switch ev.Kind {
	case event.StateChanged:
		m.mu.Lock()
		if prev, ok := m.current[ev.Source]; ok {
			m.state.WithLabelValues(ev.Source, prev).Set(0)
		}
		m.current[ev.Source] = ev.NewState
		m.state.WithLabelValues(ev.Source, ev.NewState).Set(1)
		m.mu.Unlock()
	case event.DevicesUpdated:
		m.devices.WithLabelValues(ev.Source).Set(float64(len(ev.Devices)))
	case event.RequestFailed:
		m.failures.WithLabelValues(ev.Code.String()).Inc()
	}
}
