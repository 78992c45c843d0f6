package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/obex"
	"github.com/1ureka/syncpad/internal/util"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

// TestStateGaugeFollowsTransitions verifies that only the latest state of a
// source is set.
func TestStateGaugeFollowsTransitions(t *testing.T) {
	m := New()
	m.Handle(event.StateChange(event.SourceFTP, "disconnected", "connecting"))
	m.Handle(event.StateChange(event.SourceFTP, "connecting", "connected"))
	m.Handle(event.StateChange(event.SourceStream, "disconnected", "connecting"))

	if got := gaugeValue(t, m.state.WithLabelValues(event.SourceFTP, "connected")); got != 1 {
		t.Errorf("ftp connected = %v, want 1", got)
	}
	if got := gaugeValue(t, m.state.WithLabelValues(event.SourceFTP, "connecting")); got != 0 {
		t.Errorf("ftp connecting = %v, want 0", got)
	}
	if got := gaugeValue(t, m.state.WithLabelValues(event.SourceStream, "connecting")); got != 1 {
		t.Errorf("stream connecting = %v, want 1", got)
	}
	if got := counterValue(t, m.events.WithLabelValues("stateChanged", event.SourceFTP)); got != 2 {
		t.Errorf("ftp stateChanged events = %v, want 2", got)
	}
}

func TestDevicesAndFailures(t *testing.T) {
	m := New()
	m.Handle(event.Event{Kind: event.DevicesUpdated, Source: event.SourceStream, Devices: make([]event.Device, 2)})
	m.Handle(event.Event{Kind: event.RequestFailed, Source: event.SourceFTP, Code: obex.NotFound})
	m.Handle(event.Event{Kind: event.RequestFailed, Source: event.SourceFTP, Code: obex.NotFound})

	if got := gaugeValue(t, m.devices.WithLabelValues(event.SourceStream)); got != 2 {
		t.Errorf("devices = %v, want 2", got)
	}
	if got := counterValue(t, m.failures.WithLabelValues(obex.NotFound.String())); got != 2 {
		t.Errorf("failures = %v, want 2", got)
	}
}

// TestHandlerExposesCounters verifies that the traffic counters are scraped.
func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	util.Stats.AddReport()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, name := range []string{
		"syncpad_capture_reports_total",
		"syncpad_obex_sent_bytes_total",
		"syncpad_relay_received_bytes_total",
		"go_goroutines",
	} {
		if !strings.Contains(text, name) {
			t.Errorf("scrape lacks %s", name)
		}
	}
}
