// Package stream runs the live pen capture loop: it owns the open HID device,
// feeds every report through the stroke segmenter and publishes the results.
package stream

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/hid"
	"github.com/1ureka/syncpad/internal/stroke"
	"github.com/1ureka/syncpad/internal/util"
)

var ErrInvalidState = errors.New("stream: operation not allowed in current state")

// DefaultPollInterval is how often Watch looks for attached tablets.
const DefaultPollInterval = time.Second

// State is the stream connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	}
	return "unknown"
}

// Device is an open HID interface.
type Device interface {
	ReadReport() ([]byte, error)
	SendFeatureReport(data []byte) error
	Close() error
}

// Backend discovers and opens tablets.
type Backend interface {
	Enumerate() ([]hid.DeviceInfo, error)
	Open(info hid.DeviceInfo) (Device, error)
}

type hidraw struct{}

func (hidraw) Enumerate() ([]hid.DeviceInfo, error) { return hid.Enumerate() }

func (hidraw) Open(info hid.DeviceInfo) (Device, error) {
	d, err := hid.Open(info)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// HIDRaw is the Linux hidraw backend.
func HIDRaw() Backend { return hidraw{} }

// Manager owns at most one streaming device.
type Manager struct {
	backend Backend
	bus     *event.Bus

	mu        sync.Mutex
	state     State
	dev       Device
	info      hid.DeviceInfo
	gen       uint64
	segmenter *stroke.Segmenter
	devices   []hid.DeviceInfo

	queue []event.Event
}

// NewManager returns a disconnected manager.
func NewManager(backend Backend, bus *event.Bus) *Manager {
	return &Manager{backend: backend, bus: bus, segmenter: stroke.NewSegmenter()}
}

// State returns the connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the connected device, if any.
func (m *Manager) Current() (hid.DeviceInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info, m.state == Connected
}

// Devices returns the last enumerated device list.
func (m *Manager) Devices() []hid.DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.devices)
}

// Connect opens info, switches it to capture mode and starts streaming.
func (m *Manager) Connect(ctx context.Context, info hid.DeviceInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.state != Disconnected {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("connect while %s: %w", state, ErrInvalidState)
	}
	m.setStateLocked(Connecting)
	m.unlock()

	dev, err := m.backend.Open(info)

	m.mu.Lock()
	if m.state != Connecting {
		m.mu.Unlock()
		if dev != nil {
			dev.Close()
		}
		return fmt.Errorf("connect %s: %w", info.Path, ErrInvalidState)
	}
	if err != nil {
		m.setStateLocked(Disconnected)
		m.unlock()
		util.LogWarning("Opening %s failed: %v", info.Path, err)
		return fmt.Errorf("open %s: %w", info.Path, err)
	}
	m.dev = dev
	m.info = info
	m.gen++
	m.segmenter.Reset()
	m.setStateLocked(Connected)
	gen := m.gen
	m.unlock()

	util.LogSuccess("Streaming from %s (%s)", info.Name, info.Path)
	if err := dev.SendFeatureReport(hid.ModeReport(hid.ModeCapture)); err != nil {
		util.LogWarning("Setting capture mode failed: %v", err)
	}
	go m.readLoop(dev, gen)
	return nil
}

// Disconnect stops streaming and closes the device.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.state != Connected {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("disconnect while %s: %w", state, ErrInvalidState)
	}
	m.setStateLocked(Disconnecting)
	m.closeLocked()
	m.unlock()
	return nil
}

// SetMode sends a mode feature report to the connected device.
func (m *Manager) SetMode(mode hid.Mode) error {
	return m.sendFeature(hid.ModeReport(mode))
}

// Erase clears the tablet's screen.
func (m *Manager) Erase() error {
	if err := m.sendFeature(hid.EraseReport()); err != nil {
		return err
	}
	m.bus.Publish(event.Event{Kind: event.Cleared, Source: event.SourceStream})
	return nil
}

func (m *Manager) sendFeature(report []byte) error {
	m.mu.Lock()
	dev, state := m.dev, m.state
	m.mu.Unlock()
	if state != Connected {
		return fmt.Errorf("feature report while %s: %w", state, ErrInvalidState)
	}
	return dev.SendFeatureReport(report)
}

// readLoop issues the next read only once the previous report is handled.
func (m *Manager) readLoop(dev Device, gen uint64) {
	for {
		data, err := dev.ReadReport()
		if err != nil {
			m.readFailed(gen, err)
			return
		}
		if !m.process(gen, data) {
			return
		}
	}
}

// process handles one report; it returns false once the loop is stale.
func (m *Manager) process(gen uint64, data []byte) bool {
	report, err := hid.ParseCaptureReport(data)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	if err != nil {
		m.mu.Unlock()
		util.LogDebug("Skipping report: %v", err)
		return true
	}

	sample := report.Sample()
	segs := m.segmenter.Feed(sample)
	m.queue = append(m.queue, event.Event{Kind: event.CaptureReport, Source: event.SourceStream, Report: sample})
	if len(segs) > 0 {
		m.queue = append(m.queue, event.Event{Kind: event.Paths, Source: event.SourceStream, Segments: segs})
	}
	m.unlock()

	util.Stats.AddReport()
	util.Stats.AddSegments(len(segs))
	return true
}

func (m *Manager) readFailed(gen uint64, err error) {
	m.mu.Lock()
	defer m.unlock()
	if gen != m.gen {
		return
	}
	util.LogWarning("HID read failed: %v", err)
	m.closeLocked()
}

// ──────────────────────────────────────────────────────────────────────────────
// Device watching
// ──────────────────────────────────────────────────────────────────────────────

// Watch polls for devices every interval until ctx is cancelled.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.Refresh(); err != nil {
			util.LogDebug("Device enumeration failed: %v", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// Refresh enumerates devices once. DevicesUpdated is published when the set
// changed; losing every device, or the streaming one, forces Disconnected.
func (m *Manager) Refresh() error {
	list, err := m.backend.Enumerate()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.unlock()

	if !sameDevices(m.devices, list) {
		m.devices = list
		m.queue = append(m.queue, event.Event{
			Kind:    event.DevicesUpdated,
			Source:  event.SourceStream,
			Devices: ToEventDevices(list),
		})
	}

	if m.state == Connected && !containsPath(list, m.info.Path) {
		util.LogWarning("Device %s is gone", m.info.Path)
		m.closeLocked()
	}
	return nil
}

func sameDevices(a, b []hid.DeviceInfo) bool {
	return slices.EqualFunc(a, b, func(x, y hid.DeviceInfo) bool { return x.Path == y.Path })
}

func containsPath(list []hid.DeviceInfo, path string) bool {
	return slices.ContainsFunc(list, func(d hid.DeviceInfo) bool { return d.Path == path })
}

// ToEventDevices converts HID identities for publishing.
func ToEventDevices(list []hid.DeviceInfo) []event.Device {
	out := make([]event.Device, 0, len(list))
	for _, d := range list {
		transport := "usb"
		if d.Bluetooth {
			transport = "bluetooth"
		}
		out = append(out, event.Device{
			ID:        d.Path,
			Name:      d.Name,
			Transport: transport,
			Vendor:    d.VendorID,
			Product:   d.ProductID,
		})
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers (mu held)
// ──────────────────────────────────────────────────────────────────────────────

func (m *Manager) closeLocked() {
	if m.dev != nil {
		m.dev.Close()
		m.dev = nil
	}
	m.gen++
	m.info = hid.DeviceInfo{}
	m.segmenter.Reset()
	m.setStateLocked(Disconnected)
}

func (m *Manager) setStateLocked(to State) {
	if m.state == to {
		return
	}
	from := m.state
	m.state = to
	util.LogDebug("Stream %s → %s", from, to)
	m.queue = append(m.queue, event.StateChange(event.SourceStream, from.String(), to.String()))
}

func (m *Manager) unlock() {
	queue := m.queue
	m.queue = nil
	m.mu.Unlock()
	for _, ev := range queue {
		m.bus.Publish(ev)
	}
}
