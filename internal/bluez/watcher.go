package bluez

import (
	"context"
	"slices"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/util"
)

// Watcher keeps the list of paired-or-seen tablets current and publishes
// DevicesUpdated whenever it changes.
type Watcher struct {
	client *Client
	bus    *event.Bus

	mu      sync.Mutex
	devices []Device
	powered bool
}

// NewWatcher returns a watcher over client's adapter.
func NewWatcher(client *Client, bus *event.Bus) *Watcher {
	return &Watcher{client: client, bus: bus}
}

// Devices returns the last known tablets.
func (w *Watcher) Devices() []Device {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.devices)
}

// Powered reports the adapter power state seen at the last scan.
func (w *Watcher) Powered() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.powered
}

// Run scans once, then rescans on every BlueZ object or property change
// until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	conn := w.client.conn
	for _, rule := range []string{
		"type='signal',interface='" + objectMgrIface + "',member='InterfacesAdded'",
		"type='signal',interface='" + objectMgrIface + "',member='InterfacesRemoved'",
		"type='signal',interface='" + propsIface + "',member='PropertiesChanged',path_namespace='/org/bluez'",
	} {
		if err := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
			return err
		}
	}
	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	w.scan()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if relevant(sig) {
				w.scan()
			}
		}
	}
}

func relevant(sig *dbus.Signal) bool {
	switch sig.Name {
	case objectMgrIface + ".InterfacesAdded", objectMgrIface + ".InterfacesRemoved":
		return true
	case propsIface + ".PropertiesChanged":
		if len(sig.Body) == 0 {
			return false
		}
		iface, _ := sig.Body[0].(string)
		return iface == deviceIface || iface == adapterIface
	}
	return false
}

func (w *Watcher) scan() {
	powered, err := w.client.AdapterPowered()
	if err != nil {
		util.LogDebug("Reading adapter power failed: %v", err)
	}
	var devices []Device
	if powered {
		devices, err = w.client.Tablets()
		if err != nil {
			util.LogWarning("Listing Bluetooth devices failed: %v", err)
			return
		}
	}
	w.update(powered, devices)
}

// update stores a scan result and publishes it if anything changed.
func (w *Watcher) update(powered bool, devices []Device) {
	w.mu.Lock()
	changed := powered != w.powered || !slices.Equal(devices, w.devices)
	w.powered = powered
	w.devices = devices
	w.mu.Unlock()

	if changed {
		w.bus.Publish(event.Event{
			Kind:    event.DevicesUpdated,
			Source:  event.SourceBluez,
			Devices: ToEventDevices(devices),
		})
	}
}

// ToEventDevices converts tablets for publishing.
func ToEventDevices(devices []Device) []event.Device {
	out := make([]event.Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, event.Device{ID: d.Address, Name: d.Name, Transport: "bluetooth"})
	}
	return out
}
