// Package bluez finds the tablet through BlueZ on the system D-Bus and opens
// RFCOMM streams to its file transfer service.
package bluez

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	busName          = "org.bluez"
	adapterIface     = "org.bluez.Adapter1"
	deviceIface      = "org.bluez.Device1"
	profileIface     = "org.bluez.Profile1"
	profileMgrIface  = "org.bluez.ProfileManager1"
	propsIface       = "org.freedesktop.DBus.Properties"
	objectMgrIface   = "org.freedesktop.DBus.ObjectManager"
	defaultAdapter   = "hci0"
	tabletDeviceName = "Sync"
)

// FTPServiceUUID is the OBEX file transfer service class.
const FTPServiceUUID = "00001106-0000-1000-8000-00805f9b34fb"

var ErrNoBluez = errors.New("org.bluez not found on system bus; is bluetooth.service running?")

// Device is a tablet known to BlueZ.
type Device struct {
	Address   string
	Name      string
	Paired    bool
	Connected bool
}

// Client wraps a system bus connection for BlueZ calls on one adapter.
type Client struct {
	conn    *dbus.Conn
	adapter string
}

// Dial connects to the system bus and checks that BlueZ is present. An empty
// adapter selects hci0.
func Dial(adapter string) (*Client, error) {
	if adapter == "" {
		adapter = defaultAdapter
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	if !slices.Contains(names, busName) {
		conn.Close()
		return nil, ErrNoBluez
	}
	return &Client{conn: conn, adapter: adapter}, nil
}

// Close releases the bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) adapterPath() dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + c.adapter)
}

// DevicePath converts "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func DevicePath(adapter, addr string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapter + "/dev_" + strings.ReplaceAll(strings.ToUpper(addr), ":", "_"))
}

// AddressFromPath extracts the MAC address from a device object path.
func AddressFromPath(path dbus.ObjectPath) string {
	s := string(path)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(s[i+len("/dev_"):], "_", ":")
}

// --- property helpers ---

func (c *Client) getProp(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	err := c.conn.Object(busName, path).Call(propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (c *Client) setProp(path dbus.ObjectPath, iface, prop string, val any) error {
	return c.conn.Object(busName, path).Call(propsIface+".Set", 0, iface, prop, dbus.MakeVariant(val)).Err
}

// AdapterPowered reports whether the adapter is on.
func (c *Client) AdapterPowered() (bool, error) {
	v, err := c.getProp(c.adapterPath(), adapterIface, "Powered")
	if err != nil {
		return false, err
	}
	on, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("Powered is %s, not bool", v.Signature())
	}
	return on, nil
}

// SetAdapterPowered switches the adapter on or off.
func (c *Client) SetAdapterPowered(on bool) error {
	return c.setProp(c.adapterPath(), adapterIface, "Powered", on)
}

// Tablets lists devices on the adapter that look like the tablet.
func (c *Client) Tablets() ([]Device, error) {
	objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
	if err := c.conn.Object(busName, "/").Call(objectMgrIface+".GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}

	prefix := string(c.adapterPath()) + "/"
	var out []Device
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		if d, ok := tabletFromProps(props); ok {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b Device) int { return strings.Compare(a.Address, b.Address) })
	return out, nil
}

// tabletFromProps applies the device filter: the advertised name and the
// file transfer service.
func tabletFromProps(props map[string]dbus.Variant) (Device, bool) {
	var d Device
	if v, ok := props["Name"]; ok {
		d.Name, _ = v.Value().(string)
	}
	if d.Name != tabletDeviceName {
		return Device{}, false
	}
	var uuids []string
	if v, ok := props["UUIDs"]; ok {
		uuids, _ = v.Value().([]string)
	}
	if !slices.ContainsFunc(uuids, func(u string) bool { return strings.EqualFold(u, FTPServiceUUID) }) {
		return Device{}, false
	}
	if v, ok := props["Address"]; ok {
		d.Address, _ = v.Value().(string)
	}
	if v, ok := props["Paired"]; ok {
		d.Paired, _ = v.Value().(bool)
	}
	if v, ok := props["Connected"]; ok {
		d.Connected, _ = v.Value().(bool)
	}
	return d, d.Address != ""
}
