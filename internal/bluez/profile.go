package bluez

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/1ureka/syncpad/internal/util"
)

const profilePath = dbus.ObjectPath("/com/github/1ureka/syncpad/ftp")

// ProfileDialer opens RFCOMM streams to the tablet's file transfer service.
// It registers itself as a BlueZ client profile; BlueZ hands over the
// connected socket through NewConnection while ConnectProfile is running.
type ProfileDialer struct {
	client *Client

	mu      sync.Mutex
	waiters map[dbus.ObjectPath]chan *os.File
}

// NewProfileDialer returns a dialer bound to client. Call Register before
// the first Dial.
func NewProfileDialer(client *Client) *ProfileDialer {
	return &ProfileDialer{client: client, waiters: make(map[dbus.ObjectPath]chan *os.File)}
}

// Register exports the profile object and registers it with BlueZ.
func (p *ProfileDialer) Register() error {
	conn := p.client.conn
	if err := conn.Export(p, profilePath, profileIface); err != nil {
		return fmt.Errorf("export profile: %w", err)
	}
	opts := map[string]dbus.Variant{
		"Name":                  dbus.MakeVariant("syncpad file transfer"),
		"Role":                  dbus.MakeVariant("client"),
		"AutoConnect":           dbus.MakeVariant(false),
		"RequireAuthentication": dbus.MakeVariant(false),
	}
	call := conn.Object(busName, "/org/bluez").Call(profileMgrIface+".RegisterProfile", 0, profilePath, FTPServiceUUID, opts)
	if call.Err != nil {
		return fmt.Errorf("register profile: %w", call.Err)
	}
	return nil
}

// Unregister removes the profile from BlueZ.
func (p *ProfileDialer) Unregister() error {
	return p.client.conn.Object(busName, "/org/bluez").Call(profileMgrIface+".UnregisterProfile", 0, profilePath).Err
}

// Dial connects the file transfer profile of the device at address and
// returns the RFCOMM stream.
func (p *ProfileDialer) Dial(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	path := DevicePath(p.client.adapter, address)
	ch := p.expect(path)
	defer p.forget(path, ch)

	call := p.client.conn.Object(busName, path).GoWithContext(ctx, deviceIface+".ConnectProfile", 0, nil, FTPServiceUUID)

	select {
	case f := <-ch:
		return f, nil
	case <-call.Done:
		if call.Err != nil {
			return nil, fmt.Errorf("connect profile on %s: %w", address, call.Err)
		}
		// ConnectProfile may return just before NewConnection lands
		select {
		case f := <-ch:
			return f, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *ProfileDialer) expect(path dbus.ObjectPath) chan *os.File {
	ch := make(chan *os.File, 1)
	p.mu.Lock()
	p.waiters[path] = ch
	p.mu.Unlock()
	return ch
}

// forget unregisters ch and closes a socket that arrived after Dial gave up.
func (p *ProfileDialer) forget(path dbus.ObjectPath, ch chan *os.File) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waiters[path] == ch {
		delete(p.waiters, path)
	}
	select {
	case f := <-ch:
		f.Close()
	default:
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// org.bluez.Profile1
// ──────────────────────────────────────────────────────────────────────────────

// NewConnection receives the connected RFCOMM socket from BlueZ.
func (p *ProfileDialer) NewConnection(device dbus.ObjectPath, fd dbus.UnixFD, props map[string]dbus.Variant) *dbus.Error {
	// Non-blocking so the runtime poller owns it and Close unblocks a Read.
	if err := unix.SetNonblock(int(fd), true); err != nil {
		util.LogWarning("RFCOMM socket from %s stays blocking: %v", AddressFromPath(device), err)
	}
	f := os.NewFile(uintptr(fd), "rfcomm:"+AddressFromPath(device))

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.waiters[device]
	if !ok {
		util.LogWarning("Unexpected RFCOMM connection from %s", AddressFromPath(device))
		f.Close()
		return dbus.MakeFailedError(fmt.Errorf("no pending connection for %s", device))
	}
	select {
	case ch <- f:
	default:
		f.Close()
	}
	return nil
}

// RequestDisconnection is called when BlueZ drops the profile.
func (p *ProfileDialer) RequestDisconnection(device dbus.ObjectPath) *dbus.Error {
	util.LogDebug("BlueZ requested disconnection of %s", AddressFromPath(device))
	return nil
}

// Release is called when BlueZ unregisters the profile.
func (p *ProfileDialer) Release() *dbus.Error {
	return nil
}
