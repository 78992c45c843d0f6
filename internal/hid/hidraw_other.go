//go:build !linux

package hid

import "errors"

var errUnsupported = errors.New("hid: hidraw is only available on linux")

// Enumerate is unavailable on this platform.
func Enumerate() ([]DeviceInfo, error) { return nil, errUnsupported }

// Device is unavailable on this platform.
type Device struct{ info DeviceInfo }

// Open is unavailable on this platform.
func Open(info DeviceInfo) (*Device, error) { return nil, errUnsupported }

func (d *Device) Info() DeviceInfo                    { return d.info }
func (d *Device) ReadReport() ([]byte, error)         { return nil, errUnsupported }
func (d *Device) SendFeatureReport(data []byte) error { return errUnsupported }
func (d *Device) Close() error                        { return nil }
