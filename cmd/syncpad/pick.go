package main

import (
	"errors"
	"fmt"

	"github.com/pterm/pterm"

	"github.com/1ureka/syncpad/internal/bluez"
	"github.com/1ureka/syncpad/internal/hid"
	"github.com/1ureka/syncpad/internal/stream"
	"github.com/1ureka/syncpad/internal/util"
)

var errNoTablet = errors.New("no tablet found")

// pickTablet returns the HID tablet at path, or asks when several are
// attached and no path is given.
func pickTablet(m *stream.Manager, path string) (hid.DeviceInfo, error) {
	if err := m.Refresh(); err != nil {
		return hid.DeviceInfo{}, err
	}
	devices := m.Devices()
	if path != "" {
		for _, d := range devices {
			if d.Path == path {
				return d, nil
			}
		}
		return hid.DeviceInfo{}, fmt.Errorf("%s is not a tablet", path)
	}

	switch len(devices) {
	case 0:
		return hid.DeviceInfo{}, errNoTablet
	case 1:
		return devices[0], nil
	}

	options := make([]string, len(devices))
	for i, d := range devices {
		options[i] = tabletLabel(d)
	}
	choice, err := pterm.DefaultInteractiveSelect.
		WithOptions(options).
		WithDefaultText("Select a tablet").
		Show()
	if err != nil {
		return hid.DeviceInfo{}, err
	}
	pterm.Println()
	for i, o := range options {
		if o == choice {
			return devices[i], nil
		}
	}
	return hid.DeviceInfo{}, errNoTablet
}

func tabletLabel(d hid.DeviceInfo) string {
	transport := "USB"
	if d.Bluetooth {
		transport = "Bluetooth"
	}
	return fmt.Sprintf("%s (%s, %s)", d.Name, transport, d.Path)
}

// pickAddress returns the Bluetooth address to use for file transfer:
// the flag, then the config, then an interactive choice among paired
// tablets.
func pickAddress(bt *bluez.Client, flag, configured string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if configured != "" {
		return configured, nil
	}

	tablets, err := bt.Tablets()
	if err != nil {
		return "", err
	}
	switch len(tablets) {
	case 0:
		return "", fmt.Errorf("%w: pair the tablet first", errNoTablet)
	case 1:
		util.LogDebug("using %s (%s)", tablets[0].Name, tablets[0].Address)
		return tablets[0].Address, nil
	}

	options := make([]string, len(tablets))
	for i, d := range tablets {
		options[i] = fmt.Sprintf("%s  %s", d.Address, d.Name)
	}
	choice, err := pterm.DefaultInteractiveSelect.
		WithOptions(options).
		WithDefaultText("Select a tablet").
		Show()
	if err != nil {
		return "", err
	}
	pterm.Println()
	for i, o := range options {
		if o == choice {
			return tablets[i].Address, nil
		}
	}
	return "", errNoTablet
}
