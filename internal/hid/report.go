// Package hid talks to the tablet's vendor HID interface: capture reports in,
// mode and erase feature reports out.
package hid

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/1ureka/syncpad/internal/stroke"
)

// Known device identities.
const (
	VendorUSB        uint16 = 0x2914
	ProductUSB       uint16 = 0x0100
	VendorBluetooth  uint16 = 0x00F3
	ProductBluetooth uint16 = 0x0100

	// Vendor-defined collection carrying capture reports.
	CaptureUsagePage uint16 = 0xFF00
	CaptureUsage     uint16 = 0x0000
)

// Digitizer extents.
const (
	MaxX = 20280
	MaxY = 13942
)

// CaptureReportSize is the payload length of a capture report without a
// report id.
const CaptureReportSize = 7

var ErrShortReport = errors.New("hid: short capture report")

// Mode selects what the tablet reports over HID.
type Mode byte

const (
	ModeNone      Mode = 0x01
	ModeDigitizer Mode = 0x03
	ModeCapture   Mode = 0x04
	ModeFile      Mode = 0x05
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeDigitizer:
		return "digitizer"
	case ModeCapture:
		return "capture"
	case ModeFile:
		return "file"
	}
	return fmt.Sprintf("mode(0x%02X)", byte(m))
}

// ParseMode maps a mode name to its value.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{ModeNone, ModeDigitizer, ModeCapture, ModeFile} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Feature report ids.
const (
	reportErase byte = 4
	reportMode  byte = 5
)

// ModeReport returns the feature report that switches the tablet to m.
func ModeReport(m Mode) []byte {
	return []byte{reportMode, 0, byte(m)}
}

// EraseReport returns the feature report that clears the tablet's screen.
func EraseReport() []byte {
	return []byte{reportErase, 0, 1}
}

// CaptureReport is one pen sample as sent by the tablet.
type CaptureReport struct {
	X        uint16
	Y        uint16
	Pressure uint16
	Flags    byte
}

// ParseCaptureReport decodes a capture report: little-endian x, y and
// pressure followed by the flags byte.
func ParseCaptureReport(data []byte) (CaptureReport, error) {
	if len(data) < CaptureReportSize {
		return CaptureReport{}, fmt.Errorf("%w: %d bytes (need %d)", ErrShortReport, len(data), CaptureReportSize)
	}
	return CaptureReport{
		X:        binary.LittleEndian.Uint16(data[0:2]),
		Y:        binary.LittleEndian.Uint16(data[2:4]),
		Pressure: binary.LittleEndian.Uint16(data[4:6]),
		Flags:    data[6],
	}, nil
}

// Sample converts the report for the stroke pipeline.
func (r CaptureReport) Sample() stroke.Sample {
	return stroke.Sample{
		Point: stroke.Point{X: int(r.X), Y: int(r.Y), Pressure: int(r.Pressure)},
		Flags: r.Flags,
	}
}

// DeviceInfo describes an attached tablet interface.
type DeviceInfo struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	VendorID  uint16 `json:"vendorId"`
	ProductID uint16 `json:"productId"`
	Bluetooth bool   `json:"bluetooth"`
}

// Known reports whether the vendor/product pair is a supported tablet.
func Known(vendor, product uint16) bool {
	return (vendor == VendorUSB && product == ProductUSB) ||
		(vendor == VendorBluetooth && product == ProductBluetooth)
}
