//go:build linux

package hid

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SysfsRoot is where hidraw nodes are enumerated from. Tests point it at a
// fixture tree.
var SysfsRoot = "/sys/class/hidraw"

// DevRoot is where hidraw device nodes live.
var DevRoot = "/dev"

const (
	busUSB       = 0x03
	busBluetooth = 0x05
)

// Enumerate lists attached tablets that expose the capture collection.
func Enumerate() ([]DeviceInfo, error) {
	nodes, err := filepath.Glob(filepath.Join(SysfsRoot, "hidraw*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(nodes)

	var out []DeviceInfo
	for _, node := range nodes {
		info, ok := probe(node)
		if ok {
			out = append(out, info)
		}
	}
	return out, nil
}

// probe reads a hidraw node's uevent and report descriptor.
func probe(node string) (DeviceInfo, bool) {
	f, err := os.Open(filepath.Join(node, "device", "uevent"))
	if err != nil {
		return DeviceInfo{}, false
	}
	defer f.Close()

	var (
		info DeviceInfo
		bus  uint64
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "HID_ID":
			// bus:vendor:product, hex
			parts := strings.Split(value, ":")
			if len(parts) != 3 {
				return DeviceInfo{}, false
			}
			bus, _ = strconv.ParseUint(parts[0], 16, 32)
			v, _ := strconv.ParseUint(parts[1], 16, 32)
			p, _ := strconv.ParseUint(parts[2], 16, 32)
			info.VendorID, info.ProductID = uint16(v), uint16(p)
		case "HID_NAME":
			info.Name = value
		}
	}
	if !Known(info.VendorID, info.ProductID) {
		return DeviceInfo{}, false
	}

	raw, err := os.ReadFile(filepath.Join(node, "device", "report_descriptor"))
	if err != nil {
		return DeviceInfo{}, false
	}
	desc, err := ParseDescriptor(raw)
	if err != nil || !desc.Has(Usage{Page: CaptureUsagePage, ID: CaptureUsage}) {
		return DeviceInfo{}, false
	}

	info.Bluetooth = bus == busBluetooth
	info.Path = filepath.Join(DevRoot, filepath.Base(node))
	return info, true
}

// Device is an open hidraw node.
type Device struct {
	info     DeviceInfo
	file     *os.File
	numbered bool
}

// Open opens the hidraw node described by info.
func Open(info DeviceInfo) (*Device, error) {
	numbered := false
	node := filepath.Join(SysfsRoot, filepath.Base(info.Path))
	if raw, err := os.ReadFile(filepath.Join(node, "device", "report_descriptor")); err == nil {
		if desc, err := ParseDescriptor(raw); err == nil {
			numbered = desc.NumberedReports
		}
	}

	// O_NONBLOCK lets the runtime poller park reads so Close can unblock them.
	f, err := os.OpenFile(info.Path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", info.Path, err)
	}
	return &Device{info: info, file: f, numbered: numbered}, nil
}

// Info returns the identity the device was opened with.
func (d *Device) Info() DeviceInfo { return d.info }

// ReadReport blocks for the next input report. The report id is stripped
// when the device numbers its reports.
func (d *Device) ReadReport() ([]byte, error) {
	buf := make([]byte, 64)
	n, err := d.file.Read(buf)
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("read report: %w", err)
	}
	buf = buf[:n]
	if d.numbered && len(buf) > 0 {
		buf = buf[1:]
	}
	return buf, nil
}

// hidiocsfeature is HIDIOCSFEATURE(len): _IOC(_IOC_WRITE|_IOC_READ, 'H', 0x06, len).
func hidiocsfeature(n int) uintptr {
	const iocReadWrite = 3
	return uintptr(iocReadWrite<<30 | n<<16 | 'H'<<8 | 0x06)
}

// SendFeatureReport writes a feature report; data[0] is the report id.
func (d *Device) SendFeatureReport(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty feature report")
	}
	buf := bytes.Clone(data)

	rc, err := d.file.SyscallConn()
	if err != nil {
		return err
	}
	var errno unix.Errno
	ctrlErr := rc.Control(func(fd uintptr) {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, hidiocsfeature(len(buf)), uintptr(unsafe.Pointer(&buf[0])))
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	if errno != 0 {
		return fmt.Errorf("send feature report %d: %w", buf[0], errno)
	}
	return nil
}

// Close releases the device and unblocks a pending ReadReport.
func (d *Device) Close() error {
	return d.file.Close()
}
