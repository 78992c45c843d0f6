package hid

import (
	"bytes"
	"errors"
	"testing"
)

// vendorDescriptor declares a digitizer collection followed by the vendor
// capture collection with numbered reports.
var vendorDescriptor = []byte{
	0x05, 0x0D,       // usage page (digitizer)
	0x09, 0x02,       // usage (pen)
	0xA1, 0x01,       // collection (application)
	0x85, 0x02,       //   report id 2
	0x09, 0x30,       //   usage (tip pressure)
	0x81, 0x02,       //   input
	0xC0,             // end collection
	0x06, 0x00, 0xFF, // usage page (vendor 0xFF00)
	0x09, 0x00,       // usage 0
	0xA1, 0x01,       // collection (application)
	0x85, 0x05,       //   report id 5
	0x09, 0x01,       //   usage 1
	0xB1, 0x02,       //   feature
	0xC0,             // end collection
}

func TestParseCaptureReport(t *testing.T) {
	data := []byte{0x34, 0x12, 0x78, 0x56, 0x90, 0x01, 0x05}
	r, err := ParseCaptureReport(data)
	if err != nil {
		t.Fatalf("ParseCaptureReport failed: %v", err)
	}
	want := CaptureReport{X: 0x1234, Y: 0x5678, Pressure: 0x0190, Flags: 0x05}
	if r != want {
		t.Fatalf("got %+v, want %+v", r, want)
	}

	s := r.Sample()
	if s.X != 0x1234 || s.Y != 0x5678 || s.Pressure != 400 || s.Flags != 0x05 {
		t.Errorf("sample = %+v", s)
	}
}

func TestParseCaptureReportShort(t *testing.T) {
	_, err := ParseCaptureReport([]byte{1, 2, 3, 4, 5, 6})
	if !errors.Is(err, ErrShortReport) {
		t.Fatalf("expected ErrShortReport, got %v", err)
	}
}

func TestFeatureReports(t *testing.T) {
	testCases := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"capture mode", ModeReport(ModeCapture), []byte{5, 0, 4}},
		{"file mode", ModeReport(ModeFile), []byte{5, 0, 5}},
		{"none mode", ModeReport(ModeNone), []byte{5, 0, 1}},
		{"erase", EraseReport(), []byte{4, 0, 1}},
	}
	for _, tc := range testCases {
		if !bytes.Equal(tc.got, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("digitizer")
	if err != nil || m != ModeDigitizer {
		t.Fatalf("ParseMode(digitizer) = %v, %v", m, err)
	}
	if _, err := ParseMode("turbo"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestKnown(t *testing.T) {
	if !Known(0x2914, 0x0100) || !Known(0x00F3, 0x0100) {
		t.Fatal("tablet identities not recognized")
	}
	if Known(0x2914, 0x0200) || Known(0x046D, 0x0100) {
		t.Fatal("unrelated identity recognized")
	}
}

func TestParseDescriptor(t *testing.T) {
	d, err := ParseDescriptor(vendorDescriptor)
	if err != nil {
		t.Fatalf("ParseDescriptor failed: %v", err)
	}
	if len(d.Collections) != 2 {
		t.Fatalf("got %d collections, want 2", len(d.Collections))
	}
	if !d.Has(Usage{Page: CaptureUsagePage, ID: CaptureUsage}) {
		t.Error("capture collection not found")
	}
	if !d.Has(Usage{Page: 0x0D, ID: 0x02}) {
		t.Error("digitizer collection not found")
	}
	if !d.NumberedReports {
		t.Error("report ids not detected")
	}
}

func TestParseDescriptorWithoutReportIDs(t *testing.T) {
	d, err := ParseDescriptor([]byte{0x06, 0x00, 0xFF, 0x09, 0x00, 0xA1, 0x01, 0x81, 0x02, 0xC0})
	if err != nil {
		t.Fatalf("ParseDescriptor failed: %v", err)
	}
	if d.NumberedReports {
		t.Error("unnumbered descriptor reported as numbered")
	}
	if !d.Has(Usage{Page: CaptureUsagePage}) {
		t.Error("capture collection not found")
	}
}

func TestParseDescriptorTruncated(t *testing.T) {
	if _, err := ParseDescriptor([]byte{0x06, 0x00}); err == nil {
		t.Fatal("expected error for truncated item")
	}
}
