package util

import (
	"net"
	"strings"
	"testing"
)

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
	}
	for _, tc := range testCases {
		got := formatBytes(tc.in)
		if got != tc.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
		if len(got) != 8 {
			t.Errorf("formatBytes(%v) is %d chars wide", tc.in, len(got))
		}
	}
}

func TestFormatStats(t *testing.T) {
	got := formatStats(2048, 0, 120, 35)
	for _, want := range []string{"OBEX:  2.0 KiB/s", "Relay:  0.0   B/s", "120.0 rep/s", "35 seg"} {
		if !strings.Contains(got, want) {
			t.Errorf("%q lacks %q", got, want)
		}
	}
}

func TestClientIDFromConnIsStable(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	if ClientIDFromConn(a) != ClientIDFromConn(a) {
		t.Fatal("id changed between calls")
	}
}
