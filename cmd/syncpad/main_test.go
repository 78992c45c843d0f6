package main

import (
	"slices"
	"testing"
)

func TestNormalizeWSURL(t *testing.T) {
	testCases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ws://10.0.0.2:8787/ws?pin=1234", "ws://10.0.0.2:8787/ws?pin=1234", false},
		{"10.0.0.2:8787?pin=1234", "ws://10.0.0.2:8787/ws?pin=1234", false},
		{"https://abc.devtunnels.ms/?pin=9", "wss://abc.devtunnels.ms/ws?pin=9", false},
		{"  ws://host/ws?pin=1  ", "ws://host/ws?pin=1", false},
		{"ws://host/ws", "", true},
		{"ftp://host/ws?pin=1", "", true},
		{"ws://?pin=1", "", true},
	}
	for _, tc := range testCases {
		got, err := normalizeWSURL(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("normalizeWSURL(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("normalizeWSURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplitPath(t *testing.T) {
	testCases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/", nil},
		{"Documents", []string{"Documents"}},
		{"/Documents//2024/./notes.pdf", []string{"Documents", "2024", "notes.pdf"}},
	}
	for _, tc := range testCases {
		if got := splitPath(tc.in); !slices.Equal(got, tc.want) {
			t.Errorf("splitPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
