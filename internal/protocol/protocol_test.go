package protocol_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/1ureka/syncpad/internal/protocol"
	"github.com/1ureka/syncpad/internal/stroke"
)

// TestEncodeDecodeRoundTrip verifies that encoding and decoding are inverse operations
// for all packet types with various payload sizes.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		pkt  *protocol.Packet
	}{
		{
			name: "TypeClear with no payload",
			pkt:  &protocol.Packet{Type: protocol.TypeClear, Seq: 1},
		},
		{
			name: "TypeSegments with small payload",
			pkt:  &protocol.Packet{Type: protocol.TypeSegments, Seq: 42, Payload: []byte("ink")},
		},
		{
			name: "TypeState with large payload (16KB)",
			pkt:  &protocol.Packet{Type: protocol.TypeState, Seq: 999, Payload: make([]byte, 16*1024)},
		},
		{
			name: "TypeSegments with empty payload",
			pkt:  &protocol.Packet{Type: protocol.TypeSegments, Seq: 555, Payload: []byte{}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := protocol.Decode(protocol.Encode(tc.pkt))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if decoded.Type != tc.pkt.Type {
				t.Errorf("Type mismatch: got %d, want %d", decoded.Type, tc.pkt.Type)
			}
			if decoded.Seq != tc.pkt.Seq {
				t.Errorf("Seq mismatch: got %d, want %d", decoded.Seq, tc.pkt.Seq)
			}
			if !bytes.Equal(decoded.Payload, tc.pkt.Payload) {
				t.Errorf("Payload mismatch: got %v, want %v", decoded.Payload, tc.pkt.Payload)
			}
		})
	}
}

// TestDecodeTooShort verifies that Decode returns an error when the input
// is shorter than HeaderSize.
func TestDecodeTooShort(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"1 byte", []byte{0x01}},
		{"one less than HeaderSize", make([]byte, protocol.HeaderSize-1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := protocol.Decode(tc.data); err == nil {
				t.Fatal("Expected error for short packet, got nil")
			}
		})
	}
}

// TestEncodeLayout pins the header byte order.
func TestEncodeLayout(t *testing.T) {
	got := protocol.Encode(&protocol.Packet{Type: protocol.TypeState, Seq: 0x01020304, Payload: []byte{0xAA}})
	want := []byte{0x03, 0x01, 0x02, 0x03, 0x04, 0xAA}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode = % X, want % X", got, want)
	}
}

// TestEncodeBoundaryValues tests encoding and decoding with boundary values
// for Seq.
func TestEncodeBoundaryValues(t *testing.T) {
	for _, seq := range []uint32{0, 1, 0x7FFFFFFF, 0xFFFFFFFF} {
		t.Run(fmt.Sprintf("seq %d", seq), func(t *testing.T) {
			decoded, err := protocol.Decode(protocol.Encode(&protocol.Packet{Type: protocol.TypeClear, Seq: seq}))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if decoded.Seq != seq {
				t.Errorf("Seq mismatch: got %d, want %d", decoded.Seq, seq)
			}
		})
	}
}

// TestDecodePreservesPayload verifies that the payload is correctly copied
// and not aliased to the input buffer.
func TestDecodePreservesPayload(t *testing.T) {
	encoded := protocol.Encode(&protocol.Packet{Type: protocol.TypeSegments, Seq: 10, Payload: []byte("original")})
	decoded, err := protocol.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	encoded[protocol.HeaderSize] = 0xFF
	if !bytes.Equal(decoded.Payload, []byte("original")) {
		t.Errorf("Payload was incorrectly aliased: got %v", decoded.Payload)
	}
}

// TestSegmentsPayload verifies that segments survive the CBOR payload and
// the frame codec together.
func TestSegmentsPayload(t *testing.T) {
	segs := []stroke.Segment{
		{X1: 0, Y1: 0, X2: 0, Y2: 20, LineWidth: 50.5},
		{X1: 0, Y1: 20, X2: 3, Y2: 42, LineWidth: 48.25},
	}
	pkt, err := protocol.NewSegments(7, segs)
	if err != nil {
		t.Fatalf("NewSegments failed: %v", err)
	}
	decoded, err := protocol.Decode(protocol.Encode(pkt))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, err := decoded.Segments()
	if err != nil {
		t.Fatalf("Segments failed: %v", err)
	}
	if len(got) != len(segs) {
		t.Fatalf("got %d segments, want %d", len(got), len(segs))
	}
	for i := range segs {
		if got[i] != segs[i] {
			t.Errorf("segment %d = %+v, want %+v", i, got[i], segs[i])
		}
	}

	again, _ := protocol.NewSegments(7, segs)
	if !bytes.Equal(again.Payload, pkt.Payload) {
		t.Error("encoding is not deterministic")
	}
}

// TestPayloadTypeMismatch verifies that decoders refuse packets of another type.
func TestPayloadTypeMismatch(t *testing.T) {
	clr := protocol.NewClear(1)
	if _, err := clr.Segments(); err == nil {
		t.Error("Segments accepted a clear packet")
	}
	if _, err := clr.State(); err == nil {
		t.Error("State accepted a clear packet")
	}
	bad := &protocol.Packet{Type: protocol.TypeSegments, Payload: []byte{0xFF, 0x00}}
	if _, err := bad.Segments(); err == nil {
		t.Error("Segments accepted garbage")
	}
}

func TestStatePayload(t *testing.T) {
	want := protocol.StreamState{Connected: true, Device: "Sync", Width: 20000, Height: 15000}
	pkt, err := protocol.NewState(3, want)
	if err != nil {
		t.Fatalf("NewState failed: %v", err)
	}
	got, err := pkt.State()
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if got != want {
		t.Errorf("state = %+v, want %+v", got, want)
	}
}

// TestRecordingRoundTrip verifies that recorded packets read back in order.
func TestRecordingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec, err := protocol.NewRecorder(&buf)
	if err != nil {
		t.Fatal(err)
	}
	seg, _ := protocol.NewSegments(1, []stroke.Segment{{X2: 5, Y2: 5, LineWidth: 40}})
	pkts := []*protocol.Packet{seg, protocol.NewClear(2), {Type: protocol.TypeSegments, Seq: 3}}
	for _, p := range pkts {
		if err := rec.Write(p); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := rec.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	got, err := protocol.ReadRecording(&buf)
	if err != nil {
		t.Fatalf("ReadRecording failed: %v", err)
	}
	if len(got) != len(pkts) {
		t.Fatalf("read %d packets, want %d", len(got), len(pkts))
	}
	for i := range pkts {
		if got[i].Type != pkts[i].Type || got[i].Seq != pkts[i].Seq || !bytes.Equal(got[i].Payload, pkts[i].Payload) {
			t.Errorf("packet %d = %+v, want %+v", i, got[i], pkts[i])
		}
	}
}

func TestReadRecordingRejects(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong magic", []byte("NOTSYNCPAD")},
		{"truncated frame", append([]byte("SYNCPAD\x01"), 0, 0, 0, 9, 1, 2)},
		{"short packet", append([]byte("SYNCPAD\x01"), 0, 0, 0, 2, 1, 2)},
		{"oversized frame", append([]byte("SYNCPAD\x01"), 0xFF, 0, 0, 0)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := protocol.ReadRecording(bytes.NewReader(tc.data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
