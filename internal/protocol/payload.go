package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/1ureka/syncpad/internal/stroke"
)

// cborEncMode uses canonical mode so identical ink encodes identically.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// StreamState describes the sender's tablet.
type StreamState struct {
	Connected bool   `cbor:"1,keyasint"`
	Device    string `cbor:"2,keyasint,omitempty"`
	Width     int    `cbor:"3,keyasint"`
	Height    int    `cbor:"4,keyasint"`
}

// NewSegments builds a TypeSegments packet.
func NewSegments(seq uint32, segs []stroke.Segment) (*Packet, error) {
	payload, err := cborEncMode.Marshal(segs)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal segments: %w", err)
	}
	return &Packet{Type: TypeSegments, Seq: seq, Payload: payload}, nil
}

// NewState builds a TypeState packet.
func NewState(seq uint32, st StreamState) (*Packet, error) {
	payload, err := cborEncMode.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal state: %w", err)
	}
	return &Packet{Type: TypeState, Seq: seq, Payload: payload}, nil
}

// NewClear builds a TypeClear packet.
func NewClear(seq uint32) *Packet {
	return &Packet{Type: TypeClear, Seq: seq}
}

// Segments decodes the payload of a TypeSegments packet.
func (p *Packet) Segments() ([]stroke.Segment, error) {
	if p.Type != TypeSegments {
		return nil, fmt.Errorf("protocol: packet type 0x%02X carries no segments", p.Type)
	}
	var segs []stroke.Segment
	if err := cbor.Unmarshal(p.Payload, &segs); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal segments: %w", err)
	}
	return segs, nil
}

// State decodes the payload of a TypeState packet.
func (p *Packet) State() (StreamState, error) {
	var st StreamState
	if p.Type != TypeState {
		return st, fmt.Errorf("protocol: packet type 0x%02X carries no state", p.Type)
	}
	if err := cbor.Unmarshal(p.Payload, &st); err != nil {
		return st, fmt.Errorf("protocol: unmarshal state: %w", err)
	}
	return st, nil
}
