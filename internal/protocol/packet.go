// Package protocol defines the packet format used to share live ink between
// two syncpad instances and to record it to disk.
package protocol

// Packet type constants.
const (
	TypeSegments uint8 = 0x01 // CBOR array of stroke segments
	TypeClear    uint8 = 0x02 // tablet screen erased
	TypeState    uint8 = 0x03 // CBOR StreamState
)

// HeaderSize is the fixed header size: Type(1) + Seq(4).
const HeaderSize = 5

// Packet represents an ink packet transmitted over the DataChannel.
type Packet struct {
	Type    uint8  // TypeSegments, TypeClear or TypeState
	Seq     uint32 // per-sender sequence number
	Payload []byte // empty for TypeClear
}
