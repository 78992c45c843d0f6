// Package obex implements the subset of the OBEX binary protocol used by the
// Bluetooth File Transfer Profile: header, request and response framing.
package obex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
)

// Errors returned by the codec.
var (
	ErrMalformed      = errors.New("obex: malformed packet")
	ErrPacketTooLarge = errors.New("obex: packet exceeds 65535 bytes")
)

// MaxPacketSize is the largest packet OBEX can express in its 2-byte length field.
const MaxPacketSize = 0xFFFF

// utf16be is the OBEX Unicode encoding for NAME headers.
var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// PutLength writes n into the first two bytes of b, big-endian.
func PutLength(b []byte, n int) {
	binary.BigEndian.PutUint16(b, uint16(n))
}

// Length reads a big-endian 2-byte length from the start of b.
func Length(b []byte) int {
	return int(binary.BigEndian.Uint16(b))
}

// EncodeName encodes name as null-terminated UTF-16BE. An empty name yields an
// empty body, which is how a bare NAME header is sent.
func EncodeName(name string) []byte {
	if name == "" {
		return nil
	}
	out, err := utf16be.NewEncoder().Bytes([]byte(name + "\x00"))
	if err != nil {
		// Invalid UTF-8 in name; fall back to the code-unit-per-byte layout.
		out = make([]byte, 0, 2*(len(name)+1))
		for i := 0; i < len(name); i++ {
			out = append(out, 0x00, name[i])
		}
		out = append(out, 0x00, 0x00)
	}
	return out
}

// DecodeName decodes a UTF-16BE NAME body and drops the trailing NUL.
func DecodeName(body []byte) (string, error) {
	if len(body) == 0 {
		return "", nil
	}
	if len(body)%2 != 0 {
		return "", fmt.Errorf("%w: odd-length unicode name (%d bytes)", ErrMalformed, len(body))
	}
	out, err := utf16be.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decode name: %w", err)
	}
	return string(bytes.TrimRight(out, "\x00")), nil
}

// ReadPacket reads one complete OBEX packet from a stream transport. The
// declared length in bytes 1-2 decides how much is read after the prefix.
func ReadPacket(r io.Reader) ([]byte, error) {
	var prefix [3]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := Length(prefix[1:3])
	if n < len(prefix) {
		return nil, fmt.Errorf("%w: declared length %d", ErrMalformed, n)
	}
	pkt := make([]byte, n)
	copy(pkt, prefix[:])
	if _, err := io.ReadFull(r, pkt[len(prefix):]); err != nil {
		return nil, fmt.Errorf("read packet body: %w", err)
	}
	return pkt, nil
}
