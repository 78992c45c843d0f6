package obex

import (
	"encoding/binary"
	"fmt"
)

// HeaderID identifies an OBEX header. The top two bits select the encoding.
type HeaderID byte

// Header ids used by the File Transfer Profile.
const (
	HeaderName        HeaderID = 0x01
	HeaderDescription HeaderID = 0x05
	HeaderType        HeaderID = 0x42
	HeaderTarget      HeaderID = 0x46
	HeaderBody        HeaderID = 0x48
	HeaderEndOfBody   HeaderID = 0x49
	HeaderWho         HeaderID = 0x4A
	HeaderLength      HeaderID = 0xC3
	HeaderConnection  HeaderID = 0xCB
)

// Header encoding classes (OBEX 2.1).
const (
	classUnicode  = 0x00
	classBytes    = 0x40
	classOneByte  = 0x80
	classFourByte = 0xC0
	classMask     = 0xC0
)

func (id HeaderID) class() byte { return byte(id) & classMask }

// fixedBodySize returns the body size for fixed-width classes, or -1 when the
// header carries its own length prefix.
func (id HeaderID) fixedBodySize() int {
	switch id.class() {
	case classOneByte:
		return 1
	case classFourByte:
		return 4
	}
	return -1
}

func (id HeaderID) String() string {
	switch id {
	case HeaderName:
		return "NAME"
	case HeaderDescription:
		return "DESCRIPTION"
	case HeaderType:
		return "TYPE"
	case HeaderTarget:
		return "TARGET"
	case HeaderBody:
		return "BODY"
	case HeaderEndOfBody:
		return "END_OF_BODY"
	case HeaderWho:
		return "WHO"
	case HeaderLength:
		return "LENGTH"
	case HeaderConnection:
		return "CONNECTION"
	}
	return fmt.Sprintf("HEADER(0x%02X)", byte(id))
}

// Header is a single typed OBEX field. The zero value is not meaningful; use
// the constructors. Headers are immutable once built.
type Header struct {
	id   HeaderID
	body []byte
	name string
}

// NewHeader builds a header from a raw body. Fixed-width ids must be given a
// body of exactly their width.
func NewHeader(id HeaderID, body []byte) (Header, error) {
	if n := id.fixedBodySize(); n >= 0 && len(body) != n {
		return Header{}, fmt.Errorf("%s header needs a %d-byte body, got %d", id, n, len(body))
	}
	if id.fixedBodySize() < 0 && len(body) > MaxPacketSize-6 {
		return Header{}, fmt.Errorf("%s header: %w", id, ErrPacketTooLarge)
	}
	b := make([]byte, len(body))
	copy(b, body)
	return Header{id: id, body: b}, nil
}

// EmptyHeader builds a length-prefixed header with no body. Used to declare
// presence only, e.g. a bare NAME when listing the current folder.
func EmptyHeader(id HeaderID) Header {
	return Header{id: id}
}

// NameHeader builds a NAME header carrying name as null-terminated UTF-16BE.
func NameHeader(name string) Header {
	return Header{id: HeaderName, body: EncodeName(name), name: name}
}

// Uint32Header builds a 4-byte header, such as CONNECTION, from v.
func Uint32Header(id HeaderID, v uint32) Header {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return Header{id: id, body: b}
}

// ID returns the header id.
func (h Header) ID() HeaderID { return h.id }

// Body returns the header body. Callers must not modify it.
func (h Header) Body() []byte { return h.body }

// Name returns the decoded string for unicode headers.
func (h Header) Name() string {
	if h.name != "" || h.id.class() != classUnicode {
		return h.name
	}
	name, _ := DecodeName(h.body)
	return name
}

// Uint32 returns a 4-byte body as a big-endian integer.
func (h Header) Uint32() (uint32, bool) {
	if len(h.body) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(h.body), true
}

// Len returns the encoded size: 1+width for fixed-width headers (5 for
// CONNECTION), otherwise 3+len(body).
func (h Header) Len() int {
	if n := h.id.fixedBodySize(); n >= 0 {
		return 1 + n
	}
	return 3 + len(h.body)
}

// AppendTo appends the wire form of h to dst.
func (h Header) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(h.id))
	if h.id.fixedBodySize() < 0 {
		var l [2]byte
		PutLength(l[:], h.Len())
		dst = append(dst, l[:]...)
	}
	return append(dst, h.body...)
}

// decodeHeader reads one header starting at data[0]. It returns the header and
// the number of bytes consumed.
func decodeHeader(data []byte) (Header, int, error) {
	id := HeaderID(data[0])
	if n := id.fixedBodySize(); n >= 0 {
		if len(data) < 1+n {
			return Header{}, 0, fmt.Errorf("%w: truncated %s header", ErrMalformed, id)
		}
		h, err := NewHeader(id, data[1:1+n])
		return h, 1 + n, err
	}
	if len(data) < 3 {
		return Header{}, 0, fmt.Errorf("%w: truncated %s header prefix", ErrMalformed, id)
	}
	n := Length(data[1:3])
	if n < 3 || n > len(data) {
		return Header{}, 0, fmt.Errorf("%w: %s header length %d with %d bytes left", ErrMalformed, id, n, len(data))
	}
	h, err := NewHeader(id, data[3:n])
	return h, n, err
}
