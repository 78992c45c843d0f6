package obex

import "fmt"

// Opcode is an OBEX request operation code (final bit included).
type Opcode byte

const (
	OpConnect    Opcode = 0x80
	OpDisconnect Opcode = 0x81
	OpPut        Opcode = 0x82
	OpGet        Opcode = 0x83
	OpSetPath    Opcode = 0x85
	OpSession    Opcode = 0x87
	OpAbort      Opcode = 0xFF
)

func (op Opcode) String() string {
	switch op {
	case OpConnect:
		return "CONNECT"
	case OpDisconnect:
		return "DISCONNECT"
	case OpPut:
		return "PUT"
	case OpGet:
		return "GET"
	case OpSetPath:
		return "SET_PATH"
	case OpSession:
		return "SESSION"
	case OpAbort:
		return "ABORT"
	}
	return fmt.Sprintf("OPCODE(0x%02X)", byte(op))
}

// SET_PATH flags.
const (
	FlagDefault          byte = 0x00
	FlagBackup           byte = 0x01
	FlagDontCreateFolder byte = 0x02
)

const (
	// Version is the implemented OBEX protocol version (1.0).
	Version byte = 0x10
	// DefaultConstant is the SET_PATH constants byte.
	DefaultConstant byte = 0x00
	// MaxReceiveSize is the largest packet this client accepts.
	MaxReceiveSize = 0xFFDC
)

// Request is an OBEX request under construction. Headers are kept in
// insertion order, one per id. The wire form is recomputed from the current
// fields whenever Encode is called after a mutation.
type Request struct {
	op        Opcode
	flags     byte
	constants byte
	headers   []Header

	encoded []byte
}

// NewRequest returns an empty request for op with default flags.
func NewRequest(op Opcode) *Request {
	return &Request{op: op, flags: FlagDefault, constants: DefaultConstant}
}

// Opcode returns the operation code.
func (r *Request) Opcode() Opcode { return r.op }

// Flags returns the SET_PATH flags byte.
func (r *Request) Flags() byte { return r.flags }

// AddHeader inserts h, replacing any header with the same id in place.
func (r *Request) AddHeader(h Header) {
	r.encoded = nil
	for i := range r.headers {
		if r.headers[i].id == h.id {
			r.headers[i] = h
			return
		}
	}
	r.headers = append(r.headers, h)
}

// SetFlags sets the SET_PATH flags byte.
func (r *Request) SetFlags(flags byte) {
	r.encoded = nil
	r.flags = flags
}

// SetConstants sets the SET_PATH constants byte.
func (r *Request) SetConstants(c byte) {
	r.encoded = nil
	r.constants = c
}

// Header returns the header with the given id, if present.
func (r *Request) Header(id HeaderID) (Header, bool) {
	for _, h := range r.headers {
		if h.id == id {
			return h, true
		}
	}
	return Header{}, false
}

// Headers returns the headers in wire order.
func (r *Request) Headers() []Header {
	out := make([]Header, len(r.headers))
	copy(out, r.headers)
	return out
}

// fieldsLen is the size of the opcode-specific fields after the length.
func (r *Request) fieldsLen() int {
	switch r.op {
	case OpConnect:
		return 4 // version, flags, max packet size
	case OpSetPath:
		return 2 // flags, constants
	}
	return 0
}

// Len returns the total encoded length of the request.
func (r *Request) Len() int {
	n := 3 + r.fieldsLen()
	for _, h := range r.headers {
		n += h.Len()
	}
	return n
}

// Encode returns the wire form of the request. The returned slice is shared
// with later calls until the request is mutated; callers must not modify it.
func (r *Request) Encode() ([]byte, error) {
	if r.encoded != nil {
		return r.encoded, nil
	}
	n := r.Len()
	if n > MaxPacketSize {
		return nil, fmt.Errorf("%s request of %d bytes: %w", r.op, n, ErrPacketTooLarge)
	}

	buf := make([]byte, 3, n)
	buf[0] = byte(r.op)
	PutLength(buf[1:3], n)

	switch r.op {
	case OpConnect:
		buf = append(buf, Version, FlagDefault, 0, 0)
		PutLength(buf[5:7], MaxReceiveSize)
	case OpSetPath:
		buf = append(buf, r.flags, r.constants)
	}

	for _, h := range r.headers {
		buf = h.AppendTo(buf)
	}

	r.encoded = buf
	return buf, nil
}
