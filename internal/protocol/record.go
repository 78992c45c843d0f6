package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// recordMagic opens every recording file.
var recordMagic = []byte("SYNCPAD\x01")

// maxRecordSize bounds a single recorded packet.
const maxRecordSize = 1 << 20

// Recorder appends packets to a stream as length-prefixed frames. Safe for
// concurrent use.
type Recorder struct {
	mu  sync.Mutex
	w   *bufio.Writer
	err error
}

// NewRecorder writes the file header to w and returns a recorder.
func NewRecorder(w io.Writer) (*Recorder, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(recordMagic); err != nil {
		return nil, err
	}
	return &Recorder{w: bw}, nil
}

// Write records one packet. After the first error every call fails.
func (r *Recorder) Write(pkt *Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	data := Encode(pkt)
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(data)))
	if _, err := r.w.Write(n[:]); err != nil {
		r.err = err
		return err
	}
	if _, err := r.w.Write(data); err != nil {
		r.err = err
		return err
	}
	return nil
}

// Flush pushes buffered frames to the underlying writer.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.err = r.w.Flush()
	return r.err
}

// ReadRecording decodes every packet in a recording.
func ReadRecording(rd io.Reader) ([]*Packet, error) {
	br := bufio.NewReader(rd)
	magic := make([]byte, len(recordMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("read recording header: %w", err)
	}
	if string(magic) != string(recordMagic) {
		return nil, errors.New("not a syncpad recording")
	}

	var out []*Packet
	for {
		var n [4]byte
		if _, err := io.ReadFull(br, n[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("read frame length: %w", err)
		}
		size := binary.BigEndian.Uint32(n[:])
		if size > maxRecordSize {
			return out, fmt.Errorf("frame of %d bytes exceeds limit", size)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(br, data); err != nil {
			return out, fmt.Errorf("read frame: %w", err)
		}
		pkt, err := Decode(data)
		if err != nil {
			return out, err
		}
		out = append(out, pkt)
	}
}
