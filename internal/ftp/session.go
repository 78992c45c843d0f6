// Package ftp implements the client side of the Bluetooth OBEX File Transfer
// Profile: one connection, one request in flight, results delivered as
// events on the bus.
package ftp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/obex"
	"github.com/1ureka/syncpad/internal/util"
)

// ServiceUUID is the Bluetooth service class of OBEX file transfer.
const ServiceUUID = "00001106-0000-1000-8000-00805f9b34fb"

// TargetUUID is sent in the CONNECT TARGET header to select the folder
// browsing service (F9EC7BC4-953C-11D2-984E-525400DC9E09).
var TargetUUID = []byte{
	0xF9, 0xEC, 0x7B, 0xC4, 0x95, 0x3C, 0x11, 0xD2,
	0x98, 0x4E, 0x52, 0x54, 0x00, 0xDC, 0x9E, 0x09,
}

var (
	ErrInvalidState   = errors.New("ftp: operation not allowed in current state")
	ErrRequestPending = errors.New("ftp: another request is pending")
	ErrTimeout        = errors.New("ftp: request timed out")
)

// State is the session's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	}
	return "unknown"
}

// Dialer opens the byte stream to a device's file transfer service.
type Dialer interface {
	Dial(ctx context.Context, address string) (io.ReadWriteCloser, error)
}

// Options tunes a Session.
type Options struct {
	// RequestTimeout abandons a request that gets no response in time.
	// Zero waits forever.
	RequestTimeout time.Duration
}

// Session is an OBEX FTP client session. All methods are safe for concurrent
// use; requests are rejected rather than queued.
type Session struct {
	dialer Dialer
	bus    *event.Bus
	opts   Options

	mu      sync.Mutex
	state   State
	conn    io.ReadWriteCloser
	gen     uint64 // bumped on every transport change so stale readers stand down
	connID  uint32
	pending *pendingRequest
	owed    int // responses still due for requests Disconnect abandoned
	listing bytes.Buffer
	file    bytes.Buffer

	queue []event.Event // published on unlock
}

type pendingRequest struct {
	req   *obex.Request
	name  string
	timer *time.Timer
}

// NewSession returns a disconnected session.
func NewSession(dialer Dialer, bus *event.Bus, opts Options) *Session {
	return &Session{dialer: dialer, bus: bus, opts: opts}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectionID returns the id assigned by the device, or 0.
func (s *Session) ConnectionID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// Pending reports whether a request is awaiting its response.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────────────────────────

// Connect dials address and sends CONNECT. The session becomes Connected
// when the device accepts; watch the bus for the StateChanged event.
func (s *Session) Connect(ctx context.Context, address string) error {
	s.mu.Lock()
	if s.state != Disconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("connect while %s: %w", state, ErrInvalidState)
	}
	s.setStateLocked(Connecting)
	s.unlock()

	conn, err := s.dialer.Dial(ctx, address)

	s.mu.Lock()
	if s.state != Connecting {
		// closed while dialing
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return fmt.Errorf("connect %s: %w", address, ErrInvalidState)
	}
	if err != nil {
		s.setStateLocked(Disconnected)
		s.unlock()
		util.LogWarning("FTP dial %s failed: %v", address, err)
		return fmt.Errorf("dial %s: %w", address, err)
	}

	s.conn = conn
	s.gen++
	go s.readLoop(conn, s.gen)

	req := obex.NewRequest(obex.OpConnect)
	target, _ := obex.NewHeader(obex.HeaderTarget, TargetUUID)
	req.AddHeader(target)
	s.startLocked(req, "")
	s.unlock()

	util.LogInfo("OBEX connecting to %s", address)
	return s.write(req)
}

// Disconnect sends DISCONNECT, abandoning any pending request. The transport
// is closed once the device answers.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state != Connected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("disconnect while %s: %w", state, ErrInvalidState)
	}
	if s.pending != nil {
		s.owed++
	}
	s.dropPendingLocked()
	s.setStateLocked(Disconnecting)

	req := obex.NewRequest(obex.OpDisconnect)
	req.AddHeader(obex.Uint32Header(obex.HeaderConnection, s.connID))
	s.startLocked(req, "")
	s.unlock()

	return s.write(req)
}

// Close drops the transport immediately without a DISCONNECT exchange.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closeLocked()
	s.unlock()
	return nil
}

// ListFolder requests the listing of the current folder.
func (s *Session) ListFolder() error {
	return s.submit(obex.OpGet, "", func(req *obex.Request) {
		req.AddHeader(obex.EmptyHeader(obex.HeaderName))
		typ, _ := obex.NewHeader(obex.HeaderType, obex.FolderListingType)
		req.AddHeader(typ)
	})
}

// ChangeFolder moves into name. ".." moves to the parent and "" to the root.
func (s *Session) ChangeFolder(name string) error {
	return s.submit(obex.OpSetPath, name, func(req *obex.Request) {
		req.SetConstants(obex.DefaultConstant)
		switch name {
		case "..":
			req.SetFlags(obex.FlagBackup | obex.FlagDontCreateFolder)
		case "":
			req.SetFlags(obex.FlagDontCreateFolder)
			req.AddHeader(obex.EmptyHeader(obex.HeaderName))
		default:
			req.SetFlags(obex.FlagDontCreateFolder)
			req.AddHeader(obex.NameHeader(name))
		}
	})
}

// GetFile requests the contents of name in the current folder.
func (s *Session) GetFile(name string) error {
	return s.submit(obex.OpGet, name, func(req *obex.Request) {
		req.AddHeader(obex.NameHeader(name))
	})
}

// DeleteFile deletes name: a PUT with no body.
func (s *Session) DeleteFile(name string) error {
	return s.submit(obex.OpPut, name, func(req *obex.Request) {
		req.AddHeader(obex.NameHeader(name))
	})
}

func (s *Session) submit(op obex.Opcode, name string, build func(*obex.Request)) error {
	s.mu.Lock()
	if s.state != Connected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%s while %s: %w", op, state, ErrInvalidState)
	}
	if s.pending != nil {
		s.mu.Unlock()
		return ErrRequestPending
	}

	req := obex.NewRequest(op)
	req.AddHeader(obex.Uint32Header(obex.HeaderConnection, s.connID))
	build(req)
	s.startLocked(req, name)
	s.unlock()

	return s.write(req)
}

// ──────────────────────────────────────────────────────────────────────────────
// Transport
// ──────────────────────────────────────────────────────────────────────────────

// startLocked records req as the pending request and arms its timer.
func (s *Session) startLocked(req *obex.Request, name string) {
	p := &pendingRequest{req: req, name: name}
	if s.opts.RequestTimeout > 0 {
		p.timer = time.AfterFunc(s.opts.RequestTimeout, func() { s.expire(p) })
	}
	s.pending = p
}

// write sends req outside the lock. On failure the request is dropped.
func (s *Session) write(req *obex.Request) error {
	data, err := req.Encode()
	if err == nil {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			err = io.ErrClosedPipe
		} else {
			_, err = conn.Write(data)
		}
	}
	if err != nil {
		s.sendFailed(req, err)
		return fmt.Errorf("send %s: %w", req.Opcode(), err)
	}
	util.Stats.AddObexSent(len(data))
	util.LogDebug("OBEX → %s (%d bytes)", req.Opcode(), len(data))
	return nil
}

func (s *Session) sendFailed(req *obex.Request, err error) {
	s.mu.Lock()
	defer s.unlock()
	if s.pending == nil || s.pending.req != req {
		return
	}
	util.LogWarning("OBEX %s send failed: %v", req.Opcode(), err)
	s.dropPendingLocked()
	if isSessionOp(req.Opcode()) {
		s.closeLocked()
	}
}

func (s *Session) readLoop(conn io.Reader, gen uint64) {
	for {
		pkt, err := obex.ReadPacket(conn)
		if err != nil {
			s.transportFailed(gen, err)
			return
		}
		util.Stats.AddObexRecv(len(pkt))
		s.handle(gen, pkt)
	}
}

func (s *Session) transportFailed(gen uint64, err error) {
	s.mu.Lock()
	defer s.unlock()
	if gen != s.gen {
		return
	}
	if !errors.Is(err, io.EOF) {
		util.LogWarning("OBEX transport error: %v", err)
	} else {
		util.LogInfo("OBEX transport closed by device")
	}
	s.closeLocked()
}

func (s *Session) expire(p *pendingRequest) {
	s.mu.Lock()
	defer s.unlock()
	if s.pending != p {
		return
	}
	op := p.req.Opcode()
	util.LogWarning("OBEX %s timed out after %s", op, s.opts.RequestTimeout)
	s.dropPendingLocked()
	s.queue = append(s.queue, event.Failure(event.SourceFTP, fmt.Errorf("%s: %w", op, ErrTimeout)))
	if isSessionOp(op) {
		s.closeLocked()
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Response handling
// ──────────────────────────────────────────────────────────────────────────────

func (s *Session) handle(gen uint64, pkt []byte) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	resend := s.handleLocked(pkt)
	s.unlock()

	if resend != nil {
		s.write(resend)
	}
}

// handleLocked processes one response and returns a request to re-send for
// a continued GET.
func (s *Session) handleLocked(pkt []byte) *obex.Request {
	if s.owed > 0 {
		s.owed--
		util.LogDebug("OBEX dropping response 0x%02X to an abandoned request", pkt[0])
		return nil
	}
	p := s.pending
	if p == nil {
		util.LogWarning("OBEX response 0x%02X with no pending request", pkt[0])
		s.protocolErrorLocked(fmt.Errorf("unsolicited response 0x%02X", pkt[0]))
		return nil
	}
	s.pending = nil
	if p.timer != nil {
		p.timer.Stop()
	}

	op := p.req.Opcode()
	var (
		resp *obex.Response
		err  error
	)
	if op == obex.OpConnect {
		resp, err = obex.ParseConnectResponse(pkt)
	} else {
		resp, err = obex.ParseResponse(pkt)
	}
	if err != nil {
		util.LogWarning("OBEX %s response: %v", op, err)
		s.resetBuffers()
		s.protocolErrorLocked(err)
		if isSessionOp(op) {
			s.closeLocked()
		}
		return nil
	}
	util.LogDebug("OBEX ← %s for %s (%d bytes)", resp.Code, op, resp.Length)

	switch resp.Code {
	case obex.Success:
		s.succeededLocked(p, resp)
		return nil

	case obex.Continue:
		if op == obex.OpGet {
			body, ok := resp.Header(obex.HeaderBody)
			if !ok {
				s.resetBuffers()
				s.protocolErrorLocked(fmt.Errorf("CONTINUE without BODY for GET %q", p.name))
				return nil
			}
			s.accumulator(p.req).Write(body.Body())
			s.pending = p
			if p.timer != nil {
				p.timer.Reset(s.opts.RequestTimeout)
			}
			return p.req
		}
	}

	util.LogWarning("OBEX %s failed: %s", op, resp.Code)
	s.resetBuffers()
	s.queue = append(s.queue, event.Event{
		Kind:   event.RequestFailed,
		Source: event.SourceFTP,
		Name:   p.name,
		Code:   resp.Code,
		Err:    fmt.Errorf("%s %q: %s", op, p.name, resp.Code),
	})
	if isSessionOp(op) {
		s.closeLocked()
	}
	return nil
}

func (s *Session) succeededLocked(p *pendingRequest, resp *obex.Response) {
	switch p.req.Opcode() {
	case obex.OpConnect:
		h, ok := resp.Header(obex.HeaderConnection)
		id, _ := h.Uint32()
		if !ok {
			util.LogWarning("OBEX CONNECT accepted without a connection id")
			s.protocolErrorLocked(errors.New("CONNECT response without CONNECTION header"))
			s.closeLocked()
			return
		}
		s.connID = id
		s.setStateLocked(Connected)
		util.LogSuccess("OBEX connected (id %d, peer max packet %d)", id, resp.MaxPacketSize)

	case obex.OpDisconnect:
		s.closeLocked()

	case obex.OpSetPath:
		s.queue = append(s.queue, event.Event{Kind: event.ChangedFolder, Source: event.SourceFTP, Name: p.name})

	case obex.OpPut:
		s.queue = append(s.queue, event.Event{Kind: event.DeletedFile, Source: event.SourceFTP, Name: p.name})

	case obex.OpGet:
		eob, ok := resp.Header(obex.HeaderEndOfBody)
		if !ok {
			s.resetBuffers()
			s.protocolErrorLocked(fmt.Errorf("SUCCESS without END_OF_BODY for GET %q", p.name))
			return
		}
		buf := s.accumulator(p.req)
		buf.Write(eob.Body())
		data := bytes.Clone(buf.Bytes())
		s.resetBuffers()
		util.Stats.AddFile()

		if isListing(p.req) {
			listing, err := obex.ParseFolderListing(data)
			if err != nil {
				s.protocolErrorLocked(err)
				return
			}
			s.queue = append(s.queue, event.Event{Kind: event.ListedFolder, Source: event.SourceFTP, Listing: listing})
			return
		}
		s.queue = append(s.queue, event.Event{Kind: event.GotFile, Source: event.SourceFTP, Name: p.name, File: data})
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers (mu held)
// ──────────────────────────────────────────────────────────────────────────────

func isSessionOp(op obex.Opcode) bool {
	return op == obex.OpConnect || op == obex.OpDisconnect
}

func isListing(req *obex.Request) bool {
	_, ok := req.Header(obex.HeaderType)
	return ok
}

func (s *Session) accumulator(req *obex.Request) *bytes.Buffer {
	if isListing(req) {
		return &s.listing
	}
	return &s.file
}

func (s *Session) resetBuffers() {
	s.listing.Reset()
	s.file.Reset()
}

func (s *Session) dropPendingLocked() {
	if s.pending != nil && s.pending.timer != nil {
		s.pending.timer.Stop()
	}
	s.pending = nil
	s.resetBuffers()
}

func (s *Session) protocolErrorLocked(err error) {
	s.queue = append(s.queue, event.Failure(event.SourceFTP, err))
}

// closeLocked tears down the transport and everything in flight.
func (s *Session) closeLocked() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.gen++
	s.connID = 0
	s.owed = 0
	s.dropPendingLocked()
	s.setStateLocked(Disconnected)
}

func (s *Session) setStateLocked(to State) {
	if s.state == to {
		return
	}
	from := s.state
	s.state = to
	util.LogDebug("FTP session %s → %s", from, to)
	s.queue = append(s.queue, event.StateChange(event.SourceFTP, from.String(), to.String()))
}

// unlock releases mu and then publishes the queued events, so handlers may
// call back into the session.
func (s *Session) unlock() {
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, ev := range queue {
		s.bus.Publish(ev)
	}
}
