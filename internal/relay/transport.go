package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/syncpad/internal/protocol"
	"github.com/1ureka/syncpad/internal/util"
)

// maxPendingPackets bounds what is kept before OnPacket is registered.
const maxPendingPackets = 1024

// Transport wraps one PeerConnection and its ink DataChannel.
//
// Its lifecycle follows the DataChannel and the context passed at
// construction. The PeerConnection state is recorded for display only.
type Transport struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	sender     *sender
	openSignal chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pcState webrtc.PeerConnectionState

	recvMu  sync.Mutex // held across delivery so replay keeps order
	handler func(*protocol.Packet, error)
	pending [][]byte
}

// NewTransport creates a Transport with a new PeerConnection and the
// pre-negotiated ink channel. Signaling is done by the caller.
func NewTransport(ctx context.Context, iceServers []string) (*Transport, error) {
	pc, err := newPeerConnection(iceServers)
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &Transport{
		pc:         pc,
		dc:         dc,
		openSignal: make(chan struct{}),
		ctx:        tCtx,
		cancel:     tCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(t.openSignal) })
	})

	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		tCancel()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		util.Stats.AddRelayRecv(len(msg.Data))
		t.deliver(msg.Data)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		t.mu.Lock()
		t.pcState = state
		t.mu.Unlock()
		if state == webrtc.PeerConnectionStateFailed {
			tCancel()
		}
	})

	t.sender = newSender(tCtx, dc, t.openSignal)

	return t, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Lifecycle
// ───────────────────────────────────────────────────────────────────────────

// Ready is closed once the DataChannel is open.
func (t *Transport) Ready() <-chan struct{} {
	return t.openSignal
}

// Done is closed when the Transport shuts down.
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Close shuts down the DataChannel and PeerConnection.
func (t *Transport) Close() error {
	t.cancel()
	return errors.Join(t.dc.Close(), t.pc.Close())
}

// ConnectionState returns the last observed PeerConnection state.
func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pcState
}

// ───────────────────────────────────────────────────────────────────────────
// Signaling
// ───────────────────────────────────────────────────────────────────────────

func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers fn for every gathered local candidate. A nil
// candidate ends gathering.
func (t *Transport) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	t.pc.OnICECandidate(fn)
}

func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// ───────────────────────────────────────────────────────────────────────────
// Data
// ───────────────────────────────────────────────────────────────────────────

// SendPacket enqueues pkt for transmission.
func (t *Transport) SendPacket(pkt *protocol.Packet) {
	t.sender.send(t.ctx, pkt)
}

// OnPacket registers fn for every inbound message, decoded. Messages that
// arrived before registration are replayed first.
func (t *Transport) OnPacket(fn func(*protocol.Packet, error)) {
	t.recvMu.Lock()
	defer t.recvMu.Unlock()
	for _, data := range t.pending {
		fn(protocol.Decode(data))
	}
	t.pending = nil
	t.handler = fn
}

func (t *Transport) deliver(data []byte) {
	t.recvMu.Lock()
	defer t.recvMu.Unlock()
	if t.handler == nil {
		if len(t.pending) < maxPendingPackets {
			t.pending = append(t.pending, append([]byte(nil), data...))
		}
		return
	}
	t.handler(protocol.Decode(data))
}
