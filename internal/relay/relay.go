// Package relay shares live ink between two syncpad instances over a WebRTC
// DataChannel, with a one-shot websocket for signaling.
package relay

import (
	"sync"

	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/hid"
	"github.com/1ureka/syncpad/internal/protocol"
	"github.com/1ureka/syncpad/internal/util"
)

// PacketSender is satisfied by *Transport.
type PacketSender interface {
	SendPacket(pkt *protocol.Packet)
}

// Forwarder turns the local stream's events into relay packets.
type Forwarder struct {
	out    PacketSender
	device string

	mu  sync.Mutex
	seq uint32
}

// NewForwarder returns a Forwarder that labels state packets with device.
// Subscribe its Handle method to the bus.
func NewForwarder(out PacketSender, device string) *Forwarder {
	return &Forwarder{out: out, device: device}
}

// Handle is an event.Handler.
func (f *Forwarder) Handle(ev event.Event) {
	if ev.Source != event.SourceStream {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		pkt *protocol.Packet
		err error
	)
	switch ev.Kind {
	case event.Paths:
		if len(ev.Segments) == 0 {
			return
		}
		pkt, err = protocol.NewSegments(f.seq+1, ev.Segments)
	case event.Cleared:
		pkt = protocol.NewClear(f.seq + 1)
	case event.StateChanged:
		pkt, err = protocol.NewState(f.seq+1, protocol.StreamState{
			Connected: ev.NewState == "connected",
			Device:    f.device,
			Width:     hid.MaxX,
			Height:    hid.MaxY,
		})
	default:
		return
	}
	if err != nil {
		util.LogError("relay: %v", err)
		return
	}
	f.seq++
	f.out.SendPacket(pkt)
}

// Viewer republishes received packets on the local bus and optionally
// records them.
type Viewer struct {
	bus *event.Bus
	rec *protocol.Recorder

	mu        sync.Mutex
	lastSeq   uint32
	connected bool
}

// NewViewer returns a Viewer. rec may be nil.
func NewViewer(bus *event.Bus, rec *protocol.Recorder) *Viewer {
	return &Viewer{bus: bus, rec: rec}
}

// HandlePacket matches the signature of Transport.OnPacket.
func (v *Viewer) HandlePacket(pkt *protocol.Packet, err error) {
	if err != nil {
		util.LogWarning("relay: dropping packet: %v", err)
		return
	}

	v.mu.Lock()
	if v.lastSeq != 0 && pkt.Seq != v.lastSeq+1 {
		util.LogWarning("relay: sequence jumped from %d to %d", v.lastSeq, pkt.Seq)
	}
	v.lastSeq = pkt.Seq
	v.mu.Unlock()

	if v.rec != nil {
		if err := v.rec.Write(pkt); err != nil {
			util.LogError("relay: recording failed: %v", err)
		}
	}

	switch pkt.Type {
	case protocol.TypeSegments:
		segs, err := pkt.Segments()
		if err != nil {
			util.LogWarning("relay: %v", err)
			return
		}
		v.bus.Publish(event.Event{Kind: event.Paths, Source: event.SourceRelay, Segments: segs})

	case protocol.TypeClear:
		v.bus.Publish(event.Event{Kind: event.Cleared, Source: event.SourceRelay})

	case protocol.TypeState:
		st, err := pkt.State()
		if err != nil {
			util.LogWarning("relay: %v", err)
			return
		}
		v.mu.Lock()
		was := v.connected
		v.connected = st.Connected
		v.mu.Unlock()
		if was != st.Connected {
			v.bus.Publish(event.StateChange(event.SourceRelay, connectedName(was), connectedName(st.Connected)))
		}
		if st.Connected && st.Device != "" {
			util.LogInfo("relay: host is streaming from %s", st.Device)
		}

	default:
		util.LogDebug("relay: ignoring packet type 0x%02X", pkt.Type)
	}
}

func connectedName(c bool) string {
	if c {
		return "connected"
	}
	return "disconnected"
}
