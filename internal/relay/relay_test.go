package relay

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/protocol"
	"github.com/1ureka/syncpad/internal/stroke"
)

type packetLog struct {
	mu   sync.Mutex
	pkts []*protocol.Packet
}

func (l *packetLog) SendPacket(pkt *protocol.Packet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pkts = append(l.pkts, pkt)
}

// loopback feeds forwarded packets straight into a viewer through the wire
// encoding.
type loopback struct{ v *Viewer }

func (l loopback) SendPacket(pkt *protocol.Packet) {
	l.v.HandlePacket(protocol.Decode(protocol.Encode(pkt)))
}

var sampleSegments = []stroke.Segment{
	{X1: 0, Y1: 0, X2: 0, Y2: 20, LineWidth: 50.25},
	{X1: 0, Y1: 20, X2: 0, Y2: 42, LineWidth: 49.5},
}

// TestForwarderPackets verifies that stream events become numbered packets
// and that everything else is ignored.
func TestForwarderPackets(t *testing.T) {
	out := &packetLog{}
	f := NewForwarder(out, "Sync")

	f.Handle(event.StateChange(event.SourceStream, "disconnected", "connected"))
	f.Handle(event.Event{Kind: event.Paths, Source: event.SourceStream, Segments: sampleSegments})
	f.Handle(event.Event{Kind: event.Paths, Source: event.SourceStream})
	f.Handle(event.Event{Kind: event.CaptureReport, Source: event.SourceStream})
	f.Handle(event.Event{Kind: event.Cleared, Source: event.SourceStream})
	f.Handle(event.StateChange(event.SourceFTP, "disconnected", "connected"))
	f.Handle(event.StateChange(event.SourceStream, "connected", "disconnected"))

	wantTypes := []uint8{protocol.TypeState, protocol.TypeSegments, protocol.TypeClear, protocol.TypeState}
	if len(out.pkts) != len(wantTypes) {
		t.Fatalf("sent %d packets, want %d", len(out.pkts), len(wantTypes))
	}
	for i, pkt := range out.pkts {
		if pkt.Type != wantTypes[i] {
			t.Errorf("packet %d type = %d, want %d", i, pkt.Type, wantTypes[i])
		}
		if pkt.Seq != uint32(i+1) {
			t.Errorf("packet %d seq = %d, want %d", i, pkt.Seq, i+1)
		}
	}

	st, err := out.pkts[0].State()
	if err != nil {
		t.Fatal(err)
	}
	if !st.Connected || st.Device != "Sync" || st.Width == 0 || st.Height == 0 {
		t.Errorf("state = %+v", st)
	}
	if st, _ := out.pkts[3].State(); st.Connected {
		t.Error("final state still connected")
	}
}

// TestViewerRepublishesAndRecords verifies the viewer side end to end,
// minus the DataChannel.
func TestViewerRepublishesAndRecords(t *testing.T) {
	bus := event.NewBus()
	var got []event.Event
	bus.Subscribe(func(ev event.Event) { got = append(got, ev) })

	var file bytes.Buffer
	rec, err := protocol.NewRecorder(&file)
	if err != nil {
		t.Fatal(err)
	}
	v := NewViewer(bus, rec)
	f := NewForwarder(loopback{v}, "Sync")

	f.Handle(event.StateChange(event.SourceStream, "connecting", "connected"))
	f.Handle(event.Event{Kind: event.Paths, Source: event.SourceStream, Segments: sampleSegments})
	f.Handle(event.Event{Kind: event.Cleared, Source: event.SourceStream})
	v.HandlePacket(nil, errors.New("packet too short"))

	if len(got) != 3 {
		t.Fatalf("published %d events, want 3", len(got))
	}
	if got[0].Kind != event.StateChanged || got[0].Source != event.SourceRelay || got[0].NewState != "connected" {
		t.Errorf("event 0 = %+v", got[0])
	}
	if got[1].Kind != event.Paths || len(got[1].Segments) != 2 || got[1].Segments[1] != sampleSegments[1] {
		t.Errorf("event 1 = %+v", got[1])
	}
	if got[2].Kind != event.Cleared {
		t.Errorf("event 2 = %+v", got[2])
	}

	if err := rec.Flush(); err != nil {
		t.Fatal(err)
	}
	recorded, err := protocol.ReadRecording(&file)
	if err != nil {
		t.Fatalf("ReadRecording failed: %v", err)
	}
	if len(recorded) != 3 {
		t.Fatalf("recorded %d packets, want 3", len(recorded))
	}
}

func TestViewerIgnoresRepeatedState(t *testing.T) {
	bus := event.NewBus()
	count := 0
	bus.Subscribe(func(ev event.Event) { count++ })
	v := NewViewer(bus, nil)

	for seq := uint32(1); seq <= 3; seq++ {
		pkt, _ := protocol.NewState(seq, protocol.StreamState{Connected: false})
		v.HandlePacket(pkt, nil)
	}
	if count != 0 {
		t.Errorf("published %d events for an unchanged state", count)
	}
}

// TestSignalingServerPIN verifies that only the first viewer with the right
// PIN gets the websocket.
func TestSignalingServerPIN(t *testing.T) {
	srv := newServer("4821")
	addr, err := srv.start("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer srv.close()
	base := "ws://" + addr.String() + "/ws?pin="

	_, resp, err := websocket.DefaultDialer.Dial(base+"0000", nil)
	if err == nil {
		t.Fatal("wrong PIN accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong PIN response = %v", resp)
	}

	first, _, err := websocket.DefaultDialer.Dial(base+"4821", nil)
	if err != nil {
		t.Fatalf("dial with PIN failed: %v", err)
	}
	defer first.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	hostSide, err := srv.waitForClient(ctx)
	if err != nil {
		t.Fatalf("waitForClient failed: %v", err)
	}
	defer hostSide.Close()

	second, _, err := websocket.DefaultDialer.Dial(base+"4821", nil)
	if err != nil {
		t.Fatalf("second dial failed: %v", err)
	}
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = second.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("second viewer read error = %v", err)
	}

	// the accepted pair still talks
	if err := hostSide.WriteJSON(message{Type: msgTypeOffer, SDP: "v=0"}); err != nil {
		t.Fatal(err)
	}
	var msg message
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := first.ReadJSON(&msg); err != nil || msg.Type != msgTypeOffer {
		t.Fatalf("read %+v, %v", msg, err)
	}
}

func TestWaitForClientCancelled(t *testing.T) {
	srv := newServer("1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := srv.waitForClient(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestGeneratePIN(t *testing.T) {
	for _, n := range []int{1, 4, 8} {
		pin := GeneratePIN(n)
		if len(pin) != n || strings.Trim(pin, "0123456789") != "" {
			t.Errorf("GeneratePIN(%d) = %q", n, pin)
		}
	}
}
