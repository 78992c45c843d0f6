package relay

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/syncpad/internal/protocol"
	"github.com/1ureka/syncpad/internal/util"
)

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 256        // outgoing packet channel capacity
)

// sender serializes all writes to the DataChannel behind an open gate and
// water-mark backpressure.
type sender struct {
	inbox       chan *protocol.Packet
	drainSignal chan struct{}
}

// newSender wires the backpressure callbacks on dc and starts the loop,
// which exits when ctx is cancelled.
func newSender(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) *sender {
	s := &sender{
		inbox:       make(chan *protocol.Packet, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	go s.loop(ctx, dc, openSignal)

	return s
}

func (s *sender) loop(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) {
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	for {
		select {
		case pkt := <-s.inbox:
			if dc.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-ctx.Done():
					return
				}
			}

			data := protocol.Encode(pkt)
			if err := dc.Send(data); err != nil {
				util.LogError("failed to send packet (seq=%d, type=%d): %v", pkt.Seq, pkt.Type, err)
				return
			}

			util.Stats.AddRelaySent(len(data))
		case <-ctx.Done():
			return
		}
	}
}

// send enqueues a packet. It blocks while the buffer is full and returns
// silently once ctx is cancelled.
func (s *sender) send(ctx context.Context, pkt *protocol.Packet) {
	select {
	case s.inbox <- pkt:
	case <-ctx.Done():
	}
}
