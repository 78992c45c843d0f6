package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/1ureka/syncpad/internal/config"
	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/hid"
	"github.com/1ureka/syncpad/internal/protocol"
	"github.com/1ureka/syncpad/internal/relay"
	"github.com/1ureka/syncpad/internal/stream"
	"github.com/1ureka/syncpad/internal/stroke"
	"github.com/1ureka/syncpad/internal/util"
)

func streamCmd(g *globals) *cobra.Command {
	var (
		device string
		record string
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream live pen input from a tablet",
		Long: `Stream live pen input from a tablet attached over USB or Bluetooth.

The tablet is switched to capture mode and every pen report is turned
into smoothed ink segments. With --record the segments are written to a
recording file that "relay view --record" also produces.

Examples:
  syncpad stream
  syncpad stream --device /dev/hidraw3 --record sketch.ink`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			return runStream(cmd.Context(), cfg, device, record)
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "hidraw device path (default: prompt)")
	cmd.Flags().StringVarP(&record, "record", "r", "", "Write segments to this recording file")

	return cmd
}

// recordSink adapts a Recorder to relay.PacketSender so a Forwarder can
// write straight to disk.
type recordSink struct{ rec *protocol.Recorder }

func (s recordSink) SendPacket(pkt *protocol.Packet) {
	if err := s.rec.Write(pkt); err != nil {
		util.LogError("recording failed: %v", err)
	}
}

func runStream(ctx context.Context, cfg config.Config, device, record string) error {
	bus := event.NewBus()
	m := stream.NewManager(stream.HIDRaw(), bus)

	info, err := pickTablet(m, device)
	if err != nil {
		return err
	}

	if record != "" {
		f, err := os.Create(record)
		if err != nil {
			return fmt.Errorf("cannot create %s: %w", record, err)
		}
		defer f.Close()
		rec, err := protocol.NewRecorder(f)
		if err != nil {
			return err
		}
		defer rec.Flush()
		fwd := relay.NewForwarder(recordSink{rec}, info.Name)
		defer bus.Subscribe(fwd.Handle)()
		util.LogInfo("recording to %s", record)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer bus.Subscribe(streamPrinter(cancel))()

	if err := m.Connect(ctx, info); err != nil {
		return err
	}
	go m.Watch(ctx, cfg.HID.PollInterval)
	util.StartStatsReporter(ctx, cfg.Log.StatsInterval)
	util.LogInfo("press Ctrl+C to stop")

	<-ctx.Done()
	if m.State() == stream.Connected {
		if err := m.SetMode(hid.ModeDigitizer); err != nil {
			util.LogDebug("restoring digitizer mode: %v", err)
		}
		m.Disconnect()
	}
	return nil
}

// streamPrinter logs stream activity and calls stop when the tablet goes
// away.
func streamPrinter(stop func()) event.Handler {
	penDown := false
	return func(ev event.Event) {
		if ev.Source != event.SourceStream {
			return
		}
		switch ev.Kind {
		case event.CaptureReport:
			down := stroke.IsPenDown(ev.Report.Flags)
			if down == penDown {
				return
			}
			penDown = down
			if down {
				util.LogDebug("pen down at (%d, %d)", ev.Report.X, ev.Report.Y)
			} else {
				util.LogDebug("pen up at (%d, %d)", ev.Report.X, ev.Report.Y)
			}
		case event.Paths:
			util.LogDebug("%d segments", len(ev.Segments))
		case event.Cleared:
			util.LogInfo("screen erased")
		case event.StateChanged:
			if ev.NewState == stream.Disconnected.String() {
				util.LogWarning("tablet disconnected")
				stop()
			}
		}
	}
}
