package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/syncpad/internal/bridge"
	"github.com/1ureka/syncpad/internal/config"
	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/protocol"
	"github.com/1ureka/syncpad/internal/relay"
	"github.com/1ureka/syncpad/internal/stream"
	"github.com/1ureka/syncpad/internal/util"
)

func relayCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Share live ink with a remote viewer over WebRTC",
		Long: `Share live ink with a remote viewer over WebRTC.

The host serves a one-shot websocket for signaling, protected by a PIN.
Once the viewer has connected, ink travels peer to peer over a
DataChannel and the websocket is closed.

Examples:
  syncpad relay host
  syncpad relay view --url ws://192.168.1.20:8787/ws?pin=482913 --record session.ink`,
	}
	cmd.AddCommand(relayHostCmd(g), relayViewCmd(g))
	return cmd
}

func relayHostCmd(g *globals) *cobra.Command {
	var (
		device string
		listen string
		pin    string
	)
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Stream this tablet's ink to a viewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			cfg.Relay.Role = config.RoleHost
			if listen != "" {
				cfg.Relay.Listen = listen
			}
			if pin == "" {
				pin = relay.GeneratePIN(6)
			}
			return runRelayHost(cmd.Context(), cfg, device, pin)
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "", "hidraw device path (default: prompt)")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Signaling listen address (default from config)")
	cmd.Flags().StringVar(&pin, "pin", "", "Signaling PIN (default: random)")
	return cmd
}

func relayViewCmd(g *globals) *cobra.Command {
	var (
		wsURL  string
		record string
		serve  bool
	)
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Receive ink from a relay host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			cfg.Relay.Role = config.RoleViewer
			if wsURL != "" {
				cfg.Relay.URL = wsURL
			}
			if record != "" {
				cfg.Relay.Record = record
			}
			if cfg.Relay.URL == "" {
				return errors.New("missing --url")
			}
			normalized, err := normalizeWSURL(cfg.Relay.URL)
			if err != nil {
				return err
			}
			cfg.Relay.URL = normalized
			return runRelayView(cmd.Context(), cfg, serve)
		},
	}
	cmd.Flags().StringVarP(&wsURL, "url", "u", "", "Host signaling URL including ?pin=")
	cmd.Flags().StringVarP(&record, "record", "r", "", "Write received packets to this recording file")
	cmd.Flags().BoolVar(&serve, "serve", false, "Also push received ink to local UI clients")
	return cmd
}

func runRelayHost(ctx context.Context, cfg config.Config, device, pin string) error {
	bus := event.NewBus()
	m := stream.NewManager(stream.HIDRaw(), bus)
	info, err := pickTablet(m, device)
	if err != nil {
		return err
	}

	tr, err := relay.EstablishAsHost(ctx, relay.HostOptions{
		Listen:     cfg.Relay.Listen,
		PIN:        pin,
		ICEServers: cfg.Relay.ICEServers,
		Listening: func(addr net.Addr) {
			port := addr.(*net.TCPAddr).Port
			pterm.DefaultBox.WithTitle("Relay signaling").Println(
				fmt.Sprintf("Port : %d\nPIN  : %s\nURL  : ws://<this host>:%d/ws?pin=%s", port, pin, port, pin))
			util.LogInfo("waiting for a viewer...")
		},
	})
	if err != nil {
		return fmt.Errorf("failed to establish relay: %w", err)
	}
	defer tr.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fwd := relay.NewForwarder(tr, info.Name)
	bus.Subscribe(fwd.Handle)
	bus.Subscribe(streamPrinter(cancel))

	if err := m.Connect(ctx, info); err != nil {
		return err
	}
	go m.Watch(ctx, cfg.HID.PollInterval)
	util.StartStatsReporter(ctx, cfg.Log.StatsInterval)
	util.LogSuccess("relaying ink from %s", info.Name)

	select {
	case <-ctx.Done():
	case <-tr.Done():
		util.LogWarning("viewer left")
	}
	if m.State() == stream.Connected {
		m.Disconnect()
	}
	return nil
}

func runRelayView(ctx context.Context, cfg config.Config, serve bool) error {
	bus := event.NewBus()

	var rec *protocol.Recorder
	if cfg.Relay.Record != "" {
		f, err := os.Create(cfg.Relay.Record)
		if err != nil {
			return fmt.Errorf("cannot create %s: %w", cfg.Relay.Record, err)
		}
		defer f.Close()
		if rec, err = protocol.NewRecorder(f); err != nil {
			return err
		}
		defer rec.Flush()
		util.LogInfo("recording to %s", cfg.Relay.Record)
	}

	if serve {
		srv := bridge.New(bridge.Options{Bus: bus})
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Server.Listen); err != nil {
				util.LogWarning("bridge stopped: %v", err)
			}
		}()
	}

	bus.Subscribe(func(ev event.Event) {
		switch ev.Kind {
		case event.Paths:
			util.LogDebug("received %d segments", len(ev.Segments))
		case event.Cleared:
			util.LogInfo("host erased the screen")
		case event.StateChanged:
			util.LogInfo("host tablet %s", ev.NewState)
		}
	})

	util.LogInfo("connecting to host...")
	tr, err := relay.EstablishAsViewer(ctx, cfg.Relay.URL, cfg.Relay.ICEServers)
	if err != nil {
		return fmt.Errorf("failed to establish relay: %w", err)
	}
	defer tr.Close()

	tr.OnPacket(relay.NewViewer(bus, rec).HandlePacket)
	util.StartStatsReporter(ctx, cfg.Log.StatsInterval)

	select {
	case <-ctx.Done():
	case <-tr.Done():
		util.LogWarning("host left")
	}
	return nil
}

// normalizeWSURL validates a signaling URL, defaulting the scheme to ws and
// the path to /ws. The pin query is kept.
func normalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid WebSocket URL scheme: %s", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	if u.Query().Get("pin") == "" {
		return "", fmt.Errorf("WebSocket URL lacks ?pin=: %s", raw)
	}
	return u.String(), nil
}
