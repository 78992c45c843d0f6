package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/1ureka/syncpad/internal/bluez"
	"github.com/1ureka/syncpad/internal/bridge"
	"github.com/1ureka/syncpad/internal/config"
	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/ftp"
	"github.com/1ureka/syncpad/internal/metrics"
	"github.com/1ureka/syncpad/internal/stream"
	"github.com/1ureka/syncpad/internal/util"
)

func serveCmd(g *globals) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tablet to a local UI over a websocket",
		Long: `Serve the tablet to a local UI.

Every event (device changes, state changes, folder listings, files,
live ink) is pushed as JSON to clients of /ws, which may send commands
back. Prometheus metrics are served at /metrics.

Examples:
  syncpad serve
  syncpad serve --listen 127.0.0.1:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "HTTP listen address (default from config)")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	bus := event.NewBus()
	m := metrics.New()
	bus.Subscribe(m.Handle)

	pen := stream.NewManager(stream.HIDRaw(), bus)
	go pen.Watch(ctx, cfg.HID.PollInterval)

	opts := bridge.Options{
		Bus:            bus,
		Pen:            pen,
		Metrics:        m.Handler(),
		DefaultAddress: cfg.Bluetooth.Address,
	}

	bt, err := bluez.Dial(cfg.Bluetooth.Adapter)
	if err != nil {
		util.LogWarning("file transfer disabled: %v", err)
	} else {
		defer bt.Close()
		dialer := bluez.NewProfileDialer(bt)
		if err := dialer.Register(); err != nil {
			util.LogWarning("file transfer disabled: %v", err)
		} else {
			defer dialer.Unregister()
			session := ftp.NewSession(dialer, bus, ftp.Options{RequestTimeout: cfg.Bluetooth.RequestTimeout})
			defer session.Close()
			opts.Files = session

			watcher := bluez.NewWatcher(bt, bus)
			opts.Bluetooth = func() []event.Device { return bluez.ToEventDevices(watcher.Devices()) }
			go func() {
				if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					util.LogWarning("Bluetooth watcher stopped: %v", err)
				}
			}()
		}
	}

	util.StartStatsReporter(ctx, cfg.Log.StatsInterval)

	srv := bridge.New(opts)
	err = srv.ListenAndServe(ctx, cfg.Server.Listen)
	if pen.State() == stream.Connected {
		pen.Disconnect()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
