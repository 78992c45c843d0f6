// Syncpad talks to a Sync e-writer tablet: it browses and downloads the
// tablet's files over Bluetooth OBEX, streams live pen input over HID, and
// can bridge both to a local UI or share the ink with a remote viewer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/syncpad/internal/config"
	"github.com/1ureka/syncpad/internal/util"
)

var version = "dev"

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	debug      bool
	adapter    string
}

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := &globals{}
	rootCmd := &cobra.Command{
		Use:   "syncpad",
		Short: "Files and live ink from a Sync e-writer tablet",
		Long: `Syncpad talks to a Sync e-writer tablet.

Files are browsed and downloaded over Bluetooth (OBEX file transfer).
Live pen input is read over USB or Bluetooth HID and turned into
smoothed ink segments, which can be recorded, served to a local UI
or relayed to a remote viewer over WebRTC.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.debug {
				util.EnableDebug()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", config.DefaultPath(), "Config file")
	rootCmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&g.adapter, "adapter", "", "Bluetooth adapter (default from config)")

	rootCmd.AddCommand(
		devicesCmd(g),
		filesCmd(g),
		streamCmd(g),
		eraseCmd(g),
		serveCmd(g),
		relayCmd(g),
		versionCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// load reads the config file and applies the persistent flag overrides.
func (g *globals) load() (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	if g.adapter != "" {
		cfg.Bluetooth.Adapter = g.adapter
	}
	if g.debug {
		cfg.Log.Debug = true
	}
	if cfg.Path != "" {
		util.LogDebug("config loaded from %s", cfg.Path)
	}
	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			pterm.Info.Println(fmt.Sprintf("Syncpad v%s", version))
		},
	}
}
