package main

import (
	"github.com/spf13/cobra"

	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/stream"
	"github.com/1ureka/syncpad/internal/util"
)

func eraseCmd(g *globals) *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Clear the tablet's screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := g.load(); err != nil {
				return err
			}
			m := stream.NewManager(stream.HIDRaw(), event.NewBus())
			info, err := pickTablet(m, device)
			if err != nil {
				return err
			}
			if err := m.Connect(cmd.Context(), info); err != nil {
				return err
			}
			defer m.Disconnect()
			if err := m.Erase(); err != nil {
				return err
			}
			util.LogSuccess("erased %s", info.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "", "hidraw device path (default: prompt)")
	return cmd
}
