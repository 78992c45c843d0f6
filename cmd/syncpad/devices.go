package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/syncpad/internal/bluez"
	"github.com/1ureka/syncpad/internal/hid"
	"github.com/1ureka/syncpad/internal/util"
)

func devicesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached and paired tablets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}

			data := pterm.TableData{{"Transport", "Name", "ID", "Status"}}

			attached, err := hid.Enumerate()
			if err != nil {
				util.LogWarning("HID enumeration failed: %v", err)
			}
			for _, d := range attached {
				transport := "usb hid"
				if d.Bluetooth {
					transport = "bluetooth hid"
				}
				data = append(data, []string{transport, d.Name, d.Path, fmt.Sprintf("%04x:%04x", d.VendorID, d.ProductID)})
			}

			bt, err := bluez.Dial(cfg.Bluetooth.Adapter)
			if err != nil {
				util.LogWarning("Bluetooth unavailable: %v", err)
			} else {
				defer bt.Close()
				if powered, err := bt.AdapterPowered(); err == nil && !powered {
					util.LogWarning("adapter %s is powered off", cfg.Bluetooth.Adapter)
				}
				tablets, err := bt.Tablets()
				if err != nil {
					return err
				}
				for _, d := range tablets {
					status := "paired"
					switch {
					case d.Connected:
						status = "connected"
					case !d.Paired:
						status = "not paired"
					}
					data = append(data, []string{"bluetooth ftp", d.Name, d.Address, status})
				}
			}

			if len(data) == 1 {
				util.LogInfo("no tablets found")
				return nil
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}
}
