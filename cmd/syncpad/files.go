package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/syncpad/internal/bluez"
	"github.com/1ureka/syncpad/internal/config"
	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/ftp"
	"github.com/1ureka/syncpad/internal/obex"
	"github.com/1ureka/syncpad/internal/util"
)

var errConnectionLost = errors.New("connection to the tablet was lost")

func filesCmd(g *globals) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "files",
		Short: "Browse, download and delete the tablet's files over Bluetooth",
		Long: `Browse, download and delete the tablet's files over Bluetooth.

Paths are relative to the tablet's root folder and use "/" separators.

Examples:
  syncpad files ls
  syncpad files ls Documents/2024
  syncpad files get Documents/notes.pdf -o ~/Downloads
  syncpad files rm Documents/old.pdf`,
	}
	cmd.PersistentFlags().StringVarP(&address, "address", "a", "", "Tablet Bluetooth address (default from config or a prompt)")

	run := func(fn func(ctx context.Context, c *fileClient, cfg config.Config, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := openFiles(ctx, cfg, address)
			if err != nil {
				return err
			}
			defer c.close()
			return fn(ctx, c, cfg, args)
		}
	}

	var outDir string
	getCmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Download a file",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, c *fileClient, cfg config.Config, args []string) error {
			dir := outDir
			if dir == "" {
				dir = cfg.Bluetooth.DownloadDir
			}
			return runGet(ctx, c, args[0], dir)
		}),
	}
	getCmd.Flags().StringVarP(&outDir, "output", "o", "", "Download directory (default from config)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "ls [path]",
			Short: "List a folder",
			Args:  cobra.MaximumNArgs(1),
			RunE: run(func(ctx context.Context, c *fileClient, cfg config.Config, args []string) error {
				path := ""
				if len(args) == 1 {
					path = args[0]
				}
				if err := c.enter(ctx, splitPath(path)); err != nil {
					return err
				}
				return runList(ctx, c)
			}),
		},
		&cobra.Command{
			Use:   "cd <path>",
			Short: "Check that a folder can be entered",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, c *fileClient, cfg config.Config, args []string) error {
				if err := c.enter(ctx, splitPath(args[0])); err != nil {
					return err
				}
				util.LogSuccess("entered /%s", strings.Join(splitPath(args[0]), "/"))
				return nil
			}),
		},
		getCmd,
		&cobra.Command{
			Use:   "rm <path>",
			Short: "Delete a file",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, c *fileClient, cfg config.Config, args []string) error {
				parts := splitPath(args[0])
				if len(parts) == 0 {
					return errors.New("no file given")
				}
				if err := c.enter(ctx, parts[:len(parts)-1]); err != nil {
					return err
				}
				name := parts[len(parts)-1]
				if _, err := c.do(ctx, func() error { return c.session.DeleteFile(name) }, event.DeletedFile); err != nil {
					return err
				}
				util.LogSuccess("deleted %s", args[0])
				return nil
			}),
		},
	)
	return cmd
}

func runList(ctx context.Context, c *fileClient) error {
	ev, err := c.do(ctx, c.session.ListFolder, event.ListedFolder)
	if err != nil {
		return err
	}
	data := pterm.TableData{{"Name", "Size", "Modified"}}
	for _, f := range ev.Listing.Folders {
		data = append(data, []string{f.Name + "/", "", f.Modified})
	}
	for _, f := range ev.Listing.Files {
		data = append(data, []string{f.Name, strconv.FormatInt(f.Size, 10), f.Modified})
	}
	if len(data) == 1 {
		util.LogInfo("folder is empty")
		return nil
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runGet(ctx context.Context, c *fileClient, path, dir string) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return errors.New("no file given")
	}
	if err := c.enter(ctx, parts[:len(parts)-1]); err != nil {
		return err
	}
	name := parts[len(parts)-1]

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Downloading %s", name))
	ev, err := c.do(ctx, func() error { return c.session.GetFile(name) }, event.GotFile)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("Downloaded %s (%d bytes)", name, len(ev.File)))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	out := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(out, ev.File, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", out, err)
	}
	util.LogInfo("saved to %s", out)
	return nil
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}

// ───────────────────────────────────────────────────────────────────────────
// Synchronous file client
// ───────────────────────────────────────────────────────────────────────────

// fileClient drives an ftp.Session one request at a time, waiting on the
// bus for each outcome.
type fileClient struct {
	bus     *event.Bus
	session *ftp.Session
	bt      *bluez.Client
	dialer  *bluez.ProfileDialer
}

func openFiles(ctx context.Context, cfg config.Config, address string) (*fileClient, error) {
	bt, err := bluez.Dial(cfg.Bluetooth.Adapter)
	if err != nil {
		return nil, err
	}
	address, err = pickAddress(bt, address, cfg.Bluetooth.Address)
	if err != nil {
		bt.Close()
		return nil, err
	}

	dialer := bluez.NewProfileDialer(bt)
	if err := dialer.Register(); err != nil {
		bt.Close()
		return nil, err
	}

	bus := event.NewBus()
	c := &fileClient{
		bus:     bus,
		session: ftp.NewSession(dialer, bus, ftp.Options{RequestTimeout: cfg.Bluetooth.RequestTimeout}),
		bt:      bt,
		dialer:  dialer,
	}

	wait := bus.Expect(func(ev event.Event) bool {
		return ev.Source == event.SourceFTP && (ev.Kind == event.RequestFailed || ev.Kind == event.ProtocolError ||
			(ev.Kind == event.StateChanged && ev.NewState != ftp.Connecting.String()))
	})
	if err := c.session.Connect(ctx, address); err != nil {
		c.release()
		return nil, err
	}
	ev, err := wait(ctx)
	if err != nil {
		c.close()
		return nil, err
	}
	if ev.Kind != event.StateChanged || ev.NewState != ftp.Connected.String() {
		c.close()
		return nil, fmt.Errorf("tablet refused the connection: %w", outcome(ev))
	}
	return c, nil
}

// do submits a request and waits for the event of kind want, a failure or
// the end of the session.
func (c *fileClient) do(ctx context.Context, submit func() error, want event.Kind) (event.Event, error) {
	wait := c.bus.Expect(func(ev event.Event) bool {
		if ev.Source != event.SourceFTP {
			return false
		}
		switch ev.Kind {
		case want, event.RequestFailed, event.ProtocolError:
			return true
		case event.StateChanged:
			return ev.NewState == ftp.Disconnected.String()
		}
		return false
	})
	if err := submit(); err != nil {
		return event.Event{}, err
	}
	ev, err := wait(ctx)
	if err != nil {
		return ev, err
	}
	if ev.Kind != want {
		return ev, outcome(ev)
	}
	return ev, nil
}

// enter moves from the root into each folder of parts in turn.
func (c *fileClient) enter(ctx context.Context, parts []string) error {
	root := func() error { return c.session.ChangeFolder("") }
	if _, err := c.do(ctx, root, event.ChangedFolder); err != nil {
		return err
	}
	for _, p := range parts {
		name := p
		if _, err := c.do(ctx, func() error { return c.session.ChangeFolder(name) }, event.ChangedFolder); err != nil {
			return fmt.Errorf("cd %s: %w", name, err)
		}
	}
	return nil
}

func outcome(ev event.Event) error {
	switch ev.Kind {
	case event.RequestFailed:
		if ev.Code == obex.NotFound {
			return errors.New("not found")
		}
		if ev.Err != nil {
			return ev.Err
		}
		return fmt.Errorf("tablet answered %s", ev.Code)
	case event.ProtocolError:
		return ev.Err
	}
	return errConnectionLost
}

// close disconnects politely, then releases the transport and the profile.
func (c *fileClient) close() {
	if c.session.State() == ftp.Connected {
		wait := c.bus.Expect(func(ev event.Event) bool {
			return ev.Kind == event.StateChanged && ev.NewState == ftp.Disconnected.String()
		})
		if err := c.session.Disconnect(); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			wait(ctx)
			cancel()
		}
	}
	c.release()
}

func (c *fileClient) release() {
	c.session.Close()
	if err := c.dialer.Unregister(); err != nil {
		util.LogDebug("unregister profile: %v", err)
	}
	c.bt.Close()
}
