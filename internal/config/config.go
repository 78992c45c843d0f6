// Package config holds the syncpad configuration types and the TOML loader.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Role represents the side taken in a relay session.
type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

// Config stores every tunable, from the file and then the command line.
type Config struct {
	Bluetooth Bluetooth `toml:"bluetooth"`
	HID       HID       `toml:"hid"`
	Server    Server    `toml:"server"`
	Relay     Relay     `toml:"relay"`
	Log       Log       `toml:"log"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-"`
}

// Bluetooth configures the file transfer side.
type Bluetooth struct {
	Adapter        string        `toml:"adapter"`
	Address        string        `toml:"address"`         // default tablet, skips the picker
	RequestTimeout time.Duration `toml:"request_timeout"` // 0 waits forever
	DownloadDir    string        `toml:"download_dir"`
}

// HID configures the live capture side.
type HID struct {
	PollInterval time.Duration `toml:"poll_interval"`
}

// Server configures the UI bridge.
type Server struct {
	Listen string `toml:"listen"`
}

// Relay configures live ink sharing.
type Relay struct {
	Role       Role     `toml:"-"`
	Listen     string   `toml:"listen"`      // host: signaling address
	URL        string   `toml:"url"`         // viewer: signaling URL
	ICEServers []string `toml:"ice_servers"` // STUN/TURN URLs
	Record     string   `toml:"record"`      // viewer: recording file
}

// Log configures console output.
type Log struct {
	Debug         bool          `toml:"debug"`
	StatsInterval time.Duration `toml:"stats_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Bluetooth: Bluetooth{
			Adapter:        "hci0",
			RequestTimeout: 30 * time.Second,
			DownloadDir:    ".",
		},
		HID: HID{
			PollInterval: time.Second,
		},
		Server: Server{
			Listen: "127.0.0.1:7780",
		},
		Relay: Relay{
			Listen:     ":8787",
			ICEServers: []string{"stun:stun.l.google.com:19302"},
		},
		Log: Log{
			StatsInterval: 10 * time.Second,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/syncpad/config.toml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "syncpad", "config.toml")
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("cannot read %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Default(), fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Default(), fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}
	cfg.Path = path
	return cfg, cfg.Validate()
}

// Validate rejects values the rest of the program cannot work with.
func (c Config) Validate() error {
	if c.Bluetooth.RequestTimeout < 0 {
		return fmt.Errorf("bluetooth.request_timeout must not be negative")
	}
	if c.HID.PollInterval <= 0 {
		return fmt.Errorf("hid.poll_interval must be positive")
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must be set")
	}
	return nil
}
