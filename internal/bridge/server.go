// Package bridge exposes syncpad to a local UI: bus events go out over a
// websocket as JSON and commands come back the same way.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/ftp"
	"github.com/1ureka/syncpad/internal/hid"
	"github.com/1ureka/syncpad/internal/stream"
	"github.com/1ureka/syncpad/internal/util"
)

// connectTimeout bounds a Bluetooth connect issued from the UI.
const connectTimeout = 30 * time.Second

// Files is the part of *ftp.Session the bridge drives.
type Files interface {
	State() ftp.State
	Connect(ctx context.Context, address string) error
	Disconnect() error
	ListFolder() error
	ChangeFolder(name string) error
	GetFile(name string) error
	DeleteFile(name string) error
}

// Pen is the part of *stream.Manager the bridge drives.
type Pen interface {
	State() stream.State
	Devices() []hid.DeviceInfo
	Connect(ctx context.Context, info hid.DeviceInfo) error
	Disconnect() error
	SetMode(mode hid.Mode) error
	Erase() error
}

// Options wires the bridge to the rest of the program. Any field may be nil
// except Bus; commands for a missing service are answered with an error.
type Options struct {
	Bus     *event.Bus
	Files   Files
	Pen     Pen
	Metrics http.Handler
	// Bluetooth lists the FTP peers known to BlueZ.
	Bluetooth func() []event.Device
	// DefaultAddress is used by ftp.connect without an address.
	DefaultAddress string
}

// Server is the UI bridge.
type Server struct {
	opts        Options
	hub         *Hub
	unsubscribe func()

	// ctx is cancelled by Close and bounds connects issued from the UI.
	ctx  context.Context
	stop context.CancelFunc
}

var upgrader = websocket.Upgrader{
	// UIs are served from file:// or dev servers; the listener is local.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New creates a Server and subscribes it to the bus.
func New(opts Options) *Server {
	ctx, stop := context.WithCancel(context.Background())
	s := &Server{opts: opts, hub: NewHub(), ctx: ctx, stop: stop}
	s.unsubscribe = opts.Bus.Subscribe(func(ev event.Event) {
		s.hub.Broadcast(eventMessage(ev))
	})
	return s
}

// Hub returns the client set.
func (s *Server) Hub() *Hub { return s.hub }

// Close unsubscribes from the bus and drops every client.
func (s *Server) Close() {
	s.unsubscribe()
	s.stop()
	s.hub.Close()
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWS)
	r.Get("/api/devices", s.handleDevices)
	r.Get("/api/state", s.handleState)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
	return r
}

// ListenAndServe serves the router on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	util.LogInfo("bridge listening on http://%s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close()
		return srv.Shutdown(shutdownCtx)
	}
}

// ───────────────────────────────────────────────────────────────────────────
// HTTP
// ───────────────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) devices() []event.Device {
	list := []event.Device{}
	if s.opts.Pen != nil {
		list = append(list, stream.ToEventDevices(s.opts.Pen.Devices())...)
	}
	if s.opts.Bluetooth != nil {
		list = append(list, s.opts.Bluetooth()...)
	}
	return list
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.devices())
}

type stateResponse struct {
	FTP     string `json:"ftp,omitempty"`
	Stream  string `json:"stream,omitempty"`
	Clients int    `json:"clients"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{Clients: s.hub.Len()}
	if s.opts.Files != nil {
		resp.FTP = s.opts.Files.State().String()
	}
	if s.opts.Pen != nil {
		resp.Stream = s.opts.Pen.State().String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogWarning("bridge upgrade failed: %v", err)
		return
	}
	c := s.hub.add(conn)
	go s.readLoop(c)
}

// ───────────────────────────────────────────────────────────────────────────
// Commands
// ───────────────────────────────────────────────────────────────────────────

// command is an inbound frame. Payload fields depend on Type.
type command struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type commandArgs struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Device  string `json:"device"`
	Mode    string `json:"mode"`
}

var errUnavailable = errors.New("service not available")

func (s *Server) readLoop(c *client) {
	defer s.hub.remove(c)
	for {
		var cmd command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.send(Message{Type: "error", Payload: errorPayload{Error: "malformed command"}})
				continue
			}
			return
		}
		if err := s.dispatch(cmd); err != nil {
			util.LogDebug("bridge command %s failed: %v", cmd.Type, err)
			c.send(Message{Type: "error", ID: cmd.ID, Payload: errorPayload{Command: cmd.Type, Error: err.Error()}})
			continue
		}
		c.send(Message{Type: "ok", ID: cmd.ID, Payload: errorPayload{Command: cmd.Type}})
	}
}

type errorPayload struct {
	Command string `json:"command,omitempty"`
	Error   string `json:"error,omitempty"`
}

// dispatch runs one command. Results arrive later as bus events; the return
// value only says whether the command was accepted.
func (s *Server) dispatch(cmd command) error {
	var args commandArgs
	if len(cmd.Payload) > 0 {
		if err := json.Unmarshal(cmd.Payload, &args); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
	}

	switch cmd.Type {
	case "ftp.connect", "ftp.disconnect", "ftp.list", "ftp.cd", "ftp.get", "ftp.rm":
		if s.opts.Files == nil {
			return errUnavailable
		}
		return s.fileCommand(cmd.Type, args)
	case "stream.connect", "stream.disconnect", "stream.mode", "stream.erase":
		if s.opts.Pen == nil {
			return errUnavailable
		}
		return s.penCommand(cmd.Type, args)
	}
	return fmt.Errorf("unknown command %q", cmd.Type)
}

func (s *Server) fileCommand(typ string, args commandArgs) error {
	f := s.opts.Files
	switch typ {
	case "ftp.connect":
		addr := args.Address
		if addr == "" {
			addr = s.opts.DefaultAddress
		}
		if addr == "" {
			return errors.New("no address given")
		}
		ctx, cancel := context.WithTimeout(s.ctx, connectTimeout)
		defer cancel()
		return f.Connect(ctx, addr)
	case "ftp.disconnect":
		return f.Disconnect()
	case "ftp.list":
		return f.ListFolder()
	case "ftp.cd":
		return f.ChangeFolder(args.Name)
	case "ftp.get":
		if args.Name == "" {
			return errors.New("no file name given")
		}
		return f.GetFile(args.Name)
	default: // ftp.rm
		if args.Name == "" {
			return errors.New("no file name given")
		}
		return f.DeleteFile(args.Name)
	}
}

func (s *Server) penCommand(typ string, args commandArgs) error {
	p := s.opts.Pen
	switch typ {
	case "stream.connect":
		devices := p.Devices()
		if len(devices) == 0 {
			return errors.New("no tablet attached")
		}
		info := devices[0]
		if args.Device != "" {
			found := false
			for _, d := range devices {
				if d.Path == args.Device {
					info, found = d, true
					break
				}
			}
			if !found {
				return fmt.Errorf("no tablet at %s", args.Device)
			}
		}
		return p.Connect(s.ctx, info)
	case "stream.disconnect":
		return p.Disconnect()
	case "stream.mode":
		mode, err := hid.ParseMode(args.Mode)
		if err != nil {
			return err
		}
		return p.SetMode(mode)
	default: // stream.erase
		return p.Erase()
	}
}
