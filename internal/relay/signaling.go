package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/syncpad/internal/util"
)

type messageType string

const (
	msgTypeOffer     messageType = "offer"
	msgTypeAnswer    messageType = "answer"
	msgTypeCandidate messageType = "candidate"
)

// message is exchanged as JSON over the signaling websocket.
type message struct {
	Type      messageType `json:"type"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}

// signaler serializes writes to the websocket.
type signaler struct {
	tr   *Transport
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *signaler) send(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *signaler) sendOffer() error {
	offer, err := s.tr.CreateOffer()
	if err != nil {
		return err
	}
	if err := s.tr.SetLocalDescription(offer); err != nil {
		return err
	}
	return s.send(message{Type: msgTypeOffer, SDP: offer.SDP})
}

func (s *signaler) sendAnswer() error {
	answer, err := s.tr.CreateAnswer()
	if err != nil {
		return err
	}
	if err := s.tr.SetLocalDescription(answer); err != nil {
		return err
	}
	return s.send(message{Type: msgTypeAnswer, SDP: answer.SDP})
}

// trickle forwards local candidates as they are gathered. Errors are
// ignored; a lost candidate only narrows the choice of paths.
func (s *signaler) trickle() {
	s.tr.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		_ = s.send(message{Type: msgTypeCandidate, Candidate: string(data)})
	})
}

// watch applies remote messages until the websocket fails.
func (s *signaler) watch() error {
	for {
		var msg message
		if err := s.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read WS message: %w", err)
		}
		if err := s.apply(msg); err != nil {
			return err
		}
	}
}

func (s *signaler) apply(msg message) error {
	switch msg.Type {
	case msgTypeOffer:
		if err := s.tr.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer, SDP: msg.SDP,
		}); err != nil {
			return err
		}
		return s.sendAnswer()

	case msgTypeAnswer:
		return s.tr.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer, SDP: msg.SDP,
		})

	case msgTypeCandidate:
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
			return fmt.Errorf("parse ICE candidate: %w", err)
		}
		return s.tr.AddICECandidate(init)
	}
	util.LogDebug("ignoring signaling message %q", msg.Type)
	return nil
}

// HostOptions configures EstablishAsHost.
type HostOptions struct {
	Listen     string
	PIN        string
	ICEServers []string
	// Listening, if set, is called with the bound address before waiting.
	Listening func(addr net.Addr)
}

// EstablishAsHost serves signaling on opts.Listen, waits for one viewer with
// the PIN, sends the offer and returns once the DataChannel is open.
func EstablishAsHost(ctx context.Context, opts HostOptions) (*Transport, error) {
	srv := newServer(opts.PIN)
	addr, err := srv.start(opts.Listen)
	if err != nil {
		return nil, err
	}
	defer srv.close()

	if opts.Listening != nil {
		opts.Listening(addr)
	}

	wsConn, err := srv.waitForClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for viewer: %w", err)
	}
	defer wsConn.Close()
	util.LogInfo("viewer connected from %s", wsConn.RemoteAddr())

	tr, err := NewTransport(ctx, opts.ICEServers)
	if err != nil {
		return nil, fmt.Errorf("failed to create Transport: %w", err)
	}

	s := &signaler{tr: tr, conn: wsConn}
	s.trickle()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.watch() // exits when wsConn is closed
	}()

	if err := s.sendOffer(); err != nil {
		tr.Close()
		return nil, fmt.Errorf("failed to send offer: %w", err)
	}

	return awaitReady(ctx, tr, errCh)
}

// EstablishAsViewer dials the host's signaling URL (including ?pin=) and
// answers its offer. It returns once the DataChannel is open.
func EstablishAsViewer(ctx context.Context, url string, iceServers []string) (*Transport, error) {
	wsConn, err := connect(ctx, url)
	if err != nil {
		return nil, err
	}
	defer wsConn.Close()
	util.LogDebug("WS connected: %s", url)

	tr, err := NewTransport(ctx, iceServers)
	if err != nil {
		return nil, fmt.Errorf("failed to create Transport: %w", err)
	}

	s := &signaler{tr: tr, conn: wsConn}
	s.trickle()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.watch()
	}()

	return awaitReady(ctx, tr, errCh)
}

func awaitReady(ctx context.Context, tr *Transport, errCh <-chan error) (*Transport, error) {
	select {
	case <-tr.Ready():
		util.LogSuccess("DataChannel established")
		return tr, nil

	case err := <-errCh:
		// The websocket may drop right after the channel opened.
		select {
		case <-tr.Ready():
			return tr, nil
		default:
		}
		tr.Close()
		return nil, fmt.Errorf("signaling failed: %w", err)

	case <-ctx.Done():
		tr.Close()
		return nil, ctx.Err()
	}
}
