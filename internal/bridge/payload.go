package bridge

import (
	"github.com/1ureka/syncpad/internal/event"
	"github.com/1ureka/syncpad/internal/obex"
	"github.com/1ureka/syncpad/internal/stroke"
)

type statePayload struct {
	Source string `json:"source"`
	From   string `json:"from"`
	To     string `json:"to"`
}

type devicesPayload struct {
	Source  string         `json:"source"`
	Devices []event.Device `json:"devices"`
}

type filePayload struct {
	Name string `json:"name"`
	Size int    `json:"size"`
	Data []byte `json:"data"` // base64 in JSON
}

type namePayload struct {
	Name string `json:"name"`
}

type failurePayload struct {
	Source string `json:"source"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

type reportPayload struct {
	X        int  `json:"x"`
	Y        int  `json:"y"`
	Pressure int  `json:"pressure"`
	PenDown  bool `json:"penDown"`
}

type pathsPayload struct {
	Source   string           `json:"source"`
	Segments []stroke.Segment `json:"segments"`
}

type sourcePayload struct {
	Source string `json:"source"`
}

// eventMessage converts a bus event to its UI frame. The message type is the
// event kind's name.
func eventMessage(ev event.Event) Message {
	msg := Message{Type: ev.Kind.String()}
	switch ev.Kind {
	case event.StateChanged:
		msg.Payload = statePayload{Source: ev.Source, From: ev.OldState, To: ev.NewState}
	case event.DevicesUpdated:
		devices := ev.Devices
		if devices == nil {
			devices = []event.Device{}
		}
		msg.Payload = devicesPayload{Source: ev.Source, Devices: devices}
	case event.ListedFolder:
		listing := ev.Listing
		if listing == nil {
			listing = &obex.FolderListing{}
		}
		msg.Payload = listing
	case event.GotFile:
		msg.Payload = filePayload{Name: ev.Name, Size: len(ev.File), Data: ev.File}
	case event.DeletedFile, event.ChangedFolder:
		msg.Payload = namePayload{Name: ev.Name}
	case event.RequestFailed:
		msg.Payload = failurePayload{Source: ev.Source, Code: ev.Code.String()}
	case event.ProtocolError:
		p := failurePayload{Source: ev.Source}
		if ev.Err != nil {
			p.Error = ev.Err.Error()
		}
		msg.Payload = p
	case event.CaptureReport:
		msg.Payload = reportPayload{
			X:        ev.Report.X,
			Y:        ev.Report.Y,
			Pressure: ev.Report.Pressure,
			PenDown:  stroke.IsPenDown(ev.Report.Flags),
		}
	case event.Paths:
		msg.Payload = pathsPayload{Source: ev.Source, Segments: ev.Segments}
	case event.Cleared:
		msg.Payload = sourcePayload{Source: ev.Source}
	}
	return msg
}
