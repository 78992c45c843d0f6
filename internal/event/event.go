// Package event carries notifications from the protocol engines to whatever
// front end is attached: the CLI, the websocket bridge or the ink relay.
package event

import (
	"github.com/1ureka/syncpad/internal/obex"
	"github.com/1ureka/syncpad/internal/stroke"
)

// Kind tags an Event.
type Kind int

const (
	StateChanged Kind = iota
	DevicesUpdated
	ListedFolder
	GotFile
	DeletedFile
	ChangedFolder
	RequestFailed
	ProtocolError
	CaptureReport
	Paths
	Cleared
)

var kindNames = [...]string{
	StateChanged:   "stateChanged",
	DevicesUpdated: "devicesUpdated",
	ListedFolder:   "listedFolder",
	GotFile:        "gotFile",
	DeletedFile:    "deletedFile",
	ChangedFolder:  "changedFolder",
	RequestFailed:  "requestFailed",
	ProtocolError:  "protocolError",
	CaptureReport:  "captureReport",
	Paths:          "paths",
	Cleared:        "cleared",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Event sources.
const (
	SourceFTP    = "ftp"
	SourceStream = "stream"
	SourceBluez  = "bluez"
	SourceRelay  = "relay"
)

// Device describes a discovered tablet, over USB/Bluetooth HID or as a
// Bluetooth FTP peer.
type Device struct {
	ID        string `json:"id"` // hidraw path or Bluetooth address
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Product   uint16 `json:"product,omitempty"`
	Vendor    uint16 `json:"vendor,omitempty"`
}

// Event is a tagged union; only the fields relevant to Kind are set.
type Event struct {
	Kind   Kind
	Source string

	OldState string
	NewState string

	Listing *obex.FolderListing
	File    []byte
	Name    string

	Report   stroke.Sample
	Segments []stroke.Segment

	Code obex.ResponseCode
	Err  error

	Devices []Device
}

// StateChange builds a StateChanged event.
func StateChange(source, from, to string) Event {
	return Event{Kind: StateChanged, Source: source, OldState: from, NewState: to}
}

// Failure builds a ProtocolError event.
func Failure(source string, err error) Event {
	return Event{Kind: ProtocolError, Source: source, Err: err}
}
