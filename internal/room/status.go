package room

import "strings"

// Status is the externally visible connection status of a Controller.
type Status string

const (
	StatusClosed       Status = "closed"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

func (s Status) String() string {
	return string(s)
}

// ParseStatus maps a transport-reported state string onto a Status.
// Transport-level "reconnecting" collapses into StatusConnecting.
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "closed":
		return StatusClosed, true
	case "connecting", "reconnecting":
		return StatusConnecting, true
	case "connected":
		return StatusConnected, true
	case "disconnected":
		return StatusDisconnected, true
	default:
		return "", false
	}
}
