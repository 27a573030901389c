package wsroom

import (
	"encoding/json"
	"fmt"

	"github.com/danmuck/roomlink/internal/room"
)

// Frame types on the room signaling socket.
const (
	FrameRoomJoined              = "room.joined"
	FrameRoomRejected            = "room.rejected"
	FrameRoomReconnecting        = "room.reconnecting"
	FrameRoomReconnected         = "room.reconnected"
	FrameParticipantConnected    = "participant.connected"
	FrameParticipantLeft         = "participant.disconnected"
	FrameParticipantReconnecting = "participant.reconnecting"
	FrameParticipantReconnected  = "participant.reconnected"
	FrameTrackPublished          = "track.published"
	FrameTrackUnpublished        = "track.unpublished"
	FrameOffer                   = "offer"
	FrameAnswer                  = "answer"
	FrameError                   = "error"
	FrameLeave                   = "leave"
)

// Frame is one JSON message in either direction. Unused fields are omitted.
type Frame struct {
	Type        string           `json:"type"`
	RoomSID     string           `json:"room_sid,omitempty"`
	RoomName    string           `json:"room_name,omitempty"`
	Code        string           `json:"code,omitempty"`
	Message     string           `json:"message,omitempty"`
	Fatal       bool             `json:"fatal,omitempty"`
	SDP         string           `json:"sdp,omitempty"`
	Participant *ParticipantInfo `json:"participant,omitempty"`
	Track       *TrackInfo       `json:"track,omitempty"`
}

type ParticipantInfo struct {
	SID      string `json:"sid"`
	Identity string `json:"identity"`
}

type TrackInfo struct {
	SID  string `json:"sid"`
	Name string `json:"name"`
}

// ServerError is an error frame reported by the room server.
type ServerError struct {
	Code    string
	Message string
	Fatal   bool
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return "wsroom: server error: " + e.Message
	}
	return fmt.Sprintf("wsroom: server error %s: %s", e.Code, e.Message)
}

func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("wsroom: frame without type")
	}
	return f, nil
}

var participantKinds = map[string]room.TelemetryKind{
	FrameParticipantConnected:    room.TelemetryParticipantConnected,
	FrameParticipantLeft:         room.TelemetryParticipantDisconnected,
	FrameParticipantReconnecting: room.TelemetryParticipantReconnecting,
	FrameParticipantReconnected:  room.TelemetryParticipantReconnected,
}

var trackKinds = map[string]room.TelemetryKind{
	FrameTrackPublished:   room.TelemetryTrackPublished,
	FrameTrackUnpublished: room.TelemetryTrackUnpublished,
}

// telemetryOf maps an informational frame to Telemetry. ok is false for frames that
// carry no telemetry.
func telemetryOf(f Frame) (room.Telemetry, bool) {
	var t room.Telemetry
	if kind, ok := participantKinds[f.Type]; ok {
		t.Kind = kind
	} else if kind, ok := trackKinds[f.Type]; ok {
		t.Kind = kind
	} else {
		switch f.Type {
		case FrameRoomReconnecting:
			t.Kind = room.TelemetryRoomReconnecting
		case FrameRoomReconnected:
			t.Kind = room.TelemetryRoomReconnected
		case FrameError:
			t.Kind = room.TelemetryError
			t.Err = &ServerError{Code: f.Code, Message: f.Message, Fatal: f.Fatal}
		default:
			return room.Telemetry{}, false
		}
	}
	t.RoomSID = f.RoomSID
	if f.Participant != nil {
		t.ParticipantSID = f.Participant.SID
		t.ParticipantIdentity = f.Participant.Identity
	}
	if f.Track != nil {
		t.TrackSID = f.Track.SID
		t.TrackName = f.Track.Name
	}
	return t, true
}
