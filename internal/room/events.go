package room

// EventKind names one variant of the closed Event set.
type EventKind string

const (
	EventConnecting     EventKind = "connecting"
	EventConnected      EventKind = "connected"
	EventSessionChanged EventKind = "session_changed"
	EventReconnecting   EventKind = "reconnecting"
	EventDisconnected   EventKind = "disconnected"
	EventTelemetry      EventKind = "telemetry"
)

// Event is implemented only by the variants declared in this file.
type Event interface {
	Kind() EventKind
	event()
}

// ConnectingEvent is published when a connect attempt starts.
type ConnectingEvent struct {
	AttemptID string
}

// ConnectedEvent carries the freshly installed session.
type ConnectedEvent struct {
	Session Session
}

// SessionChangedEvent carries the new active session; nil when cleared.
type SessionChangedEvent struct {
	Session Session
}

// ReconnectingEvent is published before an automatic retry.
type ReconnectingEvent struct {
	Cause error
}

// DisconnectedEvent ends the current attempt. Err is the failure that ended it, if any.
type DisconnectedEvent struct {
	Err error
}

// TelemetryEvent forwards an informational transport event unmodified.
type TelemetryEvent struct {
	Telemetry Telemetry
}

func (ConnectingEvent) Kind() EventKind     { return EventConnecting }
func (ConnectedEvent) Kind() EventKind      { return EventConnected }
func (SessionChangedEvent) Kind() EventKind { return EventSessionChanged }
func (ReconnectingEvent) Kind() EventKind   { return EventReconnecting }
func (DisconnectedEvent) Kind() EventKind   { return EventDisconnected }
func (TelemetryEvent) Kind() EventKind      { return EventTelemetry }

func (ConnectingEvent) event()     {}
func (ConnectedEvent) event()      {}
func (SessionChangedEvent) event() {}
func (ReconnectingEvent) event()   {}
func (DisconnectedEvent) event()   {}
func (TelemetryEvent) event()      {}

// TelemetryKind names an informational transport event.
type TelemetryKind string

const (
	TelemetryParticipantConnected    TelemetryKind = "participant_connected"
	TelemetryParticipantDisconnected TelemetryKind = "participant_disconnected"
	TelemetryParticipantReconnecting TelemetryKind = "participant_reconnecting"
	TelemetryParticipantReconnected  TelemetryKind = "participant_reconnected"
	TelemetryRoomReconnecting        TelemetryKind = "room_reconnecting"
	TelemetryRoomReconnected         TelemetryKind = "room_reconnected"
	TelemetryTrackPublished          TelemetryKind = "track_published"
	TelemetryTrackUnpublished        TelemetryKind = "track_unpublished"
	TelemetryError                   TelemetryKind = "error"
)

// Telemetry is a participant/track lifecycle breadcrumb sourced from the active session.
type Telemetry struct {
	Kind                TelemetryKind
	RoomSID             string
	ParticipantSID      string
	ParticipantIdentity string
	TrackSID            string
	TrackName           string
	Err                 error
}
