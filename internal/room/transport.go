package room

import "context"

// ConnectOptions is the fixed session configuration handed to the transport on every attempt.
type ConnectOptions struct {
	RoomName string
	Identity string
	Metadata map[string]string
}

// Transport establishes live room sessions.
type Transport interface {
	Connect(ctx context.Context, token string, opts ConnectOptions) (Session, error)
}

// Session is an active connection to a room as handed back by a Transport.
//
// OnDisconnected handlers receive a nil error for a clean, intentional disconnect.
// Transports must invoke handlers without holding their own locks.
type Session interface {
	SID() string
	State() Status
	Disconnect() error
	OnDisconnected(fn func(err error)) (cancel func())
	OnTelemetry(fn func(Telemetry)) (cancel func())
}

// SignalingWatchdog exposes the signaling state of the session's first active peer connection.
type SignalingWatchdog interface {
	SignalingState() string
	OnSignalingStateChange(fn func(state string)) (cancel func())
}

// WatchdogProvider is an optional Session capability.
type WatchdogProvider interface {
	Watchdog() (SignalingWatchdog, bool)
}

// SignalingStateClosed is the watchdog state that triggers a forced reconnect.
const SignalingStateClosed = "closed"

func watchdogOf(s Session) (SignalingWatchdog, bool) {
	p, ok := s.(WatchdogProvider)
	if !ok {
		return nil, false
	}
	w, ok := p.Watchdog()
	if !ok || w == nil {
		return nil, false
	}
	return w, true
}
