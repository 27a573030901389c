package wsroom

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/danmuck/roomlink/internal/room"
	"github.com/danmuck/roomlink/internal/transport/rtcwatch"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Session is one joined room. It satisfies room.Session and room.WatchdogProvider.
type Session struct {
	sid      string
	name     string
	conn     *websocket.Conn
	pc       *webrtc.PeerConnection
	watchdog *rtcwatch.Watchdog
	ping     time.Duration
	logger   zerolog.Logger

	writeMu     sync.Mutex
	negotiateMu sync.Mutex

	mu       sync.Mutex
	state    room.Status
	closing  bool
	finished bool
	endErr   error
	nextID   uint64
	onDisc   map[uint64]func(error)
	onTel    map[uint64]func(room.Telemetry)

	done chan struct{}
}

func newSession(joined Frame, conn *websocket.Conn, pc *webrtc.PeerConnection, ping time.Duration, logger zerolog.Logger) *Session {
	return &Session{
		sid:      joined.RoomSID,
		name:     joined.RoomName,
		conn:     conn,
		pc:       pc,
		watchdog: rtcwatch.Watch(pc),
		ping:     ping,
		logger:   logger,
		state:    room.StatusConnected,
		onDisc:   make(map[uint64]func(error)),
		onTel:    make(map[uint64]func(room.Telemetry)),
		done:     make(chan struct{}),
	}
}

func (s *Session) start() {
	pongWait := 2 * s.ping
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.readLoop()
	go s.pingLoop()
}

func (s *Session) SID() string { return s.sid }

// Name is the room name reported by the server.
func (s *Session) Name() string { return s.name }

func (s *Session) State() room.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Watchdog() (room.SignalingWatchdog, bool) {
	return s.watchdog, true
}

// OnDisconnected registers fn for the session's end. If the session already ended,
// fn is called once on a new goroutine.
func (s *Session) OnDisconnected(fn func(error)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	if s.finished {
		err := s.endErr
		s.mu.Unlock()
		go fn(err)
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.onDisc[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.onDisc, id)
	}
}

func (s *Session) OnTelemetry(fn func(room.Telemetry)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.onTel[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.onTel, id)
	}
}

// Disconnect leaves the room cleanly. Handlers observe a nil error. Later calls are no-ops.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.closing || s.finished {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	var err error
	if werr := s.write(Frame{Type: FrameLeave}); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		err = multierr.Append(err, werr)
	}
	s.writeMu.Lock()
	cerr := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave"),
		time.Now().Add(writeTimeout),
	)
	s.writeMu.Unlock()
	if cerr != nil && !errors.Is(cerr, websocket.ErrCloseSent) {
		err = multierr.Append(err, cerr)
	}
	err = multierr.Append(err, s.release())
	s.finish(nil)
	return err
}

// release closes the socket and peer connection before handlers run, since a handler may
// block on a new connect.
func (s *Session) release() error {
	s.watchdog.Stop()
	return multierr.Combine(s.conn.Close(), s.pc.Close())
}

// finish ends the session once and notifies disconnect handlers outside the lock.
func (s *Session) finish(err error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.endErr = err
	s.state = room.StatusDisconnected
	fns := make([]func(error), 0, len(s.onDisc))
	for _, fn := range s.onDisc {
		fns = append(fns, fn)
	}
	clear(s.onDisc)
	clear(s.onTel)
	s.mu.Unlock()
	close(s.done)

	for _, fn := range fns {
		fn(err)
	}
}

func (s *Session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = nil
			} else {
				s.logger.Warn().Err(err).Msg("wsroom.Session.readLoop signaling lost")
			}
			if rerr := s.release(); rerr != nil {
				s.logger.Debug().Err(rerr).Msg("wsroom.Session.readLoop release")
			}
			s.finish(err)
			return
		}
		f, err := decodeFrame(data)
		if err != nil {
			s.logger.Debug().Err(err).Msg("wsroom.Session.readLoop dropped malformed frame")
			continue
		}
		s.handle(f)
	}
}

func (s *Session) handle(f Frame) {
	switch f.Type {
	case FrameOffer:
		go s.answer(f.SDP)
		return
	case FrameRoomReconnecting:
		s.setState(room.StatusConnecting)
	case FrameRoomReconnected:
		s.setState(room.StatusConnected)
	}

	t, ok := telemetryOf(f)
	if !ok {
		s.logger.Debug().Str("type", f.Type).Msg("wsroom.Session.handle ignored frame")
		return
	}
	if t.RoomSID == "" {
		t.RoomSID = s.sid
	}
	s.emit(t)

	if f.Type == FrameError && f.Fatal {
		s.fail(t.Err)
	}
}

// fail ends the session with err and closes the socket.
func (s *Session) fail(err error) {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	if rerr := s.release(); rerr != nil {
		s.logger.Debug().Err(rerr).Msg("wsroom.Session.fail release")
	}
	s.finish(err)
}

func (s *Session) emit(t room.Telemetry) {
	s.mu.Lock()
	fns := make([]func(room.Telemetry), 0, len(s.onTel))
	for _, fn := range s.onTel {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}

func (s *Session) setState(st room.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.state = st
	}
}

// answer applies a remote offer and replies once ICE gathering completes.
func (s *Session) answer(sdp string) {
	s.negotiateMu.Lock()
	defer s.negotiateMu.Unlock()

	if err := s.negotiate(sdp); err != nil {
		s.logger.Warn().Err(err).Msg("wsroom.Session.answer negotiation failed")
		s.emit(room.Telemetry{Kind: room.TelemetryError, RoomSID: s.sid, Err: err})
	}
}

func (s *Session) negotiate(sdp string) error {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return err
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	gathered := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	select {
	case <-gathered:
	case <-s.done:
		return ErrSessionClosed
	}
	local := s.pc.LocalDescription()
	if local == nil {
		return errors.New("wsroom: no local description after gathering")
	}
	return s.write(Frame{Type: FrameAnswer, SDP: local.SDP})
}

func (s *Session) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) pingLoop() {
	ticker := time.NewTicker(s.ping)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug().Err(err).Msg("wsroom.Session.pingLoop ping failed")
				return
			}
		}
	}
}
