package room

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/roomlink/internal/hostenv"
	"github.com/danmuck/roomlink/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config wires a Controller to its collaborators.
type Config struct {
	Transport   Transport
	Options     ConnectOptions
	Environment hostenv.Source
	RetryWindow time.Duration
	Clock       clock.Clock
	Logger      *zerolog.Logger
}

// Controller owns the single live room session and keeps it alive across transient failures.
//
// Every transition and every publication happens under mu, so subscribers observe events in
// transition order and before the operation that produced them returns. mu is released while
// the transport connects; attempt generations decide which attempt may install its session.
type Controller struct {
	transport Transport
	opts      ConnectOptions
	governor  RetryGovernor
	clock     clock.Clock
	logger    zerolog.Logger
	sink      *Sink
	label     string

	ctx    context.Context
	cancel context.CancelFunc

	mu                  sync.Mutex
	token               string
	gen                 uint64
	cancelAttempt       context.CancelFunc
	active              *binding
	lastFailure         time.Time
	intentionallyClosed bool
	disposed            bool
	releaseEnv          func()

	phase       atomic.Value
	activeView  atomic.Pointer[binding]
	failureView atomic.Pointer[time.Time]
	disposeOnce sync.Once
}

// binding is one installed session plus the listeners attached to it.
type binding struct {
	session Session
	gen     uint64
	detach  []func()
}

func (b *binding) release() {
	for _, fn := range b.detach {
		fn()
	}
	b.detach = nil
}

type attempt struct {
	id     string
	gen    uint64
	token  string
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
}

func NewController(cfg Config) (*Controller, error) {
	if cfg.Transport == nil {
		return nil, ErrTransportRequired
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	label := strings.TrimSpace(cfg.Options.RoomName)
	if label == "" {
		label = "default"
	}
	logger = logger.With().Str("room", label).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		transport: cfg.Transport,
		opts:      cfg.Options,
		governor:  NewRetryGovernor(cfg.RetryWindow),
		clock:     clk,
		logger:    logger,
		sink:      NewSink(logger),
		label:     label,
		ctx:       ctx,
		cancel:    cancel,
	}
	c.phase.Store(StatusClosed)
	observability.RecordStatus(label, string(StatusClosed))

	if cfg.Environment != nil {
		c.releaseEnv = cfg.Environment.Subscribe(hostenv.Handlers{
			OnNetworkRestored: c.handleNetworkRestored,
			OnNetworkLost:     c.handleNetworkLost,
			OnBeforeTerminate: c.handleBeforeTerminate,
		})
	}
	return c, nil
}

// Subscribe registers fn for lifecycle and telemetry events.
func (c *Controller) Subscribe(fn func(Event)) (cancel func()) {
	return c.sink.Subscribe(fn)
}

// Status reports the current connection status. Safe to call from event handlers.
func (c *Controller) Status() Status {
	phase, _ := c.phase.Load().(Status)
	if phase != StatusConnected {
		return phase
	}
	b := c.activeView.Load()
	if b == nil {
		return phase
	}
	switch st := b.session.State(); st {
	case StatusConnecting, StatusConnected, StatusDisconnected:
		return st
	case StatusClosed:
		return StatusDisconnected
	default:
		return phase
	}
}

// ActiveSession returns the installed session, or nil.
func (c *Controller) ActiveSession() Session {
	b := c.activeView.Load()
	if b == nil {
		return nil
	}
	return b.session
}

// LastFailure returns the time of the last retried error disconnect; zero if none.
func (c *Controller) LastFailure() time.Time {
	t := c.failureView.Load()
	if t == nil {
		return time.Time{}
	}
	return *t
}

// Connect starts a new attempt with token, superseding any outstanding one and dropping the
// installed session. Failures are reported through a DisconnectedEvent; the return value is then nil.
func (c *Controller) Connect(ctx context.Context, token string) Session {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		c.logger.Warn().Msg("room.Controller.Connect ignored after dispose")
		return nil
	}
	c.token = token
	c.intentionallyClosed = false
	// the installed session never outlives an explicit connect, whatever its outcome
	prev := c.clearActiveLocked()
	a := c.beginAttemptLocked(ctx, token)
	c.mu.Unlock()

	_ = c.disconnectSession(prev)
	return c.runAttempt(a)
}

// Reconnect drops the active session and connects again with the stored token.
func (c *Controller) Reconnect(ctx context.Context) error {
	return c.reconnect(ctx, reconnectCause{reason: "manual"})
}

// Disconnect closes the session on purpose. No retry follows until the next Connect.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.intentionallyClosed = true
	c.supersedeLocked()
	prev := c.clearActiveLocked()
	c.setPhaseLocked(StatusClosed)
	c.logger.Info().Msg("room.Controller.Disconnect intentional close")
	c.sink.Publish(DisconnectedEvent{})
	c.mu.Unlock()

	return c.disconnectSession(prev)
}

// Dispose releases every subscription and the active session. Safe to call repeatedly
// and while a connect is outstanding.
func (c *Controller) Dispose() error {
	var err error
	c.disposeOnce.Do(func() {
		c.mu.Lock()
		c.disposed = true
		c.intentionallyClosed = true
		c.supersedeLocked()
		c.cancel()
		release := c.releaseEnv
		c.releaseEnv = nil
		prev := c.clearActiveLocked()
		c.token = ""
		c.setPhaseLocked(StatusClosed)
		c.mu.Unlock()

		if release != nil {
			release()
		}
		err = c.disconnectSession(prev)
		c.logger.Info().Msg("room.Controller.Dispose released")
	})
	return err
}

type reconnectCause struct {
	reason string
	// automatic reconnects never override an intentional close
	automatic bool
	// expect, when set, must still be the installed session
	expect *binding
}

func (c *Controller) reconnect(ctx context.Context, cause reconnectCause) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if cause.automatic && c.intentionallyClosed {
		c.mu.Unlock()
		return errIntentionallyClosed
	}
	if cause.expect != nil && c.active != cause.expect {
		c.mu.Unlock()
		return errStaleTrigger
	}
	prev := c.clearActiveLocked()
	token := c.token
	if token == "" {
		c.setPhaseLocked(StatusDisconnected)
		c.logger.Error().Str("reason", cause.reason).Msg("room.Controller.reconnect cannot reconnect before a first connect")
		c.sink.Publish(DisconnectedEvent{Err: ErrNoCredential})
		c.mu.Unlock()
		_ = c.disconnectSession(prev)
		return ErrNoCredential
	}
	c.intentionallyClosed = false
	c.logger.Info().Str("reason", cause.reason).Msg("room.Controller.reconnect")
	a := c.beginAttemptLocked(ctx, token)
	c.mu.Unlock()

	_ = c.disconnectSession(prev)
	if c.runAttempt(a) == nil {
		return ErrConnectFailed
	}
	return nil
}

// handleDisconnect reacts to the installed session reporting its own termination.
func (c *Controller) handleDisconnect(b *binding, err error) {
	c.mu.Lock()
	if c.disposed || c.active != b {
		c.mu.Unlock()
		return
	}
	sid := b.session.SID()
	c.clearActiveLocked()
	c.logger.Debug().Str("room_sid", sid).AnErr("cause", err).Msg("room.Controller.handleDisconnect room disconnected")

	if err == nil {
		if c.intentionallyClosed {
			c.setPhaseLocked(StatusClosed)
		} else {
			c.setPhaseLocked(StatusDisconnected)
		}
		c.sink.Publish(DisconnectedEvent{})
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()
	if !c.governor.Allow(c.lastFailure, now) {
		c.setPhaseLocked(StatusDisconnected)
		observability.RecordCircuitTrip(c.label)
		c.logger.Error().
			Str("room_sid", sid).
			Err(err).
			Dur("since_last_failure", now.Sub(c.lastFailure)).
			Msg("room.Controller.handleDisconnect too many disconnection failures in a row")
		c.sink.Publish(DisconnectedEvent{Err: err})
		c.mu.Unlock()
		return
	}

	c.lastFailure = now
	c.failureView.Store(&now)
	c.setPhaseLocked(StatusConnecting)
	observability.RecordRetry(c.label)
	c.logger.Warn().Str("room_sid", sid).Err(err).Msg("room.Controller.handleDisconnect retrying")
	c.sink.Publish(ReconnectingEvent{Cause: err})

	token := c.token
	if token == "" {
		c.setPhaseLocked(StatusDisconnected)
		c.logger.Error().Msg("room.Controller.handleDisconnect cannot reconnect before a first connect")
		c.sink.Publish(DisconnectedEvent{Err: ErrNoCredential})
		c.mu.Unlock()
		return
	}
	a := c.beginAttemptLocked(c.ctx, token)
	c.mu.Unlock()

	c.runAttempt(a)
}

// beginAttemptLocked supersedes any outstanding attempt and publishes ConnectingEvent.
func (c *Controller) beginAttemptLocked(parent context.Context, token string) attempt {
	c.supersedeLocked()
	ctx, cancel := context.WithCancel(c.ctx)
	stop := func() bool { return false }
	if parent != nil && parent != c.ctx {
		stop = context.AfterFunc(parent, cancel)
	}
	c.cancelAttempt = cancel

	a := attempt{
		id:     uuid.NewString(),
		gen:    c.gen,
		token:  token,
		ctx:    ctx,
		cancel: cancel,
		stop:   stop,
	}
	c.setPhaseLocked(StatusConnecting)
	c.logger.Info().Str("attempt_id", a.id).Uint64("generation", a.gen).Msg("room.Controller connecting")
	c.sink.Publish(ConnectingEvent{AttemptID: a.id})
	return a
}

func (c *Controller) runAttempt(a attempt) Session {
	defer a.cancel()
	defer a.stop()

	started := c.clock.Now()
	sess, err := c.transport.Connect(a.ctx, a.token, c.opts)
	elapsed := c.clock.Since(started)

	c.mu.Lock()
	if a.gen != c.gen || c.disposed {
		c.mu.Unlock()
		observability.RecordConnectAttempt(c.label, observability.AttemptStale, elapsed)
		c.logger.Debug().
			Str("attempt_id", a.id).
			Uint64("generation", a.gen).
			AnErr("cause", err).
			Msg("room.Controller.runAttempt discarded superseded attempt")
		if sess != nil {
			if derr := sess.Disconnect(); derr != nil {
				c.logger.Debug().Err(derr).Str("room_sid", sess.SID()).Msg("room.Controller.runAttempt late session disconnect")
			}
		}
		return nil
	}
	c.cancelAttempt = nil

	if err != nil || sess == nil {
		if err == nil {
			err = ErrConnectFailed
		}
		c.setPhaseLocked(StatusDisconnected)
		observability.RecordConnectAttempt(c.label, observability.AttemptFailed, elapsed)
		c.logger.Error().
			Bool("alert", true).
			Str("attempt_id", a.id).
			Err(err).
			Msg("room.Controller.runAttempt connect failed")
		c.sink.Publish(DisconnectedEvent{Err: err})
		c.mu.Unlock()
		return nil
	}

	prev := c.detachActiveLocked()
	b := c.installLocked(sess, a.gen)
	c.setPhaseLocked(StatusConnected)
	observability.RecordConnectAttempt(c.label, observability.AttemptConnected, elapsed)
	c.logger.Info().
		Str("attempt_id", a.id).
		Str("room_sid", sess.SID()).
		Dur("elapsed", elapsed).
		Msg("room.Controller.runAttempt connected")
	c.sink.Publish(ConnectedEvent{Session: sess})
	c.sink.Publish(SessionChangedEvent{Session: sess})
	c.attachLocked(b)
	c.mu.Unlock()

	_ = c.disconnectSession(prev)
	return sess
}

func (c *Controller) installLocked(sess Session, gen uint64) *binding {
	b := &binding{session: sess, gen: gen}
	c.active = b
	c.activeView.Store(b)
	return b
}

// attachLocked subscribes to the session's streams and, when offered, its watchdog.
func (c *Controller) attachLocked(b *binding) {
	b.detach = append(b.detach,
		b.session.OnDisconnected(func(err error) { c.handleDisconnect(b, err) }),
		b.session.OnTelemetry(func(t Telemetry) { c.forwardTelemetry(b, t) }),
	)
	if w, ok := watchdogOf(b.session); ok {
		b.detach = append(b.detach, w.OnSignalingStateChange(func(state string) {
			c.handleSignalingState(b, state)
		}))
	}
}

// clearActiveLocked detaches the installed session and publishes SessionChangedEvent(nil).
// The caller disconnects the returned binding outside the lock.
func (c *Controller) clearActiveLocked() *binding {
	b := c.detachActiveLocked()
	if b != nil {
		c.sink.Publish(SessionChangedEvent{})
	}
	return b
}

// detachActiveLocked is clearActiveLocked without the publication, for in-place replacement.
func (c *Controller) detachActiveLocked() *binding {
	b := c.active
	if b == nil {
		return nil
	}
	b.release()
	c.active = nil
	c.activeView.Store(nil)
	return b
}

func (c *Controller) supersedeLocked() {
	c.gen++
	if c.cancelAttempt != nil {
		c.cancelAttempt()
		c.cancelAttempt = nil
	}
}

func (c *Controller) setPhaseLocked(s Status) {
	c.phase.Store(s)
	observability.RecordStatus(c.label, string(s))
}

func (c *Controller) forwardTelemetry(b *binding, t Telemetry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || c.active != b {
		return
	}
	if t.RoomSID == "" {
		t.RoomSID = b.session.SID()
	}
	ev := c.logger.Debug()
	if t.Kind == TelemetryError {
		ev = c.logger.Error()
	}
	ev.Str("kind", string(t.Kind)).
		Str("room_sid", t.RoomSID).
		Str("participant_sid", t.ParticipantSID).
		Str("participant_identity", t.ParticipantIdentity).
		Str("track_sid", t.TrackSID).
		Str("track_name", t.TrackName).
		AnErr("err", t.Err).
		Msg("room.Controller telemetry")
	c.sink.Publish(TelemetryEvent{Telemetry: t})
}

func (c *Controller) disconnectSession(b *binding) error {
	if b == nil {
		return nil
	}
	err := b.session.Disconnect()
	if err != nil {
		c.logger.Debug().Err(err).Str("room_sid", b.session.SID()).Msg("room.Controller.disconnectSession")
	}
	return err
}
