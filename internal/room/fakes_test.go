package room

import (
	"context"
	"fmt"
	"sync"
)

type connectResult struct {
	session Session
	err     error
}

type pendingConnect struct {
	token string
	ctx   context.Context
	reply chan connectResult
}

// fakeTransport succeeds immediately unless fail is set. In manual mode every call parks on
// pending until the test replies; the context is ignored so a superseded attempt can still
// settle successfully.
type fakeTransport struct {
	mu       sync.Mutex
	tokens   []string
	fail     error
	manual   bool
	watchdog bool
	created  []*fakeSession
	pending  chan *pendingConnect
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{pending: make(chan *pendingConnect, 8)}
}

func (t *fakeTransport) Connect(ctx context.Context, token string, _ ConnectOptions) (Session, error) {
	t.mu.Lock()
	t.tokens = append(t.tokens, token)
	manual := t.manual
	fail := t.fail
	t.mu.Unlock()

	if manual {
		p := &pendingConnect{token: token, ctx: ctx, reply: make(chan connectResult, 1)}
		t.pending <- p
		r := <-p.reply
		return r.session, r.err
	}
	if fail != nil {
		return nil, fail
	}
	return t.newSession(token), nil
}

func (t *fakeTransport) newSession(token string) *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := newFakeSession(fmt.Sprintf("RM%d-%s", len(t.created)+1, token))
	if t.watchdog {
		s.wd = &fakeWatchdog{state: "stable", handlers: make(map[int]func(string))}
	}
	t.created = append(t.created, s)
	return s
}

func (t *fakeTransport) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tokens)
}

func (t *fakeTransport) setFail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail = err
}

type fakeSession struct {
	sid string

	mu          sync.Mutex
	state       Status
	disconnects int
	nextID      int
	onDisc      map[int]func(error)
	onTel       map[int]func(Telemetry)
	wd          *fakeWatchdog
}

func newFakeSession(sid string) *fakeSession {
	return &fakeSession{
		sid:    sid,
		state:  StatusConnected,
		onDisc: make(map[int]func(error)),
		onTel:  make(map[int]func(Telemetry)),
	}
}

func (s *fakeSession) SID() string { return s.sid }

func (s *fakeSession) State() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Disconnect mimics a transport that reports its own clean disconnect synchronously.
func (s *fakeSession) Disconnect() error {
	s.mu.Lock()
	s.disconnects++
	s.state = StatusDisconnected
	s.mu.Unlock()
	s.fireDisconnected(nil)
	return nil
}

// Drop simulates the transport losing the room.
func (s *fakeSession) Drop(err error) {
	s.mu.Lock()
	s.state = StatusDisconnected
	s.mu.Unlock()
	s.fireDisconnected(err)
}

func (s *fakeSession) Emit(t Telemetry) {
	s.mu.Lock()
	fns := make([]func(Telemetry), 0, len(s.onTel))
	for _, fn := range s.onTel {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}

func (s *fakeSession) fireDisconnected(err error) {
	s.mu.Lock()
	fns := make([]func(error), 0, len(s.onDisc))
	for _, fn := range s.onDisc {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (s *fakeSession) OnDisconnected(fn func(error)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.onDisc[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.onDisc, id)
	}
}

func (s *fakeSession) OnTelemetry(fn func(Telemetry)) func() {
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

func (s *fakeSession) Watchdog() (SignalingWatchdog, bool) {
	if s.wd == nil {
		return nil, false
	}
	return s.wd, true
}

func (s *fakeSession) listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.onDisc) + len(s.onTel)
}

func (s *fakeSession) disconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

type fakeWatchdog struct {
	mu       sync.Mutex
	state    string
	nextID   int
	handlers map[int]func(string)
}

func (w *fakeWatchdog) SignalingState() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *fakeWatchdog) OnSignalingStateChange(fn func(string)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	w.handlers[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.handlers, id)
	}
}

func (w *fakeWatchdog) Set(state string) {
	w.mu.Lock()
	w.state = state
	fns := make([]func(string), 0, len(w.handlers))
	for _, fn := range w.handlers {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func (w *fakeWatchdog) listeners() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.handlers)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind())
	}
	return out
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind EventKind) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind() == kind {
			return r.events[i]
		}
	}
	return nil
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
