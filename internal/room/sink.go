package room

import (
	"sync"

	"github.com/rs/zerolog"
)

// Sink fans events out to subscribers synchronously and in publication order.
//
// Each Publish delivers to the subscribers registered when it started. Handlers must
// not publish into the same Sink and must not block on controller operations.
type Sink struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber

	deliverMu sync.Mutex
	logger    zerolog.Logger
}

type subscriber struct {
	id uint64
	fn func(Event)
}

func NewSink(logger zerolog.Logger) *Sink {
	return &Sink{logger: logger}
}

// Subscribe registers fn for every later event. The returned cancel is idempotent.
func (s *Sink) Subscribe(fn func(Event)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

// Publish delivers ev to all current subscribers before returning.
func (s *Sink) Publish(ev Event) {
	if ev == nil {
		return
	}
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		s.deliver(sub, ev)
	}
}

// Len reports the number of live subscriptions.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Sink) deliver(sub subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("event", string(ev.Kind())).
				Uint64("subscriber", sub.id).
				Interface("panic", r).
				Msg("room.Sink.deliver handler panic")
		}
	}()
	sub.fn(ev)
}

func (s *Sink) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}
