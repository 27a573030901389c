package hostenv

import (
	"sort"
	"strings"
	"sync"
)

// Signal is one host-level notification kind.
type Signal string

const (
	SignalNetworkRestored Signal = "network-restored"
	SignalNetworkLost     Signal = "network-lost"
	SignalBeforeTerminate Signal = "before-terminate"
)

func ParseSignal(raw string) (Signal, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "network-restored", "online":
		return SignalNetworkRestored, true
	case "network-lost", "offline":
		return SignalNetworkLost, true
	case "before-terminate", "beforeunload", "terminate":
		return SignalBeforeTerminate, true
	default:
		return "", false
	}
}

// Handlers receives host signals. Nil fields are ignored.
type Handlers struct {
	OnNetworkRestored func()
	OnNetworkLost     func()
	OnBeforeTerminate func()
}

func (h Handlers) dispatch(sig Signal) {
	var fn func()
	switch sig {
	case SignalNetworkRestored:
		fn = h.OnNetworkRestored
	case SignalNetworkLost:
		fn = h.OnNetworkLost
	case SignalBeforeTerminate:
		fn = h.OnBeforeTerminate
	}
	if fn != nil {
		fn()
	}
}

// Source is anything that can deliver host signals to subscribers.
type Source interface {
	Subscribe(h Handlers) (cancel func())
}

// Notifier is an in-process Source. Notify delivers synchronously to a snapshot of subscribers.
type Notifier struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]Handlers
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[uint64]Handlers)}
}

func (n *Notifier) Subscribe(h Handlers) (cancel func()) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[id] = h
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

func (n *Notifier) Notify(sig Signal) {
	n.mu.RLock()
	ids := make([]uint64, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handlers, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, n.subs[id])
	}
	n.mu.RUnlock()

	for _, h := range handlers {
		h.dispatch(sig)
	}
}

// Len reports the number of live subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Multi subscribes to every member Source.
type Multi []Source

func (m Multi) Subscribe(h Handlers) (cancel func()) {
	cancels := make([]func(), 0, len(m))
	for _, src := range m {
		if src == nil {
			continue
		}
		cancels = append(cancels, src.Subscribe(h))
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, c := range cancels {
				c()
			}
		})
	}
}
