// Package rtcwatch exposes a peer connection's signaling state as a multi-subscriber watchdog.
// A failed peer connection is reported as signaling state "closed".
package rtcwatch

import (
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"
)

// PeerConnection is the slice of *webrtc.PeerConnection the watchdog needs.
type PeerConnection interface {
	SignalingState() webrtc.SignalingState
	OnSignalingStateChange(func(webrtc.SignalingState))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
}

// Watchdog owns the peer connection's state-change callbacks and fans them out.
type Watchdog struct {
	pc PeerConnection

	mu       sync.Mutex
	nextID   uint64
	handlers map[uint64]func(string)
	failed   bool
	closed   bool
}

// Watch installs the fan-out callbacks on pc. pc must not have other state-change callbacks.
func Watch(pc PeerConnection) *Watchdog {
	w := &Watchdog{pc: pc, handlers: make(map[uint64]func(string))}
	pc.OnSignalingStateChange(w.dispatch)
	pc.OnConnectionStateChange(w.connectionChanged)
	return w
}

func (w *Watchdog) SignalingState() string {
	w.mu.Lock()
	failed := w.failed
	w.mu.Unlock()
	if failed {
		return webrtc.SignalingStateClosed.String()
	}
	return w.pc.SignalingState().String()
}

// OnSignalingStateChange registers fn; the returned func removes it.
func (w *Watchdog) OnSignalingStateChange(fn func(string)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if fn == nil || w.closed {
		return func() {}
	}
	w.nextID++
	id := w.nextID
	w.handlers[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.handlers, id)
	}
}

// Len reports the number of registered handlers.
func (w *Watchdog) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.handlers)
}

// Stop drops every handler and ignores later state changes.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	clear(w.handlers)
}

// connectionChanged latches a failed connection and reports it once as closed.
func (w *Watchdog) connectionChanged(state webrtc.PeerConnectionState) {
	if state != webrtc.PeerConnectionStateFailed {
		return
	}
	w.mu.Lock()
	if w.failed || w.closed {
		w.mu.Unlock()
		return
	}
	w.failed = true
	w.mu.Unlock()
	w.dispatch(webrtc.SignalingStateClosed)
}

func (w *Watchdog) dispatch(state webrtc.SignalingState) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	ids := make([]uint64, 0, len(w.handlers))
	for id := range w.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(string), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, w.handlers[id])
	}
	w.mu.Unlock()

	raw := state.String()
	for _, fn := range fns {
		fn(raw)
	}
}
