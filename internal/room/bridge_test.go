package room

import (
	"context"
	"testing"

	"github.com/danmuck/roomlink/internal/hostenv"
	"github.com/danmuck/roomlink/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkRestoredReconnectsOnce(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, newFakeTransport())
	h.ctrl.Connect(context.Background(), "T1")
	h.active(t).Drop(nil)
	require.Equal(t, StatusDisconnected, h.ctrl.Status())

	h.env.Notify(hostenv.SignalNetworkRestored)

	assert.Equal(t, 2, h.tr.calls())
	assert.Equal(t, []string{"T1", "T1"}, h.tr.tokens)
	assert.Equal(t, StatusConnected, h.ctrl.Status())
}

func TestNetworkRestoredWhileConnectedIsNoop(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, newFakeTransport())
	h.ctrl.Connect(context.Background(), "T1")
	sess := h.active(t)
	h.rec.reset()

	h.env.Notify(hostenv.SignalNetworkRestored)

	assert.Equal(t, 1, h.tr.calls())
	assert.Same(t, sess, h.ctrl.ActiveSession())
	assert.Empty(t, h.rec.kinds())
}

func TestNetworkRestoredBeforeFirstConnect(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, newFakeTransport())

	h.env.Notify(hostenv.SignalNetworkRestored)

	assert.Equal(t, 0, h.tr.calls())
	ev, ok := h.rec.last(EventDisconnected).(DisconnectedEvent)
	require.True(t, ok)
	assert.ErrorIs(t, ev.Err, ErrNoCredential)
}

func TestNetworkLostOnlyLogs(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, newFakeTransport())
	h.ctrl.Connect(context.Background(), "T1")
	h.rec.reset()

	h.env.Notify(hostenv.SignalNetworkLost)

	assert.Equal(t, StatusConnected, h.ctrl.Status())
	assert.Empty(t, h.rec.kinds())
}

func TestBeforeTerminateDisconnectsActiveSession(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, newFakeTransport())
	h.ctrl.Connect(context.Background(), "T1")
	sess := h.active(t)

	h.env.Notify(hostenv.SignalBeforeTerminate)

	assert.Equal(t, 1, sess.disconnectCount())
	assert.Nil(t, h.ctrl.ActiveSession())
	assert.Equal(t, StatusClosed, h.ctrl.Status())
	assert.Equal(t, 1, h.tr.calls())
}

func TestBeforeTerminateWithoutSessionIsNoop(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, newFakeTransport())
	h.env.Notify(hostenv.SignalBeforeTerminate)
	assert.Empty(t, h.rec.kinds())
	assert.Equal(t, StatusClosed, h.ctrl.Status())
}

func TestWatchdogClosedReconnectsOnce(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	tr.watchdog = true
	h := newHarness(t, tr)
	h.ctrl.Connect(context.Background(), "T1")
	first := h.active(t)

	first.wd.Set(SignalingStateClosed)
	first.wd.Set(SignalingStateClosed)

	assert.Equal(t, 2, tr.calls())
	second := h.active(t)
	assert.NotSame(t, first, second)
	assert.Equal(t, 1, first.disconnectCount())
	assert.Equal(t, 0, first.wd.listeners())
	assert.Equal(t, 1, second.wd.listeners())
	assert.Equal(t, StatusConnected, h.ctrl.Status())
}

func TestWatchdogDuplicateTriggerIsStale(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	tr.watchdog = true
	h := newHarness(t, tr)
	h.ctrl.Connect(context.Background(), "T1")

	h.ctrl.mu.Lock()
	b := h.ctrl.active
	h.ctrl.mu.Unlock()

	h.ctrl.handleSignalingState(b, SignalingStateClosed)
	h.ctrl.handleSignalingState(b, SignalingStateClosed)

	assert.Equal(t, 2, tr.calls())
}

func TestWatchdogIgnoresOtherStates(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	tr.watchdog = true
	h := newHarness(t, tr)
	h.ctrl.Connect(context.Background(), "T1")
	sess := h.active(t)

	for _, state := range []string{"stable", "have-local-offer", "have-remote-offer"} {
		sess.wd.Set(state)
	}

	assert.Equal(t, 1, tr.calls())
	assert.Same(t, sess, h.ctrl.ActiveSession())
}

func TestWatchdogClosedAfterIntentionalCloseIsIgnored(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	tr.watchdog = true
	h := newHarness(t, tr)
	h.ctrl.Connect(context.Background(), "T1")

	h.ctrl.mu.Lock()
	b := h.ctrl.active
	h.ctrl.mu.Unlock()
	require.NoError(t, h.ctrl.Disconnect())

	h.ctrl.handleSignalingState(b, SignalingStateClosed)
	assert.Equal(t, 1, tr.calls())
	assert.Equal(t, StatusClosed, h.ctrl.Status())
}

func TestNetworkRestoredSupersedesPendingRetry(t *testing.T) {
	testlog.Start(t)
	tr := newFakeTransport()
	tr.manual = true
	h := newHarness(t, tr)

	connected := make(chan Session, 1)
	go func() { connected <- h.ctrl.Connect(context.Background(), "T1") }()
	first := newFakeSession("RM-first")
	(<-tr.pending).reply <- connectResult{session: first}
	require.Same(t, first, <-connected)

	dropped := make(chan struct{})
	go func() {
		first.Drop(errSignalLost)
		close(dropped)
	}()
	retry := <-tr.pending
	require.Equal(t, StatusConnecting, h.ctrl.Status())

	restored := make(chan struct{})
	go func() {
		h.env.Notify(hostenv.SignalNetworkRestored)
		close(restored)
	}()
	fresh := <-tr.pending
	assert.ErrorIs(t, retry.ctx.Err(), context.Canceled, "pending retry must be superseded")

	current := newFakeSession("RM-current")
	fresh.reply <- connectResult{session: current}
	<-restored

	late := newFakeSession("RM-late")
	retry.reply <- connectResult{session: late}
	<-dropped

	assert.Same(t, current, h.ctrl.ActiveSession())
	assert.Equal(t, StatusConnected, h.ctrl.Status())
	assert.Equal(t, 1, late.disconnectCount())
	assert.Equal(t, 0, late.listeners())
	assert.Equal(t, 2, h.rec.count(EventConnected))
	assert.Equal(t, []string{"T1", "T1", "T1"}, h.tr.tokens)
}
