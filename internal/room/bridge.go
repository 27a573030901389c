package room

import (
	"errors"
)

var (
	errIntentionallyClosed = errors.New("room: intentionally closed")
	errStaleTrigger        = errors.New("room: trigger belongs to a replaced session")
)

// Host and watchdog signal translation. Each handler runs on the signal source's goroutine.

func (c *Controller) handleNetworkRestored() {
	status := c.Status()
	c.logger.Info().Str("status", status.String()).Msg("room.Controller network restored")
	if status == StatusConnected {
		return
	}
	err := c.reconnect(c.ctx, reconnectCause{reason: "network_restored", automatic: true})
	switch {
	case err == nil:
	case errors.Is(err, errIntentionallyClosed), errors.Is(err, ErrDisposed):
		c.logger.Debug().Err(err).Msg("room.Controller reconnect after network restored skipped")
	default:
		c.logger.Error().Err(err).Msg("room.Controller reconnect after network restored failed")
	}
}

func (c *Controller) handleNetworkLost() {
	c.logger.Info().Str("status", c.Status().String()).Msg("room.Controller network lost")
}

func (c *Controller) handleBeforeTerminate() {
	sess := c.ActiveSession()
	if sess == nil {
		return
	}
	c.logger.Info().Str("room_sid", sess.SID()).Msg("room.Controller terminating, disconnecting room")
	if err := c.Disconnect(); err != nil {
		c.logger.Warn().Err(err).Msg("room.Controller graceful disconnect on terminate")
	}
}

// handleSignalingState reboots media when the signaling channel closes without the
// transport reporting a disconnect.
func (c *Controller) handleSignalingState(b *binding, state string) {
	if state != SignalingStateClosed {
		return
	}
	if c.Status() != StatusConnected {
		return
	}
	c.logger.Debug().Str("room_sid", b.session.SID()).Msg("room.Controller signaling state closed, rebooting media")
	err := c.reconnect(c.ctx, reconnectCause{reason: "signaling_closed", automatic: true, expect: b})
	switch {
	case err == nil:
	case errors.Is(err, errStaleTrigger), errors.Is(err, errIntentionallyClosed), errors.Is(err, ErrDisposed):
	default:
		c.logger.Error().Err(err).Msg("room.Controller reconnect after signaling close failed")
	}
}
