package hostenv

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	psnet "github.com/shirou/gopsutil/v3/net"
)

const DefaultNetPollInterval = 2 * time.Second

// InterfacesFunc lists host network interfaces.
type InterfacesFunc func(ctx context.Context) ([]psnet.InterfaceStat, error)

type NetWatcherConfig struct {
	PollInterval time.Duration
	Clock        clock.Clock
	Interfaces   InterfacesFunc
	Logger       zerolog.Logger
}

func (c NetWatcherConfig) WithDefaults() NetWatcherConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultNetPollInterval
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Interfaces == nil {
		c.Interfaces = func(ctx context.Context) ([]psnet.InterfaceStat, error) {
			return psnet.InterfacesWithContext(ctx)
		}
	}
	return c
}

// NetWatcher polls host interfaces and notifies on online/offline transitions.
// The first observation only establishes the baseline.
type NetWatcher struct {
	*Notifier
	cfg NetWatcherConfig

	mu     sync.Mutex
	known  bool
	online bool
}

func NewNetWatcher(cfg NetWatcherConfig) *NetWatcher {
	return &NetWatcher{
		Notifier: NewNotifier(),
		cfg:      cfg.WithDefaults(),
	}
}

// Run polls until ctx is done.
func (w *NetWatcher) Run(ctx context.Context) error {
	ticker := w.cfg.Clock.Ticker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll probes once and emits a signal if connectivity flipped.
func (w *NetWatcher) Poll(ctx context.Context) {
	list, err := w.cfg.Interfaces(ctx)
	if err != nil {
		w.cfg.Logger.Warn().Err(err).Msg("hostenv.NetWatcher.Poll interface probe failed")
		return
	}
	online := IsOnline(list)

	w.mu.Lock()
	prevKnown, prev := w.known, w.online
	w.known, w.online = true, online
	w.mu.Unlock()

	if !prevKnown || prev == online {
		return
	}
	if online {
		w.cfg.Logger.Info().Msg("hostenv.NetWatcher.Poll network restored")
		w.Notify(SignalNetworkRestored)
		return
	}
	w.cfg.Logger.Info().Msg("hostenv.NetWatcher.Poll network lost")
	w.Notify(SignalNetworkLost)
}

// Online returns the last observation; known is false before the first successful probe.
func (w *NetWatcher) Online() (online, known bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online, w.known
}

// IsOnline reports whether any non-loopback interface is up with at least one address.
func IsOnline(list []psnet.InterfaceStat) bool {
	for _, iface := range list {
		if slices.Contains(iface.Flags, "loopback") {
			continue
		}
		if !slices.Contains(iface.Flags, "up") {
			continue
		}
		if len(iface.Addrs) > 0 {
			return true
		}
	}
	return false
}
