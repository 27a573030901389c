package hostenv

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// ProcessWatcher turns OS termination signals into SignalBeforeTerminate.
type ProcessWatcher struct {
	*Notifier
	signals []os.Signal
	logger  zerolog.Logger
}

// NewProcessWatcher watches SIGINT and SIGTERM unless sigs is given.
func NewProcessWatcher(logger zerolog.Logger, sigs ...os.Signal) *ProcessWatcher {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	return &ProcessWatcher{
		Notifier: NewNotifier(),
		signals:  sigs,
		logger:   logger,
	}
}

// Run blocks until ctx is done.
func (w *ProcessWatcher) Run(ctx context.Context) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, w.signals...)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-ch:
			w.logger.Info().Str("signal", sig.String()).Msg("hostenv.ProcessWatcher.Run terminating")
			w.Notify(SignalBeforeTerminate)
		}
	}
}
