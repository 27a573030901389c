// Package app assembles the roomctl runtime: controller, host signal sources and operator API.
package app

import (
	"context"
	"errors"
	"sync"

	"github.com/danmuck/roomlink/internal/auth"
	"github.com/danmuck/roomlink/internal/config"
	"github.com/danmuck/roomlink/internal/hostenv"
	"github.com/danmuck/roomlink/internal/room"
	"github.com/danmuck/roomlink/internal/server"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var ErrTransportRequired = errors.New("app: transport required")

type Service struct {
	cfg    config.RoomConfig
	logger zerolog.Logger

	signals *hostenv.Notifier
	process *hostenv.ProcessWatcher
	network *hostenv.NetWatcher
	ctrl    *room.Controller
	api     *server.Server

	stopOnce        sync.Once
	done            context.Context
	stop            context.CancelFunc
	releaseShutdown func()
}

func NewService(cfg config.RoomConfig, transport room.Transport, logger zerolog.Logger) (*Service, error) {
	if transport == nil {
		return nil, ErrTransportRequired
	}
	s := &Service{
		cfg:     cfg,
		logger:  logger,
		signals: hostenv.NewNotifier(),
	}
	s.done, s.stop = context.WithCancel(context.Background())

	sources := hostenv.Multi{s.signals}
	if cfg.WatchProcess {
		s.process = hostenv.NewProcessWatcher(logger)
		sources = append(sources, s.process)
	}
	if cfg.WatchNetwork {
		s.network = hostenv.NewNetWatcher(hostenv.NetWatcherConfig{
			PollInterval: cfg.NetPollInterval,
			Logger:       logger,
		})
		sources = append(sources, s.network)
	}

	ctrl, err := room.NewController(room.Config{
		Transport: transport,
		Options: room.ConnectOptions{
			RoomName: cfg.RoomName,
			Identity: cfg.Identity,
			Metadata: cfg.Metadata,
		},
		Environment: sources,
		RetryWindow: cfg.RetryWindow,
		Logger:      &logger,
	})
	if err != nil {
		return nil, err
	}
	s.ctrl = ctrl

	// Registered after the controller so a terminate signal disconnects the room first.
	s.releaseShutdown = sources.Subscribe(hostenv.Handlers{OnBeforeTerminate: s.shutdown})

	var validator auth.Validator
	if cfg.APIToken != "" {
		validator = auth.StaticToken{Token: cfg.APIToken}
	}
	s.api = server.New(server.Config{
		Name:        "roomctl",
		Addr:        cfg.ListenAddr,
		CORSOrigins: cfg.CORSOrigins,
		Auth:        validator,
		Logger:      logger,
	}, ctrl, s.signals)
	return s, nil
}

func (s *Service) Controller() *room.Controller {
	return s.ctrl
}

// Signals is the in-process notifier behind POST /signals/:signal.
func (s *Service) Signals() *hostenv.Notifier {
	return s.signals
}

// Run connects and serves until ctx is done or a terminate signal arrives, then disposes
// the controller.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := context.AfterFunc(s.done, cancel)
	defer release()

	unsubscribe := s.ctrl.Subscribe(s.logEvent)
	defer unsubscribe()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.api.Serve(gctx) })
	if s.process != nil {
		g.Go(func() error { return s.process.Run(gctx) })
	}
	if s.network != nil {
		g.Go(func() error { return s.network.Run(gctx) })
	}
	g.Go(func() error {
		if s.cfg.Token == "" {
			s.logger.Warn().Str("env", config.EnvToken).Msg("app.Service.Run no token configured, waiting for operator")
			return nil
		}
		s.ctrl.Connect(gctx, s.cfg.Token)
		return nil
	})

	err := g.Wait()
	err = multierr.Append(err, s.ctrl.Dispose())
	s.releaseShutdown()
	return err
}

func (s *Service) shutdown() {
	s.stopOnce.Do(func() {
		s.logger.Info().Msg("app.Service shutting down")
		s.stop()
	})
}

func (s *Service) logEvent(ev room.Event) {
	switch e := ev.(type) {
	case room.ConnectingEvent:
		s.logger.Info().Str("attempt_id", e.AttemptID).Msg("room connecting")
	case room.ConnectedEvent:
		s.logger.Info().Str("room_sid", e.Session.SID()).Msg("room connected")
	case room.ReconnectingEvent:
		s.logger.Warn().Err(e.Cause).Msg("room reconnecting")
	case room.DisconnectedEvent:
		if e.Err != nil {
			s.logger.Warn().Err(e.Err).Msg("room disconnected")
			return
		}
		s.logger.Info().Msg("room disconnected")
	case room.SessionChangedEvent:
		sid := ""
		if e.Session != nil {
			sid = e.Session.SID()
		}
		s.logger.Debug().Str("room_sid", sid).Msg("room session changed")
	case room.TelemetryEvent:
		s.logger.Debug().
			Str("kind", string(e.Telemetry.Kind)).
			Str("participant", e.Telemetry.ParticipantIdentity).
			Str("track", e.Telemetry.TrackName).
			Msg("room telemetry")
	}
}
