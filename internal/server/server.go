// Package server exposes the room controller over a small operator HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/roomlink/internal/auth"
	"github.com/danmuck/roomlink/internal/hostenv"
	"github.com/danmuck/roomlink/internal/observability"
	"github.com/danmuck/roomlink/internal/room"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Controller is the part of room.Controller the API drives.
type Controller interface {
	Status() room.Status
	ActiveSession() room.Session
	LastFailure() time.Time
	Reconnect(ctx context.Context) error
	Disconnect() error
}

type Config struct {
	Name        string
	Addr        string
	CORSOrigins []string
	// Auth guards the POST routes; nil leaves them open.
	Auth   auth.Validator
	Logger zerolog.Logger
}

type Server struct {
	Name    string
	Addr    string
	Started time.Time

	ctrl    Controller
	signals *hostenv.Notifier
	router  *gin.Engine
	auth    auth.Validator
	logger  zerolog.Logger
}

// New builds the router with recovery, request logging, request metrics and CORS.
// signals may be nil, in which case signal injection is unavailable.
func New(cfg Config, ctrl Controller, signals *hostenv.Notifier) *Server {
	observability.RegisterMetrics()
	name := cfg.Name
	if name == "" {
		name = "roomctl"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	observer := observability.HTTPObserver{
		Service: name,
		Logger:  cfg.Logger,
		Probes:  []string{"/health", "/ready", "/metrics"},
	}
	if ctrl != nil {
		observer.RoomStatus = func() string { return ctrl.Status().String() }
	}
	r.Use(observer.Middleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Server{
		Name:    name,
		Addr:    cfg.Addr,
		Started: time.Now(),
		ctrl:    ctrl,
		signals: signals,
		router:  r,
		auth:    cfg.Auth,
		logger:  cfg.Logger,
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve registers routes and serves until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	s.RegisterRoutes()
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Addr).Msg("server.Serve listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
