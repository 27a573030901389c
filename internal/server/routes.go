package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/roomlink/internal/auth"
	"github.com/danmuck/roomlink/internal/hostenv"
	"github.com/danmuck/roomlink/internal/room"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusView is the body of GET /status.
type StatusView struct {
	Status      room.Status `json:"status"`
	RoomSID     string      `json:"room_sid,omitempty"`
	LastFailure *time.Time  `json:"last_failure,omitempty"`
}

func (s *Server) RegisterRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Started).String(),
			"service": s.Name,
			"version": "0.1.0",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		st := s.ctrl.Status()
		code := http.StatusOK
		if st != room.StatusConnected {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":  st == room.StatusConnected,
			"status": st,
		})
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.statusView())
	})

	ops := r.Group("/", auth.RequireBearer(s.auth))

	ops.POST("/reconnect", func(c *gin.Context) {
		if err := s.ctrl.Reconnect(c.Request.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("server reconnect request failed")
			c.JSON(reconnectErrorStatus(err), gin.H{"error": err.Error(), "status": s.ctrl.Status()})
			return
		}
		c.JSON(http.StatusOK, s.statusView())
	})

	ops.POST("/disconnect", func(c *gin.Context) {
		if err := s.ctrl.Disconnect(); err != nil {
			s.logger.Warn().Err(err).Msg("server disconnect request")
		}
		c.JSON(http.StatusOK, s.statusView())
	})

	ops.POST("/signals/:signal", func(c *gin.Context) {
		if s.signals == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal injection disabled"})
			return
		}
		sig, ok := hostenv.ParseSignal(c.Param("signal"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown signal " + c.Param("signal")})
			return
		}
		s.logger.Info().Str("signal", string(sig)).Msg("server injecting host signal")
		s.signals.Notify(sig)
		c.JSON(http.StatusAccepted, gin.H{"signal": sig, "status": s.ctrl.Status()})
	})
}

func (s *Server) statusView() StatusView {
	view := StatusView{Status: s.ctrl.Status()}
	if sess := s.ctrl.ActiveSession(); sess != nil {
		view.RoomSID = sess.SID()
	}
	if t := s.ctrl.LastFailure(); !t.IsZero() {
		view.LastFailure = &t
	}
	return view
}

func reconnectErrorStatus(err error) int {
	switch {
	case errors.Is(err, room.ErrNoCredential):
		return http.StatusConflict
	case errors.Is(err, room.ErrDisposed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
