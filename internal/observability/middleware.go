package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// UnmatchedRoute labels requests that hit no registered route.
const UnmatchedRoute = "unmatched"

// HTTPObserver logs and measures operator API requests.
type HTTPObserver struct {
	Service string
	Logger  zerolog.Logger
	// Probes are routes polled by health checkers and scrapers. They log at debug
	// and are kept out of the request metrics.
	Probes []string
	// RoomStatus reports the controller status once a mutating request has been handled.
	RoomStatus func() string
}

func (o HTTPObserver) Middleware() gin.HandlerFunc {
	probes := make(map[string]struct{}, len(o.Probes))
	for _, p := range o.Probes {
		probes[p] = struct{}{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = UnmatchedRoute
		}
		status := c.Writer.Status()
		_, probe := probes[route]

		event := o.Logger.Info()
		switch {
		case probe:
			event = o.Logger.Debug()
		case status >= 500:
			event = o.Logger.Error()
		case status >= 400:
			event = o.Logger.Warn()
		}
		event = event.
			Str("service", o.Service).
			Str("method", c.Request.Method).
			Str("route", route).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP())

		if c.Request.Method != http.MethodGet && o.RoomStatus != nil {
			roomStatus := o.RoomStatus()
			event = event.Str("room_status", roomStatus)
			RecordOperatorAction(o.Service, route, status, roomStatus)
		}
		event.Msg("observability.HTTPObserver request")

		if !probe {
			RecordHTTPRequest(o.Service, c.Request.Method, route, status, elapsed)
		}
	}
}
