package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Connect attempt results recorded by RecordConnectAttempt.
const (
	AttemptConnected = "connected"
	AttemptFailed    = "failed"
	AttemptStale     = "stale"
)

var knownStatuses = []string{"closed", "connecting", "connected", "disconnected"}

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roomlink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roomlink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	operatorActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roomlink",
			Subsystem: "http",
			Name:      "operator_actions_total",
			Help:      "Mutating operator requests by the controller status they left behind.",
		},
		[]string{"service", "route", "status", "room_status"},
	)
	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roomlink",
			Subsystem: "controller",
			Name:      "connect_attempts_total",
			Help:      "Room connect attempts by result.",
		},
		[]string{"room", "result"},
	)
	connectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roomlink",
			Subsystem: "controller",
			Name:      "connect_duration_seconds",
			Help:      "Time for a room connect attempt to settle.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"room", "result"},
	)
	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roomlink",
			Subsystem: "controller",
			Name:      "retries_total",
			Help:      "Automatic retries after an error-terminated session.",
		},
		[]string{"room"},
	)
	circuitTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roomlink",
			Subsystem: "controller",
			Name:      "circuit_trips_total",
			Help:      "Error-terminated sessions refused a retry inside the retry window.",
		},
		[]string{"room"},
	)
	controllerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "roomlink",
			Subsystem: "controller",
			Name:      "status",
			Help:      "1 for the current controller status, 0 otherwise.",
		},
		[]string{"room", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			operatorActions,
			connectAttempts,
			connectDuration,
			retries,
			circuitTrips,
			controllerStatus,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordOperatorAction(service, route string, status int, roomStatus string) {
	RegisterMetrics()
	operatorActions.WithLabelValues(service, route, strconv.Itoa(status), roomStatus).Inc()
}

func RecordConnectAttempt(room, result string, duration time.Duration) {
	RegisterMetrics()
	connectAttempts.WithLabelValues(room, result).Inc()
	connectDuration.WithLabelValues(room, result).Observe(duration.Seconds())
}

func RecordRetry(room string) {
	RegisterMetrics()
	retries.WithLabelValues(room).Inc()
}

func RecordCircuitTrip(room string) {
	RegisterMetrics()
	circuitTrips.WithLabelValues(room).Inc()
}

// RecordStatus sets the status gauge so exactly one status label reads 1 for room.
func RecordStatus(room, status string) {
	RegisterMetrics()
	for _, s := range knownStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		controllerStatus.WithLabelValues(room, s).Set(v)
	}
}
