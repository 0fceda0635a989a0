package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tilepad_plugin"

var (
	registerOnce sync.Once

	calls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "calls_total",
			Help:      "Correlated calls by method and outcome.",
		},
		[]string{"plugin", "method", "outcome"},
	)
	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "call_duration_seconds",
			Help:      "Call round-trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"plugin", "method"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "frames_total",
			Help:      "Envelope frames by direction and kind.",
		},
		[]string{"plugin", "direction", "kind"},
	)
	malformedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "malformed_frames_total",
			Help:      "Inbound frames dropped because they failed to decode.",
		},
		[]string{"plugin"},
	)
	reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnects_total",
			Help:      "Connect attempts after the first, successful or not.",
		},
		[]string{"plugin"},
	)
	connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Current connection state (0 disconnected, 1 connecting, 2 connected, 3 closing).",
		},
		[]string{"plugin"},
	)
	pendingRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "pending_requests",
			Help:      "Calls awaiting a reply.",
		},
		[]string{"plugin"},
	)
)

// RegisterMetrics registers the collectors on the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			calls,
			callDuration,
			frames,
			malformedFrames,
			reconnects,
			connectionState,
			pendingRequests,
		)
	})
}

func RecordCall(plugin, method, outcome string, duration time.Duration) {
	RegisterMetrics()
	calls.WithLabelValues(plugin, method, outcome).Inc()
	callDuration.WithLabelValues(plugin, method).Observe(duration.Seconds())
}

func RecordFrame(plugin, direction, kind string) {
	RegisterMetrics()
	frames.WithLabelValues(plugin, direction, kind).Inc()
}

func RecordMalformedFrame(plugin string) {
	RegisterMetrics()
	malformedFrames.WithLabelValues(plugin).Inc()
}

func RecordReconnect(plugin string) {
	RegisterMetrics()
	reconnects.WithLabelValues(plugin).Inc()
}

func SetConnectionState(plugin string, state int) {
	RegisterMetrics()
	connectionState.WithLabelValues(plugin).Set(float64(state))
}

func SetPendingRequests(plugin string, n int) {
	RegisterMetrics()
	pendingRequests.WithLabelValues(plugin).Set(float64(n))
}
