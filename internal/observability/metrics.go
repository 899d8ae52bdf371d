package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	connectionsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autowire",
			Subsystem: "transport",
			Name:      "connections_accepted_total",
			Help:      "Connections accepted per listener.",
		},
		[]string{"listener"},
	)
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "autowire",
			Subsystem: "transport",
			Name:      "connections_active",
			Help:      "Connections currently open.",
		},
	)
	detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autowire",
			Subsystem: "transport",
			Name:      "detections_total",
			Help:      "Successful protocol detections.",
		},
		[]string{"protocol"},
	)
	detectionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autowire",
			Subsystem: "transport",
			Name:      "detection_failures_total",
			Help:      "Connections closed before a protocol was identified.",
		},
		[]string{"reason"},
	)
	framesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autowire",
			Subsystem: "wire",
			Name:      "frames_decoded_total",
			Help:      "Frames decoded per protocol.",
		},
		[]string{"protocol"},
	)
	framesEncoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autowire",
			Subsystem: "wire",
			Name:      "frames_encoded_total",
			Help:      "Frames encoded per protocol.",
		},
		[]string{"protocol"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autowire",
			Subsystem: "wire",
			Name:      "decode_errors_total",
			Help:      "Decode failures per protocol and error kind.",
		},
		[]string{"protocol", "kind"},
	)
	handshakeTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autowire",
			Subsystem: "transport",
			Name:      "handshake_timeouts_total",
			Help:      "Connections closed waiting for the handshake frame.",
		},
	)
	linksStolen = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autowire",
			Subsystem: "transport",
			Name:      "links_stolen_total",
			Help:      "Sessions displaced by a new connection with the same client identity.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connectionsAccepted, connectionsActive,
			detections, detectionFailures,
			framesDecoded, framesEncoded, decodeErrors,
			handshakeTimeouts, linksStolen,
		)
	})
}

// MetricsHandler serves the registry for the optional /metrics listener.
func MetricsHandler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordConnectionOpened(listener string) {
	RegisterMetrics()
	connectionsAccepted.WithLabelValues(listener).Inc()
	connectionsActive.Inc()
}

func RecordConnectionClosed() {
	RegisterMetrics()
	connectionsActive.Dec()
}

func RecordDetection(protocol string) {
	RegisterMetrics()
	detections.WithLabelValues(protocol).Inc()
}

func RecordDetectionFailure(reason string) {
	RegisterMetrics()
	detectionFailures.WithLabelValues(reason).Inc()
}

func RecordFrameDecoded(protocol string) {
	RegisterMetrics()
	framesDecoded.WithLabelValues(protocol).Inc()
}

func RecordFrameEncoded(protocol string) {
	RegisterMetrics()
	framesEncoded.WithLabelValues(protocol).Inc()
}

func RecordDecodeError(protocol, kind string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(protocol, kind).Inc()
}

func RecordHandshakeTimeout() {
	RegisterMetrics()
	handshakeTimeouts.Inc()
}

func RecordLinkStolen() {
	RegisterMetrics()
	linksStolen.Inc()
}
