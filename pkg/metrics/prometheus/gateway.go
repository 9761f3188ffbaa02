// Package prometheus provides Prometheus-backed implementations of the
// metrics interfaces.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wheelseye/devicegateway/pkg/metrics"
)

// gatewayMetrics is the Prometheus implementation of
// metrics.GatewayMetrics.
type gatewayMetrics struct {
	framesDecoded  *prometheus.CounterVec
	framesRejected *prometheus.CounterVec
	bytesSkipped   prometheus.Counter
	parseFailures  *prometheus.CounterVec
	acksSent       *prometheus.CounterVec
	frameHandling  *prometheus.HistogramVec

	logins *prometheus.CounterVec

	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
	activeConnections   prometheus.Gauge
	activeSessions      prometheus.Gauge
	sessionsEvicted     prometheus.Counter

	eventsPublished   *prometheus.CounterVec
	commandDeliveries *prometheus.CounterVec
}

// NewGatewayMetrics creates a Prometheus-backed GatewayMetrics instance.
//
// When metrics are disabled (InitRegistry not called) it returns a typed
// nil whose methods are all no-ops, so call sites never need guards.
func NewGatewayMetrics() metrics.GatewayMetrics {
	if !metrics.IsEnabled() {
		return (*gatewayMetrics)(nil)
	}

	reg := metrics.GetRegistry()

	return &gatewayMetrics{
		framesDecoded: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "devicegateway_frames_decoded_total",
				Help: "Total validated frames by opcode",
			},
			[]string{"protocol"},
		),
		framesRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "devicegateway_frames_rejected_total",
				Help: "Total frame candidates discarded during validation",
			},
			[]string{"reason"},
		),
		bytesSkipped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "devicegateway_bytes_skipped_total",
				Help: "Total garbage bytes discarded while scanning for frame headers",
			},
		),
		parseFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "devicegateway_parse_failures_total",
				Help: "Total frames whose body could not be decoded",
			},
			[]string{"protocol"},
		),
		acksSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "devicegateway_acks_sent_total",
				Help: "Total acknowledgements written back to devices",
			},
			[]string{"protocol"},
		),
		frameHandling: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devicegateway_frame_handling_seconds",
				Help:    "Time spent handling one frame",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"protocol"},
		),
		logins: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "devicegateway_logins_total",
				Help: "Total accepted logins by variant and rebind outcome",
			},
			[]string{"variant", "rebound"},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "devicegateway_connections_accepted_total",
				Help: "Total accepted TCP connections",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "devicegateway_connections_closed_total",
				Help: "Total closed TCP connections",
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "devicegateway_active_connections",
				Help: "Current live TCP connections",
			},
		),
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "devicegateway_active_sessions",
				Help: "Current live device sessions",
			},
		),
		sessionsEvicted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "devicegateway_sessions_evicted_total",
				Help: "Total sessions evicted by the idle sweeper",
			},
		),
		eventsPublished: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "devicegateway_events_published_total",
				Help: "Total telemetry envelopes published by topic",
			},
			[]string{"topic"},
		),
		commandDeliveries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "devicegateway_command_deliveries_total",
				Help: "Total command delivery attempts by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
	}
}

func (m *gatewayMetrics) RecordFrameDecoded(protocol string) {
	if m == nil {
		return
	}
	m.framesDecoded.WithLabelValues(protocol).Inc()
}

func (m *gatewayMetrics) RecordFrameRejected(reason string) {
	if m == nil {
		return
	}
	m.framesRejected.WithLabelValues(reason).Inc()
}

func (m *gatewayMetrics) RecordBytesSkipped(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.bytesSkipped.Add(float64(n))
}

func (m *gatewayMetrics) RecordParseFailure(protocol string) {
	if m == nil {
		return
	}
	m.parseFailures.WithLabelValues(protocol).Inc()
}

func (m *gatewayMetrics) RecordAckSent(protocol string) {
	if m == nil {
		return
	}
	m.acksSent.WithLabelValues(protocol).Inc()
}

func (m *gatewayMetrics) ObserveFrameHandling(protocol string, duration time.Duration) {
	if m == nil {
		return
	}
	m.frameHandling.WithLabelValues(protocol).Observe(duration.Seconds())
}

func (m *gatewayMetrics) RecordLogin(variant string, rebound bool) {
	if m == nil {
		return
	}
	outcome := "false"
	if rebound {
		outcome = "true"
	}
	m.logins.WithLabelValues(variant, outcome).Inc()
}

func (m *gatewayMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

func (m *gatewayMetrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsClosed.Inc()
}

func (m *gatewayMetrics) SetActiveConnections(count int32) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(count))
}

func (m *gatewayMetrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}

func (m *gatewayMetrics) RecordSessionEvicted() {
	if m == nil {
		return
	}
	m.sessionsEvicted.Inc()
}

func (m *gatewayMetrics) RecordEventPublished(topic string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(topic).Inc()
}

func (m *gatewayMetrics) RecordCommandDelivery(kind string, outcome string) {
	if m == nil {
		return
	}
	m.commandDeliveries.WithLabelValues(kind, outcome).Inc()
}
