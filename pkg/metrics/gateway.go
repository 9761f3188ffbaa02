package metrics

import "time"

// GatewayMetrics provides observability for the device gateway: framing,
// session lifecycle, telemetry publishing and command delivery.
//
// This interface is optional. Pass nil to disable metrics collection; all
// provided implementations tolerate nil receivers.
type GatewayMetrics interface {
	// RecordFrameDecoded counts a validated frame by opcode name.
	RecordFrameDecoded(protocol string)

	// RecordFrameRejected counts a discarded frame candidate by reason.
	RecordFrameRejected(reason string)

	// RecordBytesSkipped counts garbage bytes discarded during header
	// resynchronization.
	RecordBytesSkipped(n uint64)

	// RecordParseFailure counts frames whose body could not be decoded,
	// by opcode name.
	RecordParseFailure(protocol string)

	// RecordAckSent counts acknowledgements written back to devices.
	RecordAckSent(protocol string)

	// ObserveFrameHandling records the time spent handling one frame.
	ObserveFrameHandling(protocol string, duration time.Duration)

	// RecordLogin counts accepted logins by variant, split by whether the
	// login rebound an existing session.
	RecordLogin(variant string, rebound bool)

	// RecordConnectionAccepted / RecordConnectionClosed track the TCP
	// connection lifecycle.
	RecordConnectionAccepted()
	RecordConnectionClosed()

	// SetActiveConnections updates the live connection gauge.
	SetActiveConnections(count int32)

	// SetActiveSessions updates the live session gauge.
	SetActiveSessions(count int)

	// RecordSessionEvicted counts sweeper evictions.
	RecordSessionEvicted()

	// RecordEventPublished counts telemetry envelopes by topic.
	RecordEventPublished(topic string)

	// RecordCommandDelivery counts command delivery attempts by kind and
	// outcome ("delivered", "offline", "failed").
	RecordCommandDelivery(kind string, outcome string)
}
