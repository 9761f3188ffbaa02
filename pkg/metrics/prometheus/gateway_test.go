package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelseye/devicegateway/pkg/metrics"
)

func TestDisabledMetricsAreNoOps(t *testing.T) {
	// InitRegistry has not been called yet at this point.
	require.False(t, metrics.IsEnabled())

	m := NewGatewayMetrics()
	// The interface value wraps a typed nil; it must compare non-nil so
	// call sites can invoke methods without guards. testify's NotNil
	// unwraps the interface, so compare directly.
	require.False(t, m == nil)

	// None of these may panic.
	m.RecordFrameDecoded("LOGIN")
	m.RecordFrameRejected("crc")
	m.RecordBytesSkipped(10)
	m.RecordAckSent("HEARTBEAT")
	m.ObserveFrameHandling("GPS_LBS", time.Millisecond)
	m.RecordLogin("V5", true)
	m.RecordConnectionAccepted()
	m.SetActiveConnections(3)
	m.SetActiveSessions(2)
	m.RecordSessionEvicted()
	m.RecordEventPublished("device.location")
	m.RecordCommandDelivery("LOCATE", "delivered")
}

func TestEnabledMetricsCollect(t *testing.T) {
	metrics.InitRegistry()
	require.True(t, metrics.IsEnabled())

	m := NewGatewayMetrics()
	impl, ok := m.(*gatewayMetrics)
	require.True(t, ok)
	require.NotNil(t, impl)

	m.RecordFrameDecoded("LOGIN")
	m.RecordFrameDecoded("LOGIN")
	m.RecordFrameRejected("crc")
	m.RecordBytesSkipped(7)
	m.RecordLogin("GT06_STANDARD", false)
	m.SetActiveConnections(5)
	m.RecordCommandDelivery("IMMOBILIZE", "offline")

	assert.Equal(t, 2.0, testutil.ToFloat64(impl.framesDecoded.WithLabelValues("LOGIN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.framesRejected.WithLabelValues("crc")))
	assert.Equal(t, 7.0, testutil.ToFloat64(impl.bytesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.logins.WithLabelValues("GT06_STANDARD", "false")))
	assert.Equal(t, 5.0, testutil.ToFloat64(impl.activeConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.commandDeliveries.WithLabelValues("IMMOBILIZE", "offline")))
}
