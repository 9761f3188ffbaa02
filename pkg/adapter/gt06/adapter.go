// Package gt06 implements the device-facing adapter for GT06-family
// trackers: the TCP listener, the per-connection frame loop, and
// server-to-device command delivery.
package gt06

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/wheelseye/devicegateway/internal/logger"
	"github.com/wheelseye/devicegateway/internal/protocol/gt06"
	"github.com/wheelseye/devicegateway/pkg/adapter"
	"github.com/wheelseye/devicegateway/pkg/metrics"
	"github.com/wheelseye/devicegateway/pkg/session"
	"github.com/wheelseye/devicegateway/pkg/telemetry"
)

// ErrDeviceOffline is returned by SendCommand when the target device has no
// live connection on this node.
var ErrDeviceOffline = errors.New("gt06: device offline")

// writeTimeout bounds server-to-device writes. Devices on cellular links
// that cannot drain a ten-byte ACK within this window are effectively gone.
const writeTimeout = 10 * time.Second

// Config configures the GT06 adapter.
type Config struct {
	adapter.BaseConfig

	// ReadBufferSize is the per-connection read buffer in bytes.
	ReadBufferSize int

	// IdleTimeout is the per-read deadline. A device silent for longer is
	// disconnected; its session stays in the registry for rebinding.
	IdleTimeout time.Duration

	// Decoder holds frame validation policy.
	Decoder gt06.DecoderConfig
}

var _ adapter.Adapter = (*Adapter)(nil)

// Adapter is the GT06 protocol server.
type Adapter struct {
	*adapter.BaseAdapter

	cfg      Config
	registry *session.Registry
	emitter  *telemetry.Emitter
	metrics  metrics.GatewayMetrics

	// commandSerial generates server-side frame serials, monotonically
	// increasing from 1 across all devices.
	commandSerial atomic.Uint32
}

// New creates the adapter. emitter and gatewayMetrics may be nil.
func New(cfg Config, registry *session.Registry, emitter *telemetry.Emitter, gatewayMetrics metrics.GatewayMetrics) *Adapter {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 4096
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}

	a := &Adapter{
		BaseAdapter: adapter.NewBaseAdapter(cfg.BaseConfig, "GT06"),
		cfg:         cfg,
		registry:    registry,
		emitter:     emitter,
		metrics:     gatewayMetrics,
	}
	a.BaseAdapter.Metrics = gatewayMetrics
	registry.SetConnectionCloser(a.CloseConnection)
	return a
}

// Serve runs the accept loop until ctx is cancelled.
func (a *Adapter) Serve(ctx context.Context) error {
	return a.ServeWithFactory(ctx, a, a.onConnectionClose)
}

// NewConnection implements adapter.ConnectionFactory.
func (a *Adapter) NewConnection(conn net.Conn, connectionID string) adapter.ConnectionHandler {
	return newConnection(a, conn, connectionID)
}

// onConnectionClose releases the session binding when a connection's serve
// goroutine exits. The session record survives for rebinding.
func (a *Adapter) onConnectionClose(connectionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := a.registry.ReleaseConnection(ctx, connectionID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			logger.Warn("failed to release session binding",
				logger.ConnectionID(connectionID), logger.Err(err))
		}
		return
	}

	a.emitter.EmitSession(s.IMEI, s.ID, &telemetry.SessionEvent{
		Type:          telemetry.SessionDisconnected,
		Variant:       s.Variant,
		RemoteAddress: s.RemoteAddress,
	})
	if a.metrics != nil {
		a.metrics.RecordEventPublished(string(telemetry.TopicSessions))
	}
}

// nextSerial returns the next server-side frame serial.
func (a *Adapter) nextSerial() uint16 {
	return uint16(a.commandSerial.Add(1))
}

// SendCommand builds and delivers a command to a device by IMEI. The frame
// is written on the device's live connection; if the device is not bound to
// this node, ErrDeviceOffline is returned.
func (a *Adapter) SendCommand(ctx context.Context, imei string, cmd *gt06.Command) (uint16, error) {
	record := func(outcome string) {
		if a.metrics != nil {
			a.metrics.RecordCommandDelivery(string(cmd.Kind), outcome)
		}
	}

	s, err := a.registry.GetByIMEI(ctx, imei)
	if errors.Is(err, session.ErrNotFound) {
		record("offline")
		return 0, ErrDeviceOffline
	}
	if err != nil {
		record("failed")
		return 0, fmt.Errorf("resolving session for %s: %w", imei, err)
	}
	if !s.Bound() {
		record("offline")
		return 0, ErrDeviceOffline
	}

	conn, ok := a.LookupConnection(s.ConnectionID)
	if !ok {
		// Session bound on another node, or the connection just died.
		record("offline")
		return 0, ErrDeviceOffline
	}

	serial := a.nextSerial()
	raw, err := cmd.Build(serial)
	if err != nil {
		record("failed")
		return 0, fmt.Errorf("building %s command: %w", cmd.Kind, err)
	}

	if err := writeFrame(conn, raw); err != nil {
		record("failed")
		return 0, fmt.Errorf("writing %s command to %s: %w", cmd.Kind, imei, err)
	}

	record("delivered")
	logger.Info("command delivered",
		logger.IMEI(imei),
		logger.SessionID(s.ID),
		logger.Command(string(cmd.Kind)),
		logger.Serial(serial))
	return serial, nil
}

// writeFrame writes one frame under the write deadline.
func writeFrame(conn net.Conn, raw []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := conn.Write(raw)
	return err
}
