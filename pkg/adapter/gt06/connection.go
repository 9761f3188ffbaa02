package gt06

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/wheelseye/devicegateway/internal/logger"
	"github.com/wheelseye/devicegateway/internal/protocol/gt06"
	"github.com/wheelseye/devicegateway/pkg/session"
	"github.com/wheelseye/devicegateway/pkg/telemetry"
)

// connection serves a single tracker connection: it owns the streaming
// decoder and the device session bound to this connection.
type connection struct {
	adapter *Adapter
	conn    net.Conn
	id      string

	decoder *gt06.Decoder
	sess    *session.DeviceSession

	// lc is mutated in place after login so the connection context picks
	// up the device identity.
	lc *logger.LogContext

	// persistent tracks whether the session is backed by the registry.
	// When the registry is unavailable at login the connection degrades
	// to a connection-local session and keeps serving.
	persistent bool

	// Decoder counter snapshots for metric deltas.
	lastSkipped  uint64
	lastRejected uint64
}

func newConnection(a *Adapter, conn net.Conn, connectionID string) *connection {
	return &connection{
		adapter: a,
		conn:    conn,
		id:      connectionID,
		decoder: gt06.NewDecoder(a.cfg.Decoder),
	}
}

// Serve runs the read loop until the device disconnects, goes idle, or the
// server shuts down.
func (c *connection) Serve(ctx context.Context) {
	clientIP, _, splitErr := net.SplitHostPort(c.conn.RemoteAddr().String())
	if splitErr != nil {
		clientIP = c.conn.RemoteAddr().String()
	}
	c.lc = logger.NewLogContext(c.id, clientIP)
	ctx = logger.WithContext(ctx, c.lc)

	buf := make([]byte, c.adapter.cfg.ReadBufferSize)

	for {
		if ctx.Err() != nil {
			logger.DebugCtx(ctx, "connection handling aborted by shutdown")
			return
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(c.adapter.cfg.IdleTimeout)); err != nil {
			logger.WarnCtx(ctx, "failed to set read deadline", logger.Err(err))
			return
		}

		n, err := c.conn.Read(buf)
		if n > 0 {
			if fatal := c.drainFrames(ctx, buf[:n]); fatal != nil {
				logger.WarnCtx(ctx, "closing connection", logger.Err(fatal))
				return
			}
		}

		switch {
		case err == nil:
			continue

		case errors.Is(err, io.EOF):
			logger.DebugCtx(ctx, "device disconnected",
				logger.DurationMs(c.lc.DurationMillis()))
			return

		case isTimeout(err):
			if ctx.Err() != nil {
				// Shutdown interrupted the blocking read via deadline.
				return
			}
			logger.InfoCtx(ctx, "idle timeout, closing connection",
				"idle_timeout", c.adapter.cfg.IdleTimeout.String())
			return

		case errors.Is(err, net.ErrClosed):
			// Evicted by the sweeper or force-closed during shutdown.
			logger.DebugCtx(ctx, "connection closed by server")
			return

		default:
			logger.WarnCtx(ctx, "read error", logger.Err(err))
			return
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// drainFrames feeds fresh bytes to the decoder and handles every complete
// frame. A non-nil return closes the connection.
func (c *connection) drainFrames(ctx context.Context, data []byte) error {
	c.decoder.Feed(data)

	for {
		frame, err := c.decoder.Next()
		if errors.Is(err, gt06.ErrNeedMoreBytes) {
			break
		}
		if err != nil {
			return err
		}
		if fatal := c.handleFrame(ctx, frame); fatal != nil {
			return fatal
		}
	}

	c.recordDecoderCounters()
	return nil
}

// recordDecoderCounters publishes decoder counter deltas to metrics.
func (c *connection) recordDecoderCounters() {
	m := c.adapter.metrics
	if m == nil {
		return
	}
	if skipped := c.decoder.Skipped(); skipped > c.lastSkipped {
		m.RecordBytesSkipped(skipped - c.lastSkipped)
		c.lastSkipped = skipped
	}
	if rejected := c.decoder.Rejected(); rejected > c.lastRejected {
		for i := c.lastRejected; i < rejected; i++ {
			m.RecordFrameRejected("validation")
		}
		c.lastRejected = rejected
	}
}

// handleFrame processes one validated frame. A non-nil return closes the
// connection.
func (c *connection) handleFrame(ctx context.Context, frame *gt06.Frame) error {
	start := time.Now()
	name := gt06.OpcodeName(frame.Protocol)

	m := c.adapter.metrics
	if m != nil {
		m.RecordFrameDecoded(name)
		defer func() { m.ObserveFrameHandling(name, time.Since(start)) }()
	}

	if !frame.CRCValid {
		logger.DebugCtx(ctx, "frame delivered with checksum mismatch",
			logger.Protocol(frame.Protocol), logger.CRC(frame.CRC))
	}

	if frame.Protocol == gt06.MsgLogin {
		return c.handleLogin(ctx, frame)
	}

	if c.sess == nil {
		// Devices must log in first. The frame is dropped without an ACK
		// so misbehaving firmware does not mistake us for its server.
		logger.WarnCtx(ctx, "frame before login dropped",
			logger.Protocol(frame.Protocol), logger.Serial(frame.Serial))
		return nil
	}

	c.dispatch(ctx, frame)
	c.touchSession(ctx)
	return c.sendAck(ctx, frame.Protocol, frame.Serial)
}

// handleLogin authenticates the connection. An unparsable login closes the
// connection without an ACK.
func (c *connection) handleLogin(ctx context.Context, frame *gt06.Frame) error {
	imei, err := gt06.DecodeIMEI(frame.Body)
	if err != nil {
		if c.adapter.metrics != nil {
			c.adapter.metrics.RecordParseFailure("LOGIN")
		}
		logger.WarnCtx(ctx, "invalid login frame",
			logger.Err(err), logger.RawHex(frame.Body))
		return errors.New("unparsable login")
	}

	variant := gt06.DetectVariant(len(frame.Body))
	remoteAddr := c.conn.RemoteAddr().String()

	s, rebound, err := c.adapter.registry.CreateOrRebind(ctx, imei, c.id, remoteAddr, variant)
	if err != nil {
		// Keep serving with a connection-local session; positions still
		// flow to telemetry, only cross-node lookup is lost.
		logger.WarnCtx(ctx, "session registry unavailable, serving without persistence",
			logger.IMEI(imei), logger.Err(err))
		s = session.NewDeviceSession(imei, c.id, remoteAddr, variant)
		c.persistent = false
	} else {
		c.persistent = true
	}

	c.sess = s
	c.lc.IMEI = imei
	c.lc.SessionID = s.ID

	eventType := telemetry.SessionConnected
	if rebound {
		eventType = telemetry.SessionRebound
	}
	c.adapter.emitter.EmitSession(imei, s.ID, &telemetry.SessionEvent{
		Type:          eventType,
		Variant:       s.Variant,
		RemoteAddress: remoteAddr,
	})

	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordLogin(string(s.Variant), rebound)
		c.adapter.metrics.RecordEventPublished(string(telemetry.TopicSessions))
	}

	logger.InfoCtx(ctx, "device logged in",
		logger.Variant(string(s.Variant)),
		"rebound", rebound,
		logger.Serial(frame.Serial))

	return c.sendAck(ctx, gt06.MsgLogin, frame.Serial)
}

// dispatch decodes the frame body by opcode and publishes telemetry. Parse
// failures are logged and counted; the frame is still acknowledged so the
// device does not retransmit forever.
func (c *connection) dispatch(ctx context.Context, frame *gt06.Frame) {
	switch {
	case frame.Protocol == gt06.MsgHeartbeat:
		logger.DebugCtx(ctx, "heartbeat", logger.Serial(frame.Serial))

	case gt06.IsLocationOpcode(frame.Protocol):
		c.handleLocation(ctx, frame)

	case frame.Protocol == gt06.MsgStatus:
		c.handleStatus(ctx, frame)

	case gt06.IsLBSOpcode(frame.Protocol):
		c.handleLBS(ctx, frame)

	case frame.Protocol == gt06.MsgCommandResponse:
		c.handleCommandResponse(ctx, frame)

	default:
		logger.DebugCtx(ctx, "unhandled opcode acknowledged",
			logger.Protocol(frame.Protocol), logger.BodyLen(len(frame.Body)))
	}
}

func (c *connection) handleLocation(ctx context.Context, frame *gt06.Frame) {
	loc, err := gt06.ParseLocation(frame.Protocol, frame.Body)
	if err != nil {
		c.recordParseFailure(ctx, frame, err)
		return
	}

	c.sess.HasReceivedLocation = true
	c.adapter.emitter.EmitLocation(c.sess.IMEI, c.sess.ID, telemetry.NewLocationEvent(frame.Protocol, loc))
	c.recordPublished(telemetry.TopicLocation)

	logger.DebugCtx(ctx, "position decoded",
		logger.Protocol(frame.Protocol),
		"lat", loc.Latitude,
		"lon", loc.Longitude,
		"speed", loc.Speed,
		"valid", loc.Valid)
}

func (c *connection) handleStatus(ctx context.Context, frame *gt06.Frame) {
	st, err := gt06.ParseStatus(frame.Body)
	if err != nil {
		c.recordParseFailure(ctx, frame, err)
		return
	}

	// One advisory per session about the status/location mix, so operators
	// do not chase a "silent" device.
	if !c.sess.HasReceivedStatusAdvice {
		switch {
		case c.sess.Variant.StatusIsPrimaryTraffic():
			// Normal for this family: status packets stream continuously
			// between position fixes.
			c.sess.HasReceivedStatusAdvice = true
			logger.InfoCtx(ctx, "device variant reports status as primary traffic",
				logger.Variant(string(c.sess.Variant)))

		case !c.sess.HasReceivedLocation:
			// A variant expected to stream positions is sending status with
			// no fix received; usually a device configuration problem.
			c.sess.HasReceivedStatusAdvice = true
			logger.WarnCtx(ctx, "device sending status instead of positions, check configuration",
				logger.Variant(string(c.sess.Variant)))
		}
	}

	c.adapter.emitter.EmitStatus(c.sess.IMEI, c.sess.ID, telemetry.NewStatusEvent(st))
	c.recordPublished(telemetry.TopicStatus)
}

func (c *connection) handleLBS(ctx context.Context, frame *gt06.Frame) {
	lbs, err := gt06.ParseLBS(frame.Protocol, frame.Body)
	if err != nil {
		c.recordParseFailure(ctx, frame, err)
		return
	}

	c.adapter.emitter.EmitLBS(c.sess.IMEI, c.sess.ID, &telemetry.LBSEvent{
		Protocol:   frame.Protocol,
		DeviceTime: lbs.Timestamp,
		Cells:      lbs.Cells,
	})
	c.recordPublished(telemetry.TopicLocation)
}

func (c *connection) handleCommandResponse(ctx context.Context, frame *gt06.Frame) {
	resp, err := gt06.ParseCommandResponse(frame.Body)
	if err != nil {
		c.recordParseFailure(ctx, frame, err)
		return
	}

	c.adapter.emitter.EmitCommandResponse(c.sess.IMEI, c.sess.ID, &telemetry.CommandResponseEvent{
		ServerFlag: resp.ServerFlag,
		Content:    resp.Content,
	})
	c.recordPublished(telemetry.TopicStatus)

	logger.InfoCtx(ctx, "command response received",
		"content", resp.Content, logger.Serial(frame.Serial))
}

func (c *connection) recordParseFailure(ctx context.Context, frame *gt06.Frame, err error) {
	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordParseFailure(gt06.OpcodeName(frame.Protocol))
	}

	// Best-effort marker on the topic the decoded event would have used,
	// so downstream consumers see the gap in the stream.
	topic := telemetry.TopicStatus
	if gt06.IsLocationOpcode(frame.Protocol) || gt06.IsLBSOpcode(frame.Protocol) {
		topic = telemetry.TopicLocation
	}
	c.adapter.emitter.EmitUnparsable(topic, c.sess.IMEI, c.sess.ID, &telemetry.UnparsableEvent{
		Unparsable: true,
		Protocol:   frame.Protocol,
		BodyLength: len(frame.Body),
		Reason:     err.Error(),
	})
	c.recordPublished(topic)

	logger.WarnCtx(ctx, "failed to decode frame body",
		logger.Protocol(frame.Protocol),
		logger.BodyLen(len(frame.Body)),
		logger.Err(err))
}

func (c *connection) recordPublished(topic telemetry.Topic) {
	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordEventPublished(string(topic))
	}
}

// touchSession refreshes activity on the session record. Store failures
// degrade to a warning; device traffic must keep flowing.
func (c *connection) touchSession(ctx context.Context) {
	c.sess.Touch()
	if !c.persistent {
		return
	}
	if err := c.adapter.registry.Save(ctx, c.sess); err != nil {
		logger.WarnCtx(ctx, "failed to persist session activity", logger.Err(err))
	}
}

// sendAck acknowledges a device frame, echoing its opcode and serial. A
// write failure is fatal for the connection.
func (c *connection) sendAck(ctx context.Context, protocol byte, serial uint16) error {
	if err := writeFrame(c.conn, gt06.BuildAck(protocol, serial)); err != nil {
		logger.WarnCtx(ctx, "failed to write acknowledgement",
			logger.Protocol(protocol), logger.Serial(serial), logger.Err(err))
		return err
	}
	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordAckSent(gt06.OpcodeName(protocol))
	}
	return nil
}
