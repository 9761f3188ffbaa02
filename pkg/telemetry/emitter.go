package telemetry

import (
	"sync"
	"time"

	events "github.com/docker/go-events"

	"github.com/wheelseye/devicegateway/internal/logger"
)

// Retry policy for wrapped sinks: back off for a second after three
// consecutive failures.
const (
	breakerThreshold = 3
	breakerBackoff   = time.Second
)

// Emitter fans events out to registered sinks. All Emit methods are
// fire-and-forget: a bus failure is logged and the device read path
// continues. A nil Emitter drops everything, so callers never need to
// guard for disabled telemetry.
type Emitter struct {
	broadcaster *events.Broadcaster

	mu      sync.Mutex
	wrapped []events.Sink
	closed  bool
}

// NewEmitter creates an emitter with no sinks attached.
func NewEmitter() *Emitter {
	return &Emitter{broadcaster: events.NewBroadcaster()}
}

// AddSink attaches a sink behind an async queue and a retrying wrapper
// with a circuit breaker. The emitter owns the sink from here and closes
// it on shutdown.
func (e *Emitter) AddSink(sink events.Sink) {
	if e == nil {
		return
	}
	wrapped := events.NewQueue(
		events.NewRetryingSink(sink, events.NewBreaker(breakerThreshold, breakerBackoff)))

	e.mu.Lock()
	e.wrapped = append(e.wrapped, wrapped)
	e.mu.Unlock()

	if err := e.broadcaster.Add(wrapped); err != nil {
		logger.Warn("failed to attach telemetry sink", logger.Err(err))
	}
}

// publish writes one envelope to the broadcaster.
func (e *Emitter) publish(topic Topic, imei, sessionID string, payload any) {
	if e == nil {
		return
	}
	env := &Envelope{
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		IMEI:      imei,
		SessionID: sessionID,
		Payload:   payload,
	}
	if err := e.broadcaster.Write(env); err != nil {
		logger.Warn("telemetry publish failed",
			logger.Topic(string(topic)),
			logger.IMEI(imei),
			logger.Err(err))
	}
}

// EmitSession publishes a session lifecycle event.
func (e *Emitter) EmitSession(imei, sessionID string, ev *SessionEvent) {
	e.publish(TopicSessions, imei, sessionID, ev)
}

// EmitLocation publishes a position fix.
func (e *Emitter) EmitLocation(imei, sessionID string, ev *LocationEvent) {
	e.publish(TopicLocation, imei, sessionID, ev)
}

// EmitStatus publishes a device status report.
func (e *Emitter) EmitStatus(imei, sessionID string, ev *StatusEvent) {
	e.publish(TopicStatus, imei, sessionID, ev)
}

// EmitLBS publishes a cell-tower observation.
func (e *Emitter) EmitLBS(imei, sessionID string, ev *LBSEvent) {
	e.publish(TopicLocation, imei, sessionID, ev)
}

// EmitUnparsable publishes a marker for a frame whose body failed to
// decode. The topic matches where the decoded event would have gone.
func (e *Emitter) EmitUnparsable(topic Topic, imei, sessionID string, ev *UnparsableEvent) {
	e.publish(topic, imei, sessionID, ev)
}

// EmitCommandResponse publishes a device command reply.
func (e *Emitter) EmitCommandResponse(imei, sessionID string, ev *CommandResponseEvent) {
	e.publish(TopicStatus, imei, sessionID, ev)
}

// Close drains and closes all sinks. Safe to call more than once.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	for _, sink := range e.wrapped {
		if err := e.broadcaster.Remove(sink); err != nil {
			logger.Warn("failed to detach telemetry sink", logger.Err(err))
		}
		if err := sink.Close(); err != nil {
			logger.Warn("failed to close telemetry sink", logger.Err(err))
		}
	}
	return e.broadcaster.Close()
}
