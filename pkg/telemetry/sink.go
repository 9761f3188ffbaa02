package telemetry

import (
	"encoding/json"
	"fmt"
	"sync"

	events "github.com/docker/go-events"

	"github.com/wheelseye/devicegateway/internal/logger"
)

// LogSink writes every envelope to the application log. It is the default
// sink when no external consumer is configured, so decoded traffic stays
// observable out of the box.
type LogSink struct {
	mu     sync.Mutex
	closed bool
}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

// Write implements events.Sink.
func (s *LogSink) Write(event events.Event) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return events.ErrSinkClosed
	}

	env, ok := event.(*Envelope)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return err
	}

	logger.Info("telemetry event",
		logger.Topic(string(env.Topic)),
		logger.IMEI(env.IMEI),
		logger.SessionID(env.SessionID),
		"payload", string(payload))
	return nil
}

// Close implements events.Sink.
func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
