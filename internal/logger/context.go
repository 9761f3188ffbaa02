package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds connection-scoped logging context. It is attached to the
// per-connection context when a device connects and enriched after login.
type LogContext struct {
	ConnectionID string    // Connection short-id
	ClientIP     string    // Client IP address (without port)
	IMEI         string    // Device IMEI, empty before login
	SessionID    string    // Session UUID, empty before login
	StartTime    time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for an accepted connection
func NewLogContext(connectionID, clientIP string) *LogContext {
	return &LogContext{
		ConnectionID: connectionID,
		ClientIP:     clientIP,
		StartTime:    time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithDevice returns a copy with the IMEI and session id set, used once a
// login has been accepted.
func (lc *LogContext) WithDevice(imei, sessionID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.IMEI = imei
		clone.SessionID = sessionID
	}
	return clone
}

// DurationMillis returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMillis() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
